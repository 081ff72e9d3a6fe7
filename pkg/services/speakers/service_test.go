package speakers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougsko/carbridged/pkg/audiobuf"
	"github.com/dougsko/carbridged/pkg/bus"
	"github.com/dougsko/carbridged/pkg/hardware"
	"github.com/dougsko/carbridged/pkg/lifecycle"
	"github.com/dougsko/carbridged/pkg/signalbus"
)

type driverLog struct {
	mu      sync.Mutex
	drivers []*hardware.MockI2s
}

func (d *driverLog) add(m *hardware.MockI2s) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drivers = append(d.drivers, m)
}

func (d *driverLog) snapshot() []*hardware.MockI2s {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*hardware.MockI2s(nil), d.drivers...)
}

// Ring capacity 300: music watermark 200, voice watermark 50.
func startService(t *testing.T) (*bus.Bus, *driverLog, context.CancelFunc) {
	t.Helper()
	b := bus.New(300, 300)
	log := &driverLog{}

	svc := New(b, func(cfg hardware.I2sConfig) (hardware.I2sTx, error) {
		m := hardware.NewMockI2s(cfg)
		log.add(m)
		return m, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Run(ctx)

	b.System.Modify(func(sys *lifecycle.System) bool {
		sys.SetNormalMode()
		sys.SysEnabled = true
		return true
	})
	return b, log, cancel
}

func TestDrainsPrimedMusicBuffer(t *testing.T) {
	b, log, cancel := startService(t)
	defer cancel()

	require.Eventually(t, func() bool { return len(log.snapshot()) >= 1 }, time.Second, 5*time.Millisecond)
	first := log.snapshot()[0]
	assert.Equal(t, 44100, first.Config().SampleRateHz)
	assert.Equal(t, 256, first.Config().MclkMultiple)
	assert.Equal(t, 16, first.Config().BitsPerSample)
	assert.True(t, first.Config().Stereo)

	// Below the 2/3 watermark nothing may be released.
	b.Audiobuf.PushIncoming(make([]byte, 100), audiobuf.ProfileMusic, nil)
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, first.Written())

	// Crossing the watermark primes playback.
	b.Audiobuf.PushIncoming(make([]byte, 110), audiobuf.ProfileMusic, nil)
	require.Eventually(t, func() bool {
		total := 0
		for _, w := range first.Written() {
			total += len(w)
		}
		return total == 210
	}, time.Second, 5*time.Millisecond)
}

func TestRebuildsDriverOnProfileChange(t *testing.T) {
	b, log, cancel := startService(t)
	defer cancel()

	require.Eventually(t, func() bool { return len(log.snapshot()) >= 1 }, time.Second, 5*time.Millisecond)

	b.Audiobuf.SetProfile(audiobuf.ProfileVoice)

	require.Eventually(t, func() bool { return len(log.snapshot()) >= 2 }, time.Second, 5*time.Millisecond)
	drivers := log.snapshot()
	assert.True(t, drivers[0].IsClosed())
	assert.Equal(t, 8000, drivers[1].Config().SampleRateHz)

	// Voice data above the 1/6 watermark flows through the new driver.
	b.Audiobuf.PushIncoming(make([]byte, 60), audiobuf.ProfileVoice, nil)
	require.Eventually(t, func() bool {
		return len(drivers[1].Written()) > 0
	}, time.Second, 5*time.Millisecond)
}

func TestDriverReleasedOnDisable(t *testing.T) {
	b, log, cancel := startService(t)
	defer cancel()

	require.Eventually(t, func() bool { return len(log.snapshot()) >= 1 }, time.Second, 5*time.Millisecond)

	b.System.Modify(func(sys *lifecycle.System) bool { sys.SysEnabled = false; return true })

	require.Eventually(t, func() bool {
		drivers := log.snapshot()
		return drivers[0].IsClosed()
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return !signalbus.State(b.System, func(sys *lifecycle.System) bool {
			return sys.Started.Contains(lifecycle.Speakers)
		})
	}, time.Second, 5*time.Millisecond)
}
