package microphone

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougsko/carbridged/pkg/audiobuf"
	"github.com/dougsko/carbridged/pkg/bus"
	"github.com/dougsko/carbridged/pkg/hardware"
	"github.com/dougsko/carbridged/pkg/lifecycle"
)

func startService(t *testing.T) (*bus.Bus, *hardware.MockAdc, *atomic.Int32, context.CancelFunc) {
	t.Helper()
	b := bus.New(1024, 1024)

	var adc *hardware.MockAdc
	adcReady := make(chan struct{})
	var notified atomic.Int32

	svc := New(b, 0, func(cfg hardware.AdcConfig) (hardware.ContinuousAdc, error) {
		adc = hardware.NewMockAdc(cfg)
		close(adcReady)
		return adc, nil
	}, func() { notified.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Run(ctx)

	b.System.Modify(func(sys *lifecycle.System) bool {
		sys.SetNormalMode()
		sys.SysEnabled = true
		return true
	})

	select {
	case <-adcReady:
	case <-time.After(time.Second):
		t.Fatal("service never opened the adc")
	}
	return b, adc, &notified, cancel
}

func TestPacksSummedStereoPairsInVoiceProfile(t *testing.T) {
	b, adc, notified, cancel := startService(t)
	defer cancel()

	b.Audiobuf.SetProfile(audiobuf.ProfileVoice)
	adc.Inject([]uint16{1, 2, 3, 4})

	// Pairs (1,2) and (3,4) sum to 3 and 7; each is written twice,
	// little-endian.
	want := []byte{0x03, 0x00, 0x03, 0x00, 0x07, 0x00, 0x07, 0x00}
	out := make([]byte, len(want))
	var got []byte
	require.Eventually(t, func() bool {
		n := b.Audiobuf.PopOutgoing(out, audiobuf.ProfileVoice)
		got = append(got, out[:n]...)
		return len(got) >= len(want)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, got)
	assert.Positive(t, notified.Load())
}

func TestDropsFramesInMusicProfile(t *testing.T) {
	b, adc, notified, cancel := startService(t)
	defer cancel()

	adc.Inject([]uint16{1, 2})
	adc.Inject([]uint16{3, 4})

	time.Sleep(50 * time.Millisecond)
	out := make([]byte, 16)
	assert.Equal(t, 0, b.Audiobuf.PopOutgoing(out, audiobuf.ProfileMusic))
	assert.Zero(t, notified.Load())
}

func TestAdcConfigMatchesContract(t *testing.T) {
	b := bus.New(64, 64)
	svc := New(b, 5, nil, nil)
	assert.Equal(t, hardware.AdcConfig{
		Channel:              5,
		SampleRateHz:         20000,
		MeasurementsPerFrame: 500,
		FramesInFlight:       4,
		AttenuationDb:        11,
	}, svc.cfg)
}
