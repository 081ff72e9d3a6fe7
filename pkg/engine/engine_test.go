package engine

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dougsko/carbridged/pkg/audiobuf"
	"github.com/dougsko/carbridged/pkg/canbus"
	"github.com/dougsko/carbridged/pkg/config"
	"github.com/dougsko/carbridged/pkg/hardware"
	"github.com/dougsko/carbridged/pkg/lifecycle"
	"github.com/dougsko/carbridged/pkg/signalbus"
)

type stubPuller struct{}

func (stubPuller) Fetch(ctx context.Context, url string) (hardware.FirmwareHeader, io.ReadCloser, error) {
	return hardware.FirmwareHeader{}, io.NopCloser(nil), nil
}

type testDeps struct {
	transport *canbus.MockTransport
	stack     *hardware.MockBluetoothStack
	gpio      *hardware.MockGPIO
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Vehiclebus.PublisherID = int(canbus.PublisherBt)
	cfg.Bluetooth.DeviceName = "Car Bridge"
	cfg.Audio.IncomingCapacity = 4096
	cfg.Audio.OutgoingCapacity = 4096
	cfg.Wifi.ScanTimeout = 100
	return cfg
}

func newTestEngine(t *testing.T) (*Engine, *testDeps) {
	t.Helper()
	d := &testDeps{
		transport: canbus.NewMockTransport(),
		stack:     hardware.NewMockBluetoothStack(),
		gpio:      hardware.NewMockGPIO(),
	}
	e := New(testConfig(), Deps{
		NewTransport: func() (canbus.Transport, error) { return d.transport, nil },
		NewAdc: func(cfg hardware.AdcConfig) (hardware.ContinuousAdc, error) {
			return hardware.NewMockAdc(cfg), nil
		},
		NewI2s: func(cfg hardware.I2sConfig) (hardware.I2sTx, error) {
			return hardware.NewMockI2s(cfg), nil
		},
		BtStack: d.stack,
		Wifi:    &hardware.MockWifiStation{},
		Puller:  stubPuller{},
		Slot:    &hardware.MockFlashSlot{},
		Gpio:    d.gpio,
	})
	return e, d
}

func startedSet(e *Engine) lifecycle.ServiceSet {
	return signalbus.State(e.Bus().System, func(sys *lifecycle.System) lifecycle.ServiceSet {
		return sys.Started
	})
}

func TestStartConvergesAllNormalModeServices(t *testing.T) {
	defer goleak.VerifyNone(t)

	e, _ := newTestEngine(t)
	require.NoError(t, e.Start())

	want := []lifecycle.Service{
		lifecycle.Bt, lifecycle.AudioMux, lifecycle.Microphone, lifecycle.Speakers,
		lifecycle.Can, lifecycle.RadioDisplay, lifecycle.CockpitDisplay, lifecycle.Commands,
	}
	require.Eventually(t, func() bool {
		started := startedSet(e)
		for _, svc := range want {
			if !started.Contains(svc) {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	assert.False(t, startedSet(e).Contains(lifecycle.Wifi))
	assert.NoError(t, e.Stop())
}

// End-to-end: an incoming call while music streams forces the voice
// profile; hanging up restores music.
func TestCallPreemptsMusicEndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t)

	e, d := newTestEngine(t)
	require.NoError(t, e.Start())

	require.Eventually(t, func() bool {
		name, _, _ := d.stack.Identity()
		return name != ""
	}, 2*time.Second, 10*time.Millisecond)

	// Music streaming, head unit on the BT source.
	d.stack.FireA2dp(hardware.A2dpConnected)
	d.stack.FireA2dp(hardware.A2dpAudioStarted)
	injectRadioSource(d.transport, canbus.RadioSource{BtPlaying: true})

	require.Eventually(t, func() bool {
		return e.Bus().Audiobuf.IsProfile(audiobuf.ProfileMusic)
	}, 2*time.Second, 10*time.Millisecond)

	// Call comes in; HFP audio opens.
	d.stack.FireHfpCallSetupState(hardware.CallSetupIncoming)
	d.stack.FireHfpAudioState(true)

	require.Eventually(t, func() bool {
		return e.Bus().Audiobuf.IsProfile(audiobuf.ProfileVoice)
	}, 2*time.Second, 10*time.Millisecond)

	// Call ends; HFP audio closes.
	d.stack.FireHfpCallState(false)
	d.stack.FireHfpAudioState(false)

	require.Eventually(t, func() bool {
		return e.Bus().Audiobuf.IsProfile(audiobuf.ProfileMusic)
	}, 2*time.Second, 10*time.Millisecond)

	assert.NoError(t, e.Stop())
}

func TestShutdownRequestStopsNonAlwaysOnServices(t *testing.T) {
	defer goleak.VerifyNone(t)

	e, d := newTestEngine(t)
	require.NoError(t, e.Start())

	require.Eventually(t, func() bool {
		return startedSet(e).Contains(lifecycle.Bt)
	}, 2*time.Second, 10*time.Millisecond)

	id, payload := canbus.Encode(canbus.Frame{
		Publisher: canbus.PublisherBodyComputer,
		Topic:     canbus.Topic{Kind: canbus.KindBodyComputer, BodyComputer: canbus.ShutDownRequest},
	})
	d.transport.Inject(id, payload)

	require.Eventually(t, func() bool {
		started := startedSet(e)
		return !started.Contains(lifecycle.Bt) && !started.Contains(lifecycle.Speakers) &&
			started.Contains(lifecycle.Can) && started.Contains(lifecycle.Commands)
	}, 2*time.Second, 10*time.Millisecond)

	assert.NoError(t, e.Stop())
}

func injectRadioSource(mt *canbus.MockTransport, rs canbus.RadioSource) {
	id, payload := canbus.Encode(canbus.Frame{
		Publisher: canbus.PublisherRadio,
		Topic:     canbus.Topic{Kind: canbus.KindRadioSource, RadioSource: rs},
	})
	mt.Inject(id, payload)
}
