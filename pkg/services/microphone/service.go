// Package microphone implements the microphone service: drives the
// continuous ADC and packs its samples into the outgoing audio ring while
// the voice profile is active, upmixing the summed mono pairs to stereo.
package microphone

import (
	"context"
	"runtime"
	"time"

	"github.com/dougsko/carbridged/pkg/apperr"
	"github.com/dougsko/carbridged/pkg/audiobuf"
	"github.com/dougsko/carbridged/pkg/bus"
	"github.com/dougsko/carbridged/pkg/hardware"
	"github.com/dougsko/carbridged/pkg/lifecycle"
	"github.com/dougsko/carbridged/pkg/logging"
	"github.com/dougsko/carbridged/pkg/selectspawn"
)

// AdcFactory opens the continuous ADC at enable time.
type AdcFactory func(hardware.AdcConfig) (hardware.ContinuousAdc, error)

// Service is the microphone service, bound to the Microphone lifecycle
// slot.
type Service struct {
	bus    *bus.Bus
	sub    *bus.Subscription
	cfg    hardware.AdcConfig
	newAdc AdcFactory

	// notifyOutgoing is invoked after each packed frame while in the voice
	// profile; the bluetooth service wires it to the HFP stack's
	// "outgoing data ready" request.
	notifyOutgoing func()
}

// New constructs the microphone service. channel is the ADC input the
// built-in microphone is wired to; notifyOutgoing may be nil.
func New(b *bus.Bus, channel int, newAdc AdcFactory, notifyOutgoing func()) *Service {
	return &Service{
		bus: b,
		sub: b.Subscription(lifecycle.Microphone),
		cfg: hardware.AdcConfig{
			Channel:              channel,
			SampleRateHz:         20000,
			MeasurementsPerFrame: 500,
			FramesInFlight:       4,
			AttenuationDb:        11,
		},
		newAdc:         newAdc,
		notifyOutgoing: notifyOutgoing,
	}
}

// Run drives the service's enable/disable lifecycle, constructing the ADC
// per enabled run and releasing it on every exit path.
func (s *Service) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		guard := s.sub.Lifecycle.StartedWhenEnabled()

		adc, err := s.newAdc(s.cfg)
		if err != nil {
			logging.Errorf("microphone", "open adc: %v", err)
			guard.Release()
			if !sleepCtx(ctx, time.Second) {
				return nil
			}
			continue
		}

		runErr := selectspawn.Race(ctx,
			s.sub.Lifecycle.WaitDisabledCtx,
			func(ctx context.Context) error { return s.captureWorker(ctx, adc) },
		)
		adc.Close()
		guard.Release()

		if ctx.Err() != nil {
			return nil
		}
		if runErr != nil {
			logging.Warnf("microphone", "capture failed, restarting: %v", runErr)
		}
	}
}

// captureWorker reads ADC frames and packs them into the outgoing ring
// whenever the voice profile is active. Each pair of raw measurements is
// summed into one 16-bit sample written twice (left then right), byte-packed
// little-endian.
func (s *Service) captureWorker(ctx context.Context, adc hardware.ContinuousAdc) error {
	// The audio path gets its own OS thread so a busy scheduler can't
	// interleave sample packing with unrelated goroutines.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pair := s.bus.Audiobuf
	for {
		frame, err := adc.ReadAsync(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return apperr.Peripheral(err, "adc read")
		}
		if !pair.IsProfile(audiobuf.ProfileVoice) {
			continue
		}

		for i := 0; i+1 < len(frame); i += 2 {
			sample := frame[i] + frame[i+1]
			lo, hi := byte(sample), byte(sample>>8)
			pair.PushOutgoingByte(lo, audiobuf.ProfileVoice)
			pair.PushOutgoingByte(hi, audiobuf.ProfileVoice)
			pair.PushOutgoingByte(lo, audiobuf.ProfileVoice)
			pair.PushOutgoingByte(hi, audiobuf.ProfileVoice)
		}
		if s.notifyOutgoing != nil {
			s.notifyOutgoing()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
