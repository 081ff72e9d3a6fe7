// Package speakers implements the speaker service: drives the I2S transmit
// peripheral, draining the incoming audio ring and rebuilding the driver
// with the matching clock whenever the active profile changes.
package speakers

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

// I2sFactory opens the I2S transmit driver at enable time and on every
// profile change.
type I2sFactory func(hardware.I2sConfig) (hardware.I2sTx, error)

const writeChunk = 2048

// Service is the speaker service, bound to the Speakers lifecycle slot.
type Service struct {
	bus    *bus.Bus
	sub    *bus.Subscription
	newI2s I2sFactory
}

func New(b *bus.Bus, newI2s I2sFactory) *Service {
	return &Service{bus: b, sub: b.Subscription(lifecycle.Speakers), newI2s: newI2s}
}

func configFor(profile audiobuf.Profile) hardware.I2sConfig {
	rate := 44100
	if profile == audiobuf.ProfileVoice {
		rate = 8000
	}
	return hardware.I2sConfig{
		SampleRateHz:  rate,
		MclkMultiple:  256,
		BitsPerSample: 16,
		Stereo:        true,
	}
}

// Run drives the service's enable/disable lifecycle.
func (s *Service) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		guard := s.sub.Lifecycle.StartedWhenEnabled()

		runErr := selectspawn.Race(ctx,
			s.sub.Lifecycle.WaitDisabledCtx,
			s.playbackWorker,
		)
		guard.Release()

		if ctx.Err() != nil {
			return nil
		}
		if runErr != nil {
			logging.Warnf("speakers", "playback failed, restarting: %v", runErr)
			if !sleepCtx(ctx, time.Second) {
				return nil
			}
		}
	}
}

// playbackWorker owns the I2S driver. The outer loop snapshots the profile
// and (re)builds the driver with the matching clock; the inner loop drains
// the incoming ring, breaking out to rebuild whenever the profile no longer
// matches the snapshot. The driver is disabled and closed on every exit
// path, including cooperative cancellation.
func (s *Service) playbackWorker(ctx context.Context) error {
	// The audio path gets its own OS thread so a busy scheduler can't
	// interleave playback writes with unrelated goroutines.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pair := s.bus.Audiobuf

	ready := make(chan struct{}, 1)
	readyRecv := pair.IncomingReadyReceiver(int(lifecycle.Speakers))
	go func() {
		for {
			readyRecv.Recv()
			select {
			case ready <- struct{}{}:
			default:
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	buf := make([]byte, writeChunk)
	for {
		if ctx.Err() != nil {
			return nil
		}
		profile := pair.Profile()

		i2s, err := s.newI2s(configFor(profile))
		if err != nil {
			return apperr.Peripheral(err, "open i2s")
		}
		if err := i2s.EnableTx(); err != nil {
			i2s.Close()
			return apperr.Peripheral(err, "enable i2s tx")
		}

		err = s.drain(ctx, i2s, profile, buf, ready)
		i2s.DisableTx()
		i2s.Close()
		if err != nil {
			return err
		}
		// profile changed (or ctx cancelled): loop to rebuild with the new
		// clock, or exit at the top.
	}
}

// drain pumps the incoming ring into the driver until the profile changes
// or ctx is cancelled. Returns nil in both cases; only driver write
// failures surface an error.
func (s *Service) drain(ctx context.Context, i2s hardware.I2sTx, profile audiobuf.Profile, buf []byte, ready <-chan struct{}) error {
	pair := s.bus.Audiobuf
	for {
		if ctx.Err() != nil {
			return nil
		}
		if pair.Profile() != profile {
			return nil
		}

		n := pair.PopIncoming(buf, profile)
		if n > 0 {
			if err := i2s.WriteAllAsync(ctx, buf[:n]); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return apperr.Peripheral(err, "i2s write")
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ready:
		case <-time.After(50 * time.Millisecond):
			// Periodic re-check: a profile change while parked here would
			// otherwise go unnoticed until the next watermark crossing.
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
