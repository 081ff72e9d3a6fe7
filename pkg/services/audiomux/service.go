// Package audiomux implements the audio mux service: a single-subscriber
// loop that watches the phone (HFP) audio state and flips the shared audio
// buffer pair between the music and voice profiles. The buffer pair itself
// clears both rings on an observed profile change.
package audiomux

import (
	"context"

	"github.com/dougsko/carbridged/pkg/audiobuf"
	"github.com/dougsko/carbridged/pkg/bus"
	"github.com/dougsko/carbridged/pkg/domain"
	"github.com/dougsko/carbridged/pkg/lifecycle"
	"github.com/dougsko/carbridged/pkg/selectspawn"
	"github.com/dougsko/carbridged/pkg/signalbus"
)

// Service is the audio mux, bound to the AudioMux lifecycle slot.
type Service struct {
	bus *bus.Bus
	sub *bus.Subscription
}

func New(b *bus.Bus) *Service {
	return &Service{bus: b, sub: b.Subscription(lifecycle.AudioMux)}
}

// Run drives the service's enable/disable lifecycle.
func (s *Service) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		guard := s.sub.Lifecycle.StartedWhenEnabled()

		selectspawn.Race(ctx, s.sub.Lifecycle.WaitDisabledCtx, s.worker)
		guard.Release()

		if ctx.Err() != nil {
			return nil
		}
	}
}

// worker applies the profile on every phone-state wake: voice while HFP
// audio is streaming, music otherwise.
func (s *Service) worker(ctx context.Context) error {
	wake := make(chan struct{}, 1)
	go func() {
		for {
			s.sub.Phone.Recv()
			select {
			case wake <- struct{}{}:
			default:
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	for {
		phone := signalbus.Snapshot(s.sub.Phone, func(p *domain.AudioState) domain.AudioState { return *p })
		profile := audiobuf.ProfileMusic
		if phone == domain.AudioStreaming {
			profile = audiobuf.ProfileVoice
		}
		s.bus.Audiobuf.SetProfile(profile)

		select {
		case <-ctx.Done():
			return nil
		case <-wake:
		}
	}
}
