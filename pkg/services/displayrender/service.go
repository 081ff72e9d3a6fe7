// Package displayrender implements the display renderer services: the
// radio-display formatter that folds call and track state into the stateful
// radio display record, and the cockpit-display placeholder that holds the
// lifecycle slot for the not-yet-implemented cockpit formatter.
package displayrender

import (
	"context"

	"github.com/dougsko/carbridged/pkg/bus"
	"github.com/dougsko/carbridged/pkg/domain"
	"github.com/dougsko/carbridged/pkg/lifecycle"
	"github.com/dougsko/carbridged/pkg/selectspawn"
	"github.com/dougsko/carbridged/pkg/signalbus"
)

// Radio formats call/track info into the radio display record whenever the
// head unit has the phone's source selected.
type Radio struct {
	bus *bus.Bus
	sub *bus.Subscription
}

func NewRadio(b *bus.Bus) *Radio {
	return &Radio{bus: b, sub: b.Subscription(lifecycle.RadioDisplay)}
}

// Run drives the service's enable/disable lifecycle.
func (s *Radio) Run(ctx context.Context) error {
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

type waker interface{ Recv() }

func (s *Radio) worker(ctx context.Context) error {
	wake := make(chan struct{}, 1)
	for _, r := range []waker{s.sub.Radio, s.sub.Call, s.sub.Track} {
		r := r
		go func() {
			for {
				r.Recv()
				select {
				case wake <- struct{}{}:
				default:
				}
				if ctx.Err() != nil {
					return
				}
			}
		}()
	}

	var lastCall, lastTrack uint32
	for {
		radio := signalbus.Snapshot(s.sub.Radio, func(r *domain.RadioState) domain.RadioState { return *r })
		call := signalbus.Snapshot(s.sub.Call, func(c *domain.PhoneCallInfo) domain.PhoneCallInfo { return *c })
		track := signalbus.Snapshot(s.sub.Track, func(t *domain.TrackInfo) domain.TrackInfo { return *t })

		if radio.IsBtActive() {
			switch {
			case call.State.IsActive() && call.Version != lastCall:
				lastCall = call.Version
				s.bus.RadioDisplay.Modify(func(d *domain.DisplayText) bool {
					d.UpdatePhoneInfo(call)
					d.Menu = false
					d.Version++
					return true
				})
			case !call.State.IsActive() && track.IsConnected() && track.Version != lastTrack:
				lastTrack = track.Version
				s.bus.RadioDisplay.Modify(func(d *domain.DisplayText) bool {
					d.UpdateTrackInfo(track)
					d.Menu = false
					d.Version++
					return true
				})
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-wake:
		}
	}
}

// Cockpit holds the CockpitDisplay lifecycle slot. The cockpit formatter is
// a known, documented gap: the display record exists and the vehicle-bus
// chunked emitter would fan it out, but nothing writes to it yet.
type Cockpit struct {
	sub *bus.Subscription
}

func NewCockpit(b *bus.Bus) *Cockpit {
	return &Cockpit{sub: b.Subscription(lifecycle.CockpitDisplay)}
}

// Run marks the slot started while enabled and otherwise idles.
func (s *Cockpit) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		guard := s.sub.Lifecycle.StartedWhenEnabled()

		selectspawn.Race(ctx, s.sub.Lifecycle.WaitDisabledCtx, func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		})
		guard.Release()

		if ctx.Err() != nil {
			return nil
		}
	}
}
