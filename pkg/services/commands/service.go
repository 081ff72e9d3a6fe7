// Package commands implements the command mediator: it joins call, audio,
// track and radio state with the debounced steering-wheel buttons and emits
// transport commands to the bluetooth service, plus the boot-window flash
// backdoor and a stubbed configuration mode.
package commands

import (
	"context"
	"time"

	"github.com/dougsko/carbridged/pkg/bus"
	"github.com/dougsko/carbridged/pkg/domain"
	"github.com/dougsko/carbridged/pkg/lifecycle"
	"github.com/dougsko/carbridged/pkg/logging"
	"github.com/dougsko/carbridged/pkg/selectspawn"
	"github.com/dougsko/carbridged/pkg/signalbus"
)

// flashWindow is how long after service enable the flash backdoor combo is
// recognized. The flag starts true at enable and flips false exactly once.
const flashWindow = 3 * time.Second

type mediatorMode int

const (
	modeRun mediatorMode = iota
	modeConf
)

// status is the mediator's local join of the five watched signals.
type status struct {
	audio domain.AudioState
	phone domain.AudioState
	track domain.TrackInfo
	call  domain.PhoneCallInfo
	radio domain.RadioState
}

// Service is the command mediator, bound to the Commands lifecycle slot.
type Service struct {
	bus *bus.Bus
	sub *bus.Subscription

	// onFlashRequest fires when the backdoor combo is seen inside the boot
	// window; the engine wires it to service-mode entry plus the GPIO flash
	// sequence.
	onFlashRequest func()
}

func New(b *bus.Bus, onFlashRequest func()) *Service {
	return &Service{bus: b, sub: b.Subscription(lifecycle.Commands), onFlashRequest: onFlashRequest}
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

func (s *Service) snapshot() status {
	return status{
		audio: signalbus.Snapshot(s.sub.Audio, func(a *domain.AudioState) domain.AudioState { return *a }),
		phone: signalbus.Snapshot(s.sub.Phone, func(p *domain.AudioState) domain.AudioState { return *p }),
		track: signalbus.Snapshot(s.sub.Track, func(t *domain.TrackInfo) domain.TrackInfo { return *t }),
		call:  signalbus.Snapshot(s.sub.Call, func(c *domain.PhoneCallInfo) domain.PhoneCallInfo { return *c }),
		radio: signalbus.Snapshot(s.sub.Radio, func(r *domain.RadioState) domain.RadioState { return *r }),
	}
}

func (s *Service) worker(ctx context.Context) error {
	armedUntil := time.Now().Add(flashWindow)

	buttons := make(chan domain.ButtonSet, 8)
	go func() {
		for {
			v := s.sub.ButtonsDebounced.Recv()
			select {
			case buttons <- v:
			default:
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	mode := modeRun
	var prev domain.ButtonSet
	for {
		select {
		case <-ctx.Done():
			return nil
		case cur := <-buttons:
			// The edge set is previous ∩ current: buttons pressed in the
			// previous sample AND still pressed now. See DESIGN.md -- a
			// true rising edge would be current \ previous; the held-set
			// form is kept as-is because every tuned interaction is
			// calibrated against it.
			justPressed := prev.Intersect(cur)
			prev = cur

			st := s.snapshot()

			if st.call.State.IsActive() {
				// An active call always forces run mode, so the conf stub
				// can never swallow answer/reject/hangup. Windows keeps its
				// in-call meaning; the toggle only exists while idle.
				mode = modeRun
			} else if justPressed.Contains(domain.ButtonWindows) {
				if time.Now().Before(armedUntil) && cur.Contains(domain.ButtonMute) {
					logging.Warn("commands", "flash backdoor combo recognized inside boot window")
					if s.onFlashRequest != nil {
						s.onFlashRequest()
					}
					continue
				}
				if mode == modeRun {
					mode = modeConf
				} else {
					mode = modeRun
				}
				continue
			}

			if mode == modeConf {
				// Configuration mode is a stub: buttons are swallowed until
				// the mode is toggled back.
				continue
			}

			if cmd, ok := s.decide(justPressed, st); ok {
				s.bus.ButtonCommands.Send(cmd)
			}
		}
	}
}

// decide implements the run-mode decision table.
func (s *Service) decide(pressed domain.ButtonSet, st status) (domain.BtCommand, bool) {
	switch st.call.State {
	case domain.CallRinging:
		if pressed.Contains(domain.ButtonMenu) {
			return domain.CmdAnswer, true
		}
		if pressed.Contains(domain.ButtonDown) || pressed.Contains(domain.ButtonWindows) {
			return domain.CmdReject, true
		}
	case domain.CallDialing, domain.CallDialingAlerting, domain.CallActive:
		if pressed.Contains(domain.ButtonMenu) || pressed.Contains(domain.ButtonWindows) {
			return domain.CmdHangup, true
		}
	case domain.CallIdle:
		if !st.radio.IsBtActive() {
			break
		}
		if st.audio.IsConnected() && pressed.Contains(domain.ButtonMute) {
			if st.audio == domain.AudioStreaming {
				return domain.CmdPause, true
			}
			return domain.CmdResume, true
		}
		if st.track.IsConnected() {
			if pressed.Contains(domain.ButtonUp) {
				return domain.CmdPreviousTrack, true
			}
			if pressed.Contains(domain.ButtonDown) {
				return domain.CmdNextTrack, true
			}
		}
	}
	return 0, false
}
