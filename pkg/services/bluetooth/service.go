// Package bluetooth implements the bluetooth service: brings the
// GAP/AVRCC/A2DP-sink/HFP-client stack up per enabled run, translates every
// profile callback into a bus publication or an audio buffer push, and
// executes transport commands arriving from the radio mux and the command
// mediator.
package bluetooth

import (
	"context"
	"strconv"
	"time"

	"github.com/dougsko/carbridged/pkg/apperr"
	"github.com/dougsko/carbridged/pkg/audiobuf"
	"github.com/dougsko/carbridged/pkg/bus"
	"github.com/dougsko/carbridged/pkg/domain"
	"github.com/dougsko/carbridged/pkg/hardware"
	"github.com/dougsko/carbridged/pkg/lifecycle"
	"github.com/dougsko/carbridged/pkg/logging"
	"github.com/dougsko/carbridged/pkg/selectspawn"
)

// a2dpSettleDelay absorbs the connection jitter some phones produce right
// after the A2DP profile comes up.
const a2dpSettleDelay = 150 * time.Millisecond

// Config is the bluetooth identity presented to pairing phones.
type Config struct {
	DeviceName   string
	Pin          string
	Discoverable bool
}

// Service is the bluetooth service, bound to the Bt lifecycle slot.
type Service struct {
	bus   *bus.Bus
	sub   *bus.Subscription
	cfg   Config
	stack hardware.BluetoothStack
}

// New constructs the bluetooth service against the given stack. The stack
// is the shared modem resource; the wifi service uses the same silicon in
// update mode, and the two are mutually exclusive by mode construction.
func New(b *bus.Bus, cfg Config, stack hardware.BluetoothStack) *Service {
	return &Service{bus: b, sub: b.Subscription(lifecycle.Bt), cfg: cfg, stack: stack}
}

// RequestOutgoingData prompts the HFP stack to pull queued voice samples.
// The microphone service calls this after packing each captured frame.
func (s *Service) RequestOutgoingData() {
	if err := s.stack.RequestOutgoingDataReady(); err != nil {
		logging.Debugf("bluetooth", "outgoing data ready request: %v", err)
	}
}

// Run drives the service's enable/disable lifecycle: initialize the stack,
// bind every event handler, then sit on the command streams until disabled.
func (s *Service) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		s.sub.Lifecycle.WaitEnabled()
		s.sub.Lifecycle.Starting()
		guard := s.sub.Lifecycle.Started()

		if err := s.initialize(ctx); err != nil {
			logging.Errorf("bluetooth", "stack init: %v", err)
			guard.Release()
			if !sleepCtx(ctx, time.Second) {
				return nil
			}
			continue
		}

		runErr := selectspawn.Race(ctx,
			s.sub.Lifecycle.WaitDisabledCtx,
			s.commandsWorker,
		)
		s.stack.Close()
		guard.Release()

		if ctx.Err() != nil {
			return nil
		}
		if runErr != nil {
			logging.Warnf("bluetooth", "run failed, reinitializing: %v", runErr)
		}
	}
}

func (s *Service) initialize(ctx context.Context) error {
	s.bindHandlers()
	if err := s.stack.Initialize(s.cfg.DeviceName, s.cfg.Pin, s.cfg.Discoverable); err != nil {
		return apperr.Peripheral(err, "bluetooth stack initialize")
	}
	sleepCtx(ctx, a2dpSettleDelay)
	return nil
}

// bindHandlers registers every profile callback. Handlers run on the
// stack's own driver contexts and touch only the audio buffer pair and the
// bus signals, both of which take their own critical sections.
func (s *Service) bindHandlers() {
	pair := s.bus.Audiobuf

	s.stack.OnA2dp(func(e hardware.A2dpEvent) {
		state, ok := a2dpAudioState(e)
		if !ok {
			return
		}
		s.bus.Audio.Modify(func(a *domain.AudioState) bool {
			if *a == state {
				return false
			}
			*a = state
			return true
		})
	})

	s.stack.OnA2dpSinkData(func(data []byte) {
		pair.PushIncoming(data, audiobuf.ProfileMusic, nil)
	})

	s.stack.OnAvrccConnected(func() {
		s.bus.Track.Modify(func(t *domain.TrackInfo) bool {
			t.State = domain.TrackConnected
			t.Version++
			return true
		})
		s.registerAvrccNotifications()
	})

	s.stack.OnAvrccNotification(s.handleAvrccNotification)
	s.stack.OnAvrccMetadata(s.handleAvrccMetadata)

	s.stack.OnHfpConnectionState(func(state hardware.HfpConnectionState) {
		phone := domain.AudioInitialized
		if state == hardware.HfpConnected {
			phone = domain.AudioConnected
		}
		s.bus.Phone.Modify(func(p *domain.AudioState) bool {
			if *p == phone {
				return false
			}
			*p = phone
			return true
		})
	})

	s.stack.OnHfpAudioState(func(streaming bool) {
		state := domain.AudioSuspended
		if streaming {
			state = domain.AudioStreaming
		}
		s.bus.Phone.Modify(func(p *domain.AudioState) bool {
			if *p == state {
				return false
			}
			*p = state
			return true
		})
	})

	s.stack.OnHfpCallSetupState(func(setup hardware.HfpCallSetupState) {
		state, ok := callSetupState(setup)
		if !ok {
			return
		}
		s.bus.Call.Modify(func(c *domain.PhoneCallInfo) bool {
			c.State = state
			c.Version++
			return true
		})
		s.stack.RequestCurrentCalls()
	})

	s.stack.OnHfpCallState(func(active bool) {
		s.bus.Call.Modify(func(c *domain.PhoneCallInfo) bool {
			if active {
				c.State = domain.CallActive
			} else {
				c.Reset()
				c.State = domain.CallIdle
			}
			c.Version++
			return true
		})
		if active {
			s.stack.RequestCurrentCalls()
		}
	})

	s.stack.OnHfpRecvData(func(data []byte) {
		pair.PushIncoming(data, audiobuf.ProfileVoice, func() {
			s.stack.RequestOutgoingDataReady()
		})
	})

	s.stack.OnHfpSendData(func(out []byte) int {
		return pair.PopOutgoing(out, audiobuf.ProfileVoice)
	})
}

// registerAvrccNotifications arms the three playback notifications and the
// batched metadata request the controller answers with. AVRCP notification
// registration is fire-once: each registration produces exactly one
// callback, so this runs again on every connected/notification event --
// skipping the re-arm would leave position and play-state tracking
// permanently stale after their first delivery.
func (s *Service) registerAvrccNotifications() {
	s.stack.RegisterAvrccNotification(hardware.NotifyPlaybackPosition, 1000)
	s.stack.RegisterAvrccNotification(hardware.NotifyPlayback, 0)
	s.stack.RegisterAvrccNotification(hardware.NotifyTrackChanged, 0)
	s.stack.RequestAvrccMetadata(
		hardware.MetaTitle,
		hardware.MetaArtist,
		hardware.MetaAlbum,
		hardware.MetaPlayingTime,
	)
}

func (s *Service) handleAvrccNotification(e hardware.AvrccNotificationEvent) {
	s.registerAvrccNotifications()

	switch e.Kind {
	case hardware.NotifyPlayback:
		s.bus.Track.Modify(func(t *domain.TrackInfo) bool {
			if e.Playback == hardware.PlaybackStopped {
				t.Reset()
			} else {
				t.Paused = e.Playback == hardware.PlaybackPaused
				if t.Paused {
					t.State = domain.TrackPaused
				} else {
					t.State = domain.TrackPlaying
				}
			}
			t.Version++
			return true
		})
	case hardware.NotifyTrackChanged:
		s.bus.Track.Modify(func(t *domain.TrackInfo) bool {
			t.Reset()
			t.Version++
			return true
		})
	case hardware.NotifyPlaybackPosition:
		s.bus.Track.Modify(func(t *domain.TrackInfo) bool {
			t.Offset = e.PositionMs / 1000
			t.Version++
			return true
		})
	}
}

func (s *Service) handleAvrccMetadata(field hardware.AvrccMetadataField, value string) {
	s.bus.Track.Modify(func(t *domain.TrackInfo) bool {
		switch field {
		case hardware.MetaTitle:
			t.Song = value
		case hardware.MetaArtist:
			t.Artist = value
		case hardware.MetaAlbum:
			t.Album = value
		case hardware.MetaPlayingTime:
			ms, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return false
			}
			t.Duration = uint32(ms / 1000)
		}
		t.Version++
		return true
	})
}

// commandsWorker consumes the radio-mux and command-mediator streams and
// dispatches each transport command against the stack.
func (s *Service) commandsWorker(ctx context.Context) error {
	cmds := make(chan domain.BtCommand, 8)
	pump := func(recv func() domain.BtCommand) {
		for {
			c := recv()
			select {
			case cmds <- c:
			default:
			}
			if ctx.Err() != nil {
				return
			}
		}
	}
	go pump(s.sub.RadioCommands.Recv)
	go pump(s.sub.ButtonCommands.Recv)

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-cmds:
			s.dispatchCommand(cmd)
		}
	}
}

func (s *Service) dispatchCommand(cmd domain.BtCommand) {
	var err error
	switch cmd {
	case domain.CmdAnswer:
		err = s.stack.Answer()
	case domain.CmdReject:
		err = s.stack.Reject()
	case domain.CmdHangup:
		err = s.stack.Hangup()
	case domain.CmdPause:
		err = s.stack.AvrccPassthrough(hardware.KeyPause)
	case domain.CmdResume:
		err = s.stack.AvrccPassthrough(hardware.KeyPlay)
	case domain.CmdNextTrack:
		err = s.stack.AvrccPassthrough(hardware.KeyChannelUp)
	case domain.CmdPreviousTrack:
		err = s.stack.AvrccPassthrough(hardware.KeyChannelDown)
	}
	if err != nil {
		logging.Warnf("bluetooth", "command %d failed: %v", cmd, err)
	}
}

func a2dpAudioState(e hardware.A2dpEvent) (domain.AudioState, bool) {
	switch e {
	case hardware.A2dpInitialized:
		return domain.AudioInitialized, true
	case hardware.A2dpDeinitialized:
		return domain.AudioUninitialized, true
	case hardware.A2dpConnected:
		return domain.AudioConnected, true
	case hardware.A2dpDisconnected:
		return domain.AudioInitialized, true
	case hardware.A2dpAudioStarted:
		return domain.AudioStreaming, true
	case hardware.A2dpAudioSuspended:
		return domain.AudioSuspended, true
	case hardware.A2dpAudioStopped:
		return domain.AudioConnected, true
	default:
		return domain.AudioUninitialized, false
	}
}

func callSetupState(s hardware.HfpCallSetupState) (domain.PhoneCallState, bool) {
	switch s {
	case hardware.CallSetupIncoming:
		return domain.CallRinging, true
	case hardware.CallSetupOutgoing:
		return domain.CallDialing, true
	case hardware.CallSetupAlerting:
		return domain.CallDialingAlerting, true
	default:
		return domain.CallIdle, false
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
