package commands

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougsko/carbridged/pkg/bus"
	"github.com/dougsko/carbridged/pkg/domain"
	"github.com/dougsko/carbridged/pkg/lifecycle"
)

func startService(t *testing.T) (*bus.Bus, *atomic.Int32, context.CancelFunc) {
	t.Helper()
	b := bus.New(256, 256)
	var flashRequests atomic.Int32
	svc := New(b, func() { flashRequests.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Run(ctx)

	b.System.Modify(func(sys *lifecycle.System) bool {
		sys.SetNormalMode()
		sys.SysEnabled = true
		return true
	})
	// Let the worker subscribe before the first button sample.
	time.Sleep(20 * time.Millisecond)
	return b, &flashRequests, cancel
}

// hold delivers set as two consecutive debounced samples, then releases.
// The mediator's edge set is previous ∩ current, so a command fires on the
// second sample.
func hold(b *bus.Bus, set domain.ButtonSet) {
	b.ButtonsDebounced.Send(set)
	time.Sleep(30 * time.Millisecond)
	b.ButtonsDebounced.Send(set)
	time.Sleep(30 * time.Millisecond)
	b.ButtonsDebounced.Send(0)
	time.Sleep(30 * time.Millisecond)
}

func recvCommand(t *testing.T, b *bus.Bus) domain.BtCommand {
	t.Helper()
	r := b.ButtonCommands.Receiver(int(lifecycle.Bt))
	ch := make(chan domain.BtCommand, 1)
	go func() { ch <- r.Recv() }()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for command")
		return 0
	}
}

func setCall(b *bus.Bus, state domain.PhoneCallState) {
	b.Call.Modify(func(c *domain.PhoneCallInfo) bool { c.State = state; c.Version++; return true })
}

func TestAnswerOnMenuWhileRinging(t *testing.T) {
	b, flash, cancel := startService(t)
	defer cancel()

	setCall(b, domain.CallRinging)
	hold(b, domain.ButtonSet(domain.ButtonMenu))

	assert.Equal(t, domain.CmdAnswer, recvCommand(t, b))
	assert.Zero(t, flash.Load())
}

func TestRejectOnDownOrWindowsWhileRinging(t *testing.T) {
	b, flash, cancel := startService(t)
	defer cancel()

	setCall(b, domain.CallRinging)
	hold(b, domain.ButtonSet(domain.ButtonDown))
	assert.Equal(t, domain.CmdReject, recvCommand(t, b))

	hold(b, domain.ButtonSet(domain.ButtonWindows))
	assert.Equal(t, domain.CmdReject, recvCommand(t, b))
	assert.Zero(t, flash.Load())
}

func TestHangupDuringActiveCall(t *testing.T) {
	b, _, cancel := startService(t)
	defer cancel()

	setCall(b, domain.CallActive)
	hold(b, domain.ButtonSet(domain.ButtonWindows))
	assert.Equal(t, domain.CmdHangup, recvCommand(t, b))

	setCall(b, domain.CallDialing)
	hold(b, domain.ButtonSet(domain.ButtonMenu))
	assert.Equal(t, domain.CmdHangup, recvCommand(t, b))
}

func TestMuteTogglesPlayback(t *testing.T) {
	b, _, cancel := startService(t)
	defer cancel()

	b.Radio.Modify(func(r *domain.RadioState) bool { *r = domain.RadioBtActive; return true })
	b.Audio.Modify(func(a *domain.AudioState) bool { *a = domain.AudioStreaming; return true })

	hold(b, domain.ButtonSet(domain.ButtonMute))
	assert.Equal(t, domain.CmdPause, recvCommand(t, b))

	b.Audio.Modify(func(a *domain.AudioState) bool { *a = domain.AudioSuspended; return true })
	hold(b, domain.ButtonSet(domain.ButtonMute))
	assert.Equal(t, domain.CmdResume, recvCommand(t, b))
}

func TestTrackSkipping(t *testing.T) {
	b, _, cancel := startService(t)
	defer cancel()

	b.Radio.Modify(func(r *domain.RadioState) bool { *r = domain.RadioBtActive; return true })
	b.Track.Modify(func(tr *domain.TrackInfo) bool {
		tr.State = domain.TrackPlaying
		tr.Version++
		return true
	})

	hold(b, domain.ButtonSet(domain.ButtonUp))
	assert.Equal(t, domain.CmdPreviousTrack, recvCommand(t, b))

	hold(b, domain.ButtonSet(domain.ButtonDown))
	assert.Equal(t, domain.CmdNextTrack, recvCommand(t, b))
}

func TestNoCommandsWhenRadioNotBtActive(t *testing.T) {
	b, _, cancel := startService(t)
	defer cancel()

	b.Radio.Modify(func(r *domain.RadioState) bool { *r = domain.RadioFm; return true })
	b.Audio.Modify(func(a *domain.AudioState) bool { *a = domain.AudioStreaming; return true })

	hold(b, domain.ButtonSet(domain.ButtonMute))

	r := b.ButtonCommands.Receiver(int(lifecycle.Bt))
	_, ok := r.TryRecv()
	assert.False(t, ok)
}

func TestFlashBackdoorComboInsideBootWindow(t *testing.T) {
	b, flash, cancel := startService(t)
	defer cancel()

	combo := domain.ButtonSet(domain.ButtonWindows).Union(domain.ButtonSet(domain.ButtonMute))
	hold(b, combo)

	require.Eventually(t, func() bool { return flash.Load() > 0 }, time.Second, 5*time.Millisecond)
}

func TestConfModeSwallowsCommandsWhileIdle(t *testing.T) {
	b, flash, cancel := startService(t)
	defer cancel()

	b.Radio.Modify(func(r *domain.RadioState) bool { *r = domain.RadioBtActive; return true })
	b.Audio.Modify(func(a *domain.AudioState) bool { *a = domain.AudioStreaming; return true })

	hold(b, domain.ButtonSet(domain.ButtonWindows)) // enter conf
	hold(b, domain.ButtonSet(domain.ButtonMute))

	r := b.ButtonCommands.Receiver(int(lifecycle.Bt))
	_, ok := r.TryRecv()
	assert.False(t, ok)

	hold(b, domain.ButtonSet(domain.ButtonWindows)) // back to run
	hold(b, domain.ButtonSet(domain.ButtonMute))
	assert.Equal(t, domain.CmdPause, recvCommand(t, b))
	assert.Zero(t, flash.Load(), "bare Windows presses must not trigger the backdoor")
}

// An active call overrides conf mode: the stub must never be able to
// swallow answer/reject/hangup.
func TestActiveCallForcesRunMode(t *testing.T) {
	b, _, cancel := startService(t)
	defer cancel()

	hold(b, domain.ButtonSet(domain.ButtonWindows)) // enter conf while idle
	setCall(b, domain.CallRinging)

	hold(b, domain.ButtonSet(domain.ButtonMenu))
	assert.Equal(t, domain.CmdAnswer, recvCommand(t, b))
}
