package audiobuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileIsolation(t *testing.T) {
	p := New(120, 60, 1)
	p.SetProfile(ProfileMusic)

	n := p.PushIncoming([]byte{1, 2, 3}, ProfileVoice, nil)
	assert.Equal(t, 0, n, "push under the wrong profile must be a no-op")

	out := make([]byte, 8)
	got := p.PopIncoming(out, ProfileVoice)
	assert.Equal(t, 0, got, "pop under the wrong profile must be a no-op")
}

func TestSetProfileChangeClearsBothRings(t *testing.T) {
	p := New(120, 60, 1)
	p.SetProfile(ProfileMusic)

	data := make([]byte, 90) // above the music incoming watermark (120/3*2=80)
	p.PushIncoming(data, ProfileMusic, nil)
	p.PushOutgoing([]byte{1, 2, 3}, ProfileMusic)

	p.SetProfile(ProfileVoice)

	out := make([]byte, 200)
	// below the voice watermark immediately after a clear -> still gated to 0
	assert.Equal(t, 0, p.PopIncoming(out, ProfileVoice))

	// Same profile set again is a no-op, must not re-clear.
	fresh := []byte{9, 9, 9}
	p.PushOutgoing(fresh, ProfileVoice)
	p.SetProfile(ProfileVoice)
	gotOut := make([]byte, 8)
	n := p.PopOutgoing(gotOut, ProfileVoice)
	require.Equal(t, 3, n)
}

func TestPopIncomingWatermarkGate(t *testing.T) {
	p := New(120, 60, 1) // music watermark = 120/3*2 = 80
	p.SetProfile(ProfileMusic)

	p.PushIncoming(make([]byte, 40), ProfileMusic, nil)
	out := make([]byte, 200)
	assert.Equal(t, 0, p.PopIncoming(out, ProfileMusic), "below watermark must return 0 even though the ring has bytes")

	p.PushIncoming(make([]byte, 40), ProfileMusic, nil) // total 80, at watermark
	n := p.PopIncoming(out, ProfileMusic)
	assert.Equal(t, 80, n, "at or above watermark, pop releases the primed bytes")
}

func TestIncomingWatermarkSignalsOnce(t *testing.T) {
	p := New(120, 60, 1) // voice watermark = 120/12*2 = 20
	p.SetProfile(ProfileVoice)

	recv := p.IncomingReadyReceiver(0)
	done := make(chan struct{})
	go func() {
		recv.Recv()
		close(done)
	}()

	p.PushIncoming(make([]byte, 25), ProfileVoice, nil)
	<-done // must not hang -- the watermark crossing fired exactly once
}

func TestOutgoingNotifyFiresOnceThenRearmsOnDrain(t *testing.T) {
	p := New(120, 30, 1) // outgoing watermark = 30/3*2 = 20
	p.SetProfile(ProfileVoice)

	p.PushOutgoing(make([]byte, 25), ProfileVoice) // outgoing now above watermark

	fires := 0
	notify := func() { fires++ }

	p.PushIncoming(make([]byte, 1), ProfileVoice, notify)
	p.PushIncoming(make([]byte, 1), ProfileVoice, notify)
	assert.Equal(t, 1, fires, "notify must not re-fire while still above watermark")

	out := make([]byte, 30)
	p.PopOutgoing(out, ProfileVoice) // drains below watermark, rearms

	p.PushOutgoing(make([]byte, 25), ProfileVoice)
	p.PushIncoming(make([]byte, 1), ProfileVoice, notify)
	assert.Equal(t, 2, fires, "a fresh crossing after rearm fires again")
}
