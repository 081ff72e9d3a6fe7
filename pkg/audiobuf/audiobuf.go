// Package audiobuf implements the audio buffer pair: the incoming
// (speaker-bound) and outgoing (microphone/HFP-bound) ring buffers that sit
// between the bluetooth service, the microphone service, and the speaker
// service, plus the music/voice profile flag that gates which producer and
// consumer may touch them at any moment.
package audiobuf

import (
	"sync"

	"github.com/dougsko/carbridged/pkg/ringbuf"
	"github.com/dougsko/carbridged/pkg/signalbus"
)

// Profile selects which audio path currently owns the buffer pair: stereo
// 44.1kHz music from the A2DP sink, or mono 8kHz voice from the HFP link.
type Profile int

const (
	ProfileMusic Profile = iota
	ProfileVoice
)

func (p Profile) String() string {
	if p == ProfileVoice {
		return "voice"
	}
	return "music"
}

// Pair is the shared incoming/outgoing ring buffer pair plus the current
// profile. All mutation happens under mu; outgoingNotify is invoked outside
// the lock so the caller-supplied hook can itself touch the bus.
type Pair struct {
	mu  sync.Mutex
	in  *ringbuf.RingBuf
	out *ringbuf.RingBuf

	profile Profile

	incomingReady *signalbus.Signal[struct{}]

	outgoingArmed bool // true once below outgoingWatermark again, so the next crossing re-fires
}

// New allocates a Pair with the given incoming/outgoing ring capacities.
// numSubscribers sizes the internal "incoming ready" signal the same way
// every other bus signal is sized, even though in practice only the
// speaker service ever receives on it.
func New(incomingCapacity, outgoingCapacity, numSubscribers int) *Pair {
	return &Pair{
		in:            ringbuf.New(incomingCapacity),
		out:           ringbuf.New(outgoingCapacity),
		incomingReady: signalbus.NewSignal[struct{}](numSubscribers),
		outgoingArmed: true,
	}
}

// IncomingReadyReceiver returns the receive handle a consumer (the speaker
// service) awaits when it finds the incoming ring below its watermark.
func (p *Pair) IncomingReadyReceiver(subscriber int) *signalbus.Receiver[struct{}] {
	return p.incomingReady.Receiver(subscriber)
}

// Close closes the internal ready signal, unblocking any parked consumer at
// process exit.
func (p *Pair) Close() {
	p.incomingReady.Close()
}

// incomingWatermark returns the incoming ring's priming threshold for the
// given profile: 2/3 capacity for music, 1/6 for voice. The integer
// division order (capacity/3*2, capacity/12*2) is part of the contract;
// do not refactor it into a mathematically equivalent form.
func incomingWatermark(capacity int, profile Profile) int {
	if profile == ProfileVoice {
		return capacity / 12 * 2
	}
	return capacity / 3 * 2
}

// outgoingWatermark returns the outgoing ring's "ready to send" threshold.
// Only meaningful in the voice profile; music never drains the outgoing
// side through this mechanism.
func outgoingWatermark(capacity int) int {
	return capacity / 3 * 2
}

// SetProfile switches the active profile. If this observes an actual
// change, both rings are cleared -- this is what prevents a stale tail of
// music frames from bleeding into a freshly started voice path, or vice
// versa.
func (p *Pair) SetProfile(profile Profile) {
	p.mu.Lock()
	changed := p.profile != profile
	if changed {
		p.profile = profile
		p.in.Clear()
		p.out.Clear()
		p.outgoingArmed = true
	}
	p.mu.Unlock()
}

// Profile returns the currently active profile.
func (p *Pair) Profile() Profile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profile
}

// IsProfile reports whether profile is currently active.
func (p *Pair) IsProfile(profile Profile) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profile == profile
}

// PushIncoming appends data to the incoming (speaker-bound) ring if
// profile matches the pair's current profile; otherwise it is a silent
// no-op, returning 0. outgoingNotify, if non-nil, is invoked once every
// time this call observes the *outgoing* ring has risen to or past its own
// watermark since the last time it was read down below it (voice profile
// only) -- this is the hook the HFP stack uses to request a send, checked
// opportunistically on every incoming frame rather than only when the
// microphone itself pushes, so both rings stay coupled under the one
// critical section.
func (p *Pair) PushIncoming(data []byte, profile Profile, outgoingNotify func()) int {
	p.mu.Lock()
	if p.profile != profile {
		p.mu.Unlock()
		return 0
	}
	before := p.in.Len()
	n := p.in.Push(data)
	crossedIncoming := before < incomingWatermark(p.in.Capacity(), profile) && n >= incomingWatermark(p.in.Capacity(), profile)

	fireOutgoing := false
	if profile == ProfileVoice && p.outgoingArmed && p.out.Len() >= outgoingWatermark(p.out.Capacity()) {
		p.outgoingArmed = false
		fireOutgoing = true
	}
	p.mu.Unlock()

	if crossedIncoming {
		p.incomingReady.Send(struct{}{})
	}
	if fireOutgoing && outgoingNotify != nil {
		outgoingNotify()
	}
	return n
}

// PopIncoming drains up to len(out) bytes from the incoming ring, but only
// once the ring is at or above its watermark for the requested profile;
// below the watermark it returns 0 even if the ring holds bytes. This is
// what primes the buffer fully before the speaker releases its first
// sample after a (re)start or a profile switch, and is not a simplification
// target -- a bare profile-match check would reintroduce the glitch this
// gate exists to prevent.
func (p *Pair) PopIncoming(out []byte, profile Profile) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.profile != profile {
		return 0
	}
	if p.in.Len() < incomingWatermark(p.in.Capacity(), profile) {
		return 0
	}
	return p.in.Pop(out)
}

// PushOutgoing appends data to the outgoing (mic/HFP-bound) ring if
// profile matches. Used by the microphone service; a no-op under the
// wrong profile.
func (p *Pair) PushOutgoing(data []byte, profile Profile) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.profile != profile {
		return 0
	}
	return p.out.Push(data)
}

// PushOutgoingByte is the byte-granular form the microphone packer uses
// when upmixing ADC samples one byte at a time.
func (p *Pair) PushOutgoingByte(b byte, profile Profile) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.profile != profile {
		return 0
	}
	return p.out.PushByte(b)
}

// PopOutgoing drains up to len(out) bytes from the outgoing ring if
// profile matches the current profile.
func (p *Pair) PopOutgoing(out []byte, profile Profile) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.profile != profile {
		return 0
	}
	n := p.out.Pop(out)
	if p.out.Len() < outgoingWatermark(p.out.Capacity()) {
		p.outgoingArmed = true
	}
	return n
}
