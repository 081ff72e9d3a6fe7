// Package bus wires together every shared signal the service supervisor
// fans out: the system lifecycle record, the audio/call/track state
// machines, the steering-wheel button sets, and the two display records.
// A single Bus is constructed at startup and lives for the process; each
// service gets a BusSubscription binding its lifecycle handle to one
// receiver per topic it needs.
package bus

import (
	"github.com/dougsko/carbridged/pkg/audiobuf"
	"github.com/dougsko/carbridged/pkg/domain"
	"github.com/dougsko/carbridged/pkg/lifecycle"
	"github.com/dougsko/carbridged/pkg/signalbus"
)

// Bus aggregates every broadcast signal shared across services.
type Bus struct {
	System *signalbus.StatefulSignal[lifecycle.System]

	Audio *signalbus.StatefulSignal[domain.AudioState] // A2DP (music)
	Phone *signalbus.StatefulSignal[domain.AudioState] // HFP (voice)
	Track *signalbus.StatefulSignal[domain.TrackInfo]
	Call  *signalbus.StatefulSignal[domain.PhoneCallInfo]
	Radio *signalbus.StatefulSignal[domain.RadioState]

	ButtonsRaw       *signalbus.Signal[domain.ButtonSet]
	ButtonsDebounced *signalbus.Signal[domain.ButtonSet]

	RadioDisplay   *signalbus.StatefulSignal[domain.DisplayText]
	CockpitDisplay *signalbus.StatefulSignal[domain.DisplayText]

	RadioCommands  *signalbus.Signal[domain.BtCommand]
	ButtonCommands *signalbus.Signal[domain.BtCommand]

	Audiobuf *audiobuf.Pair
}

// New allocates a Bus with every signal sized to lifecycle.NumServices
// subscribers, and an audio buffer pair sized per the given ring
// capacities.
func New(incomingCapacity, outgoingCapacity int) *Bus {
	n := lifecycle.NumServices
	return &Bus{
		System: signalbus.NewStatefulSignal(lifecycle.NewSystem(), n),

		Audio: signalbus.NewStatefulSignal(domain.AudioUninitialized, n),
		Phone: signalbus.NewStatefulSignal(domain.AudioUninitialized, n),
		Track: signalbus.NewStatefulSignal(domain.TrackInfo{}, n),
		Call:  signalbus.NewStatefulSignal(domain.PhoneCallInfo{}, n),
		Radio: signalbus.NewStatefulSignal(domain.RadioUnknown, n),

		ButtonsRaw:       signalbus.NewSignal[domain.ButtonSet](n),
		ButtonsDebounced: signalbus.NewSignal[domain.ButtonSet](n),

		RadioDisplay:   signalbus.NewStatefulSignal(domain.DisplayText{}, n),
		CockpitDisplay: signalbus.NewStatefulSignal(domain.DisplayText{}, n),

		RadioCommands:  signalbus.NewSignal[domain.BtCommand](n),
		ButtonCommands: signalbus.NewSignal[domain.BtCommand](n),

		Audiobuf: audiobuf.New(incomingCapacity, outgoingCapacity, n),
	}
}

// Close closes every signal on the bus, unblocking any receiver still
// parked in a Recv so service loops and their wake pumps can unwind at
// process exit. Close is terminal; the bus is not reusable afterwards.
func (b *Bus) Close() {
	b.System.Close()

	b.Audio.Close()
	b.Phone.Close()
	b.Track.Close()
	b.Call.Close()
	b.Radio.Close()

	b.ButtonsRaw.Close()
	b.ButtonsDebounced.Close()

	b.RadioDisplay.Close()
	b.CockpitDisplay.Close()

	b.RadioCommands.Close()
	b.ButtonCommands.Close()

	b.Audiobuf.Close()
}

// Subscription is the per-service handle: a lifecycle handle plus one
// receiver bound to the given service ordinal for every topic on the bus.
// Services reach the bus itself (for Send-side operations) directly through
// their constructor's *Bus argument; Subscription only holds receive ends,
// keeping "what a service can wait on" separate from "what it can publish".
type Subscription struct {
	Service  lifecycle.Service
	Lifecycle *lifecycle.ServiceLifecycle

	System *signalbus.StatefulReceiver[lifecycle.System]

	Audio *signalbus.StatefulReceiver[domain.AudioState]
	Phone *signalbus.StatefulReceiver[domain.AudioState]
	Track *signalbus.StatefulReceiver[domain.TrackInfo]
	Call  *signalbus.StatefulReceiver[domain.PhoneCallInfo]
	Radio *signalbus.StatefulReceiver[domain.RadioState]

	ButtonsRaw       *signalbus.Receiver[domain.ButtonSet]
	ButtonsDebounced *signalbus.Receiver[domain.ButtonSet]

	RadioDisplay   *signalbus.StatefulReceiver[domain.DisplayText]
	CockpitDisplay *signalbus.StatefulReceiver[domain.DisplayText]

	RadioCommands  *signalbus.Receiver[domain.BtCommand]
	ButtonCommands *signalbus.Receiver[domain.BtCommand]
}

// Subscription returns the bound handle for svc. Every receiver is indexed
// by svc's ordinal; a service must never read another service's slot.
func (b *Bus) Subscription(svc lifecycle.Service) *Subscription {
	i := int(svc)
	return &Subscription{
		Service:   svc,
		Lifecycle: lifecycle.NewServiceLifecycle(svc, b.System),

		System: b.System.Receiver(i),

		Audio: b.Audio.Receiver(i),
		Phone: b.Phone.Receiver(i),
		Track: b.Track.Receiver(i),
		Call:  b.Call.Receiver(i),
		Radio: b.Radio.Receiver(i),

		ButtonsRaw:       b.ButtonsRaw.Receiver(i),
		ButtonsDebounced: b.ButtonsDebounced.Receiver(i),

		RadioDisplay:   b.RadioDisplay.Receiver(i),
		CockpitDisplay: b.CockpitDisplay.Receiver(i),

		RadioCommands:  b.RadioCommands.Receiver(i),
		ButtonCommands: b.ButtonCommands.Receiver(i),
	}
}
