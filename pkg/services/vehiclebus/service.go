// Package vehiclebus implements the vehicle-bus service: owns the
// controller, decodes/dispatches incoming frames, mediates the radio's
// audio source against the phone's call/media state, chunks outgoing
// display text, arbitrates the single transmitter among several producers,
// and debounces the steering-wheel button bitmap.
package vehiclebus

import (
	"context"
	"sync"
	"time"

	"github.com/dougsko/carbridged/pkg/apperr"
	"github.com/dougsko/carbridged/pkg/bus"
	"github.com/dougsko/carbridged/pkg/canbus"
	"github.com/dougsko/carbridged/pkg/domain"
	"github.com/dougsko/carbridged/pkg/lifecycle"
	"github.com/dougsko/carbridged/pkg/logging"
	"github.com/dougsko/carbridged/pkg/selectspawn"
	"github.com/dougsko/carbridged/pkg/signalbus"
)

const (
	debounceTick   = 10 * time.Millisecond
	debounceSettle = 100 * time.Millisecond
	chunkDelay     = 10 * time.Millisecond

	// Characters per display chunk: each 8-byte Display::Text frame carries
	// six payload bytes of 6-bit-packed text. The text codec stops before a
	// glyph that would end on the last payload byte, so six bytes hold seven
	// characters.
	chunkChars = 7
)

// outboundFrame is one frame queued for transmission. The single owning
// sendArbitration goroutine drains this channel in arrival order; producers
// never touch the transport directly. A single ordered queue gives every
// producer first-come service without a hand-rolled poll loop over N
// per-producer slots, at the cost of strict priority between producers
// (see DESIGN.md).
type outboundFrame struct {
	id      uint32
	payload []byte
}

// Service is the vehicle-bus service, bound to the Can lifecycle slot.
type Service struct {
	bus          *bus.Bus
	sub          *bus.Subscription
	publisher    canbus.Publisher
	newTransport func() (canbus.Transport, error)

	proxiMu      sync.Mutex
	proxiCached  []byte
	proxiPending bool

	outbound chan outboundFrame
}

// New constructs the vehicle-bus service. publisher is the identifier this
// unit transmits under (the Bt publisher on a deployed device). newTransport
// is called once per enable cycle to (re)open the controller; production
// wires it to canbus.OpenSerialTransport, tests to a func returning a
// *canbus.MockTransport.
func New(b *bus.Bus, publisher canbus.Publisher, newTransport func() (canbus.Transport, error)) *Service {
	return &Service{
		bus:          b,
		sub:          b.Subscription(lifecycle.Can),
		publisher:    publisher,
		newTransport: newTransport,
		outbound:     make(chan outboundFrame, 64),
	}
}

// Run drives the service's full enable/disable lifecycle. On a fatal
// receive or transmit error it tears down the controller and re-enters
// wait_enabled rather than exiting -- the one service-level retry policy in
// the system.
func (s *Service) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		s.sub.Lifecycle.WaitEnabled()
		s.sub.Lifecycle.Starting()
		guard := s.sub.Lifecycle.Started()

		transport, err := s.newTransport()
		if err != nil {
			logging.Errorf("vehiclebus", "open transport: %v", err)
			guard.Release()
			if !sleepCtx(ctx, time.Second) {
				return nil
			}
			continue
		}

		runErr := selectspawn.Race(ctx,
			s.sub.Lifecycle.WaitDisabledCtx,
			func(ctx context.Context) error { return s.recvWorker(ctx, transport) },
			s.radioMuxWorker,
			s.displayFanoutWorker,
			func(ctx context.Context) error { return s.sendArbitrationWorker(ctx, transport) },
			s.debounceWorker,
		)
		transport.Close()
		guard.Release()

		if ctx.Err() != nil {
			return nil
		}
		if runErr != nil {
			logging.Warnf("vehiclebus", "controller run failed, rebuilding: %v", runErr)
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

func (s *Service) enqueue(id uint32, payload []byte) {
	select {
	case s.outbound <- outboundFrame{id: id, payload: payload}:
	default:
		// outbound is generously sized; a full queue means the bus is
		// wedged and dropping beats blocking a producer forever.
		logging.Warnf("vehiclebus", "outbound queue full, dropping frame id=%08x", id)
	}
}

// recvWorker pulls and dispatches frames until the transport errors out.
func (s *Service) recvWorker(ctx context.Context, transport canbus.Transport) error {
	for {
		id, payload, err := transport.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return apperr.Peripheral(err, "vehicle bus receive")
		}
		s.dispatch(canbus.Decode(id, payload))
	}
}

func (s *Service) dispatch(f canbus.Frame) {
	switch f.Topic.Kind {
	case canbus.KindBodyComputer:
		s.dispatchBodyComputer(f.Topic.BodyComputer)
	case canbus.KindProxi:
		s.dispatchProxi(f.Topic.Proxi)
	case canbus.KindSteeringWheel:
		if !f.Topic.SteeringWheel.Unknown {
			s.bus.ButtonsRaw.Send(domain.ButtonSet(f.Topic.SteeringWheel.Buttons))
		}
	case canbus.KindRadioSource:
		s.dispatchRadioSource(f.Topic.RadioSource)
	}
}

func (s *Service) dispatchBodyComputer(op canbus.BodyComputerOp) {
	switch op {
	case canbus.WakeupRequest:
		s.sub.Lifecycle.SysStart()
	case canbus.ShutDownRequest:
		s.sub.Lifecycle.SysStop()
	case canbus.StatusRequest:
		s.enqueue(canbus.Encode(canbus.Frame{
			Publisher: s.publisher,
			Topic:     canbus.Topic{Kind: canbus.KindBodyComputer, BodyComputer: s.statusReply()},
		}))
	}
}

func (s *Service) statusReply() canbus.BodyComputerOp {
	switch s.sub.Lifecycle.GetSysState() {
	case lifecycle.Starting:
		return canbus.PoweringOn
	case lifecycle.Started:
		return canbus.Active
	default: // Stopped, Stopping
		return canbus.AboutToSleep
	}
}

// dispatchProxi implements the probe/response cache: the first Response
// seen is cached and echoed on every subsequent Request. A Request arriving
// before any Response is remembered and flushed as soon as one lands.
func (s *Service) dispatchProxi(p canbus.Proxi) {
	s.proxiMu.Lock()
	defer s.proxiMu.Unlock()

	if p.IsRequest {
		if s.proxiCached != nil {
			s.enqueueProxiReply()
			return
		}
		s.proxiPending = true
		return
	}

	if p.Response != nil {
		if s.proxiCached == nil {
			s.proxiCached = p.Response
		}
		if s.proxiPending {
			s.enqueueProxiReply()
			s.proxiPending = false
		}
	}
}

func (s *Service) enqueueProxiReply() {
	s.enqueue(canbus.Encode(canbus.Frame{
		Publisher: canbus.PublisherParkingSensors,
		Topic:     canbus.Topic{Kind: canbus.KindProxi, Proxi: canbus.Proxi{Response: s.proxiCached}},
	}))
}

func (s *Service) dispatchRadioSource(rs canbus.RadioSource) {
	state := domain.RadioUnknown
	switch {
	case rs.BtPlaying:
		state = domain.RadioBtActive
	case rs.BtMuted:
		state = domain.RadioBtMuted
	case rs.IsFm:
		state = domain.RadioFm
	}
	s.bus.Radio.Modify(func(r *domain.RadioState) bool {
		if *r == state {
			return false
		}
		*r = state
		return true
	})
}

// wakePump forwards wakes from each stateful receiver into ch, coalescing
// into a single-entry channel (newest-state semantics: one wake is enough
// to trigger a re-snapshot). Pump goroutines blocked in Recv past ctx
// cancellation exit on the next wake or when the bus is closed.
type waker interface{ Recv() }

func wakePump(ctx context.Context, ch chan<- struct{}, receivers ...waker) {
	for _, r := range receivers {
		r := r
		go func() {
			for {
				r.Recv()
				select {
				case ch <- struct{}{}:
				default:
				}
				if ctx.Err() != nil {
					return
				}
			}
		}()
	}
}

// radioMuxWorker watches audio/phone/radio state and mediates the head
// unit's audio source against the phone's call and media activity:
// Resume on the rising edge of (radio BT-active and music streaming with no
// call), Pause on the falling edge once the radio has left the BT source,
// and a Bt::Phone source-switch frame when a call goes active while the
// radio is elsewhere.
func (s *Service) radioMuxWorker(ctx context.Context) error {
	wake := make(chan struct{}, 1)
	wakePump(ctx, wake, s.sub.Radio, s.sub.Audio, s.sub.Phone)

	wasBtStreaming := false
	wasPhoneForced := false
	for {
		radio := signalbus.Snapshot(s.sub.Radio, func(r *domain.RadioState) domain.RadioState { return *r })
		audio := signalbus.Snapshot(s.sub.Audio, func(a *domain.AudioState) domain.AudioState { return *a })
		phone := signalbus.Snapshot(s.sub.Phone, func(p *domain.AudioState) domain.AudioState { return *p })

		btStreaming := radio == domain.RadioBtActive && audio == domain.AudioStreaming && !phone.IsActive()
		if btStreaming && !wasBtStreaming {
			s.bus.RadioCommands.Send(domain.CmdResume)
		} else if !btStreaming && wasBtStreaming && radio != domain.RadioBtActive && audio.IsActive() {
			s.bus.RadioCommands.Send(domain.CmdPause)
		}
		wasBtStreaming = btStreaming

		phoneForce := phone.IsActive() && radio != domain.RadioBtActive
		if phoneForce && !wasPhoneForced {
			s.enqueue(canbus.Encode(canbus.Frame{
				Publisher: s.publisher,
				Topic:     canbus.Topic{Kind: canbus.KindBt, Bt: canbus.BtPhone},
			}))
		}
		wasPhoneForced = phoneForce

		select {
		case <-ctx.Done():
			return nil
		case <-wake:
		}
	}
}

type displaySnapshot struct {
	version uint32
	text    string
	menu    bool
}

func snapshotDisplay(r *signalbus.StatefulReceiver[domain.DisplayText]) displaySnapshot {
	return signalbus.Snapshot(r, func(d *domain.DisplayText) displaySnapshot {
		return displaySnapshot{version: d.Version, text: d.Text, menu: d.Menu}
	})
}

// displayFanoutWorker watches the two stateful display records and, on a
// version change, enqueues successive 8-byte Display::Text frames with a
// 10ms inter-chunk delay.
func (s *Service) displayFanoutWorker(ctx context.Context) error {
	wake := make(chan struct{}, 1)
	wakePump(ctx, wake, s.sub.RadioDisplay, s.sub.CockpitDisplay)

	var lastRadio, lastCockpit uint32
	for {
		if rd := snapshotDisplay(s.sub.RadioDisplay); rd.version != lastRadio {
			lastRadio = rd.version
			s.emitChunks(ctx, rd.text, rd.menu, true)
		}
		if cd := snapshotDisplay(s.sub.CockpitDisplay); cd.version != lastCockpit {
			lastCockpit = cd.version
			s.emitChunks(ctx, cd.text, cd.menu, false)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-wake:
		}
	}
}

func (s *Service) emitChunks(ctx context.Context, text string, menu bool, radio bool) {
	total := (len(text) + chunkChars - 1) / chunkChars
	if total == 0 {
		total = 1
	}
	if total > 16 {
		total = 16
	}
	publisher := canbus.PublisherInstrumentPanel
	if radio {
		publisher = canbus.PublisherRadio
	}
	for i := 0; i < total; i++ {
		start := i * chunkChars
		end := start + chunkChars
		if end > len(text) {
			end = len(text)
		}
		id, payload := canbus.Encode(canbus.Frame{
			Publisher: publisher,
			Topic: canbus.Topic{Kind: canbus.KindDisplay, Display: canbus.DisplayChunk{
				TotalChunks: total,
				ChunkIndex:  i,
				Radio:       radio,
				Menu:        menu,
				Text:        text[start:end],
			}},
		})
		s.enqueue(id, payload)
		if !sleepCtx(ctx, chunkDelay) {
			return
		}
	}
}

// sendArbitrationWorker owns the transmitter and drains the outbound queue
// one frame at a time.
func (s *Service) sendArbitrationWorker(ctx context.Context, transport canbus.Transport) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-s.outbound:
			if err := transport.Send(frame.id, frame.payload); err != nil {
				return apperr.Peripheral(err, "vehicle bus transmit")
			}
		}
	}
}

// debounceWorker compares the latest raw button set to the debounced set on
// a 10ms tick; a set that flips must hold steady for 100ms before it is
// committed and published to the debounced signal.
func (s *Service) debounceWorker(ctx context.Context) error {
	settleTicks := int(debounceSettle / debounceTick)

	var latest, debounced, candidate domain.ButtonSet
	candidateTicks := 0
	pending := false

	ticker := time.NewTicker(debounceTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if v, ok := s.sub.ButtonsRaw.TryRecv(); ok {
			latest = v
		}

		if latest == debounced {
			pending = false
			continue
		}
		if !pending || candidate != latest {
			candidate = latest
			candidateTicks = 0
			pending = true
		}
		candidateTicks++
		if candidateTicks >= settleTicks {
			debounced = candidate
			pending = false
			s.bus.ButtonsDebounced.Send(debounced)
		}
	}
}
