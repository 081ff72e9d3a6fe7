// Package signalbus implements the single-producer/multi-consumer broadcast
// primitives that tie the service supervisor together: a plain Signal that
// fans the newest value into one fixed slot per subscriber, and a
// StatefulSignal that pairs that wake with a critical-section-guarded shared
// record carrying its own monotonically increasing version.
//
// There is no hardware interrupt boundary to model on a hosted target: a
// sync.Mutex plus a per-slot condition serves as the critical section, and
// recv blocks the calling goroutine instead of yielding to a cooperative
// executor.
package signalbus

import "sync"

// slot is one subscriber's mailbox: at most one pending value, overwritten
// on every send.
type slot[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	has     bool
	value   T
	closed  bool
}

func newSlot[T any]() *slot[T] {
	s := &slot[T]{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *slot[T]) send(v T) {
	s.mu.Lock()
	s.value = v
	s.has = true
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *slot[T]) recv() T {
	v, _ := s.recvOK()
	return v
}

// recvOK blocks like recv but reports ok=false once the slot is closed
// with no pending value, so shutdown paths can tell "closed" apart from a
// zero-valued send.
func (s *slot[T]) recvOK() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.has && !s.closed {
		s.cond.Wait()
	}
	if !s.has {
		var zero T
		return zero, false
	}
	v := s.value
	s.has = false
	var zero T
	s.value = zero
	return v, true
}

func (s *slot[T]) tryRecv() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.has {
		var zero T
		return zero, false
	}
	v := s.value
	s.has = false
	var zero T
	s.value = zero
	return v, true
}

func (s *slot[T]) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Signal is an SPMC broadcast primitive with one fixed slot per subscriber,
// indexed by subscriber ordinal. Sends replace whatever a slot held; there
// is no queueing and no back-pressure.
type Signal[T any] struct {
	slots []*slot[T]
}

// NewSignal allocates a Signal with one slot per subscriber, numSubscribers
// fixed for the lifetime of the Signal (it mirrors the fixed Service
// cardinality of the system it belongs to).
func NewSignal[T any](numSubscribers int) *Signal[T] {
	s := &Signal[T]{slots: make([]*slot[T], numSubscribers)}
	for i := range s.slots {
		s.slots[i] = newSlot[T]()
	}
	return s
}

// Send fans v into every subscriber's slot, overwriting any unread value.
func (s *Signal[T]) Send(v T) {
	for _, sl := range s.slots {
		sl.send(v)
	}
}

// Receiver returns the receive-only handle for the given subscriber ordinal.
func (s *Signal[T]) Receiver(subscriber int) *Receiver[T] {
	return &Receiver[T]{slot: s.slots[subscriber]}
}

// Close unblocks every pending Recv; used only in tests and shutdown paths.
func (s *Signal[T]) Close() {
	for _, sl := range s.slots {
		sl.close()
	}
}

// Receiver is one subscriber's read end of a Signal.
type Receiver[T any] struct {
	slot *slot[T]
}

// Recv blocks until a value has been sent since the last Recv, then returns
// it. Only the latest value sent is ever observable.
func (r *Receiver[T]) Recv() T {
	return r.slot.recv()
}

// RecvOK blocks like Recv but reports ok=false once the owning Signal has
// been closed and no value is pending -- the shutdown path out of a
// blocked wait.
func (r *Receiver[T]) RecvOK() (T, bool) {
	return r.slot.recvOK()
}

// TryRecv returns the pending value without blocking, or ok=false if the
// slot is empty. Used by tick-driven consumers (the button debouncer) that
// poll rather than wait.
func (r *Receiver[T]) TryRecv() (T, bool) {
	return r.slot.tryRecv()
}
