package signalbus

import "sync"

// StatefulSignal pairs a broadcast wake (like Signal[struct{}]) with a
// shared mutable record S guarded by a single mutex. Producers call Modify
// with a function that mutates the record and reports whether the change
// should be observable; only dirty modifications fan out a wake. Consumers
// call Recv to wait for a wake, then State to snapshot the record.
type StatefulSignal[S any] struct {
	mu     sync.Mutex
	state  S
	wake   *Signal[struct{}]
}

// NewStatefulSignal allocates a StatefulSignal with the given initial
// record and subscriber cardinality.
func NewStatefulSignal[S any](initial S, numSubscribers int) *StatefulSignal[S] {
	return &StatefulSignal[S]{
		state: initial,
		wake:  NewSignal[struct{}](numSubscribers),
	}
}

// Modify runs f against the shared record inside a critical section. If f
// reports the record changed, a wake is fanned out to every subscriber.
func (s *StatefulSignal[S]) Modify(f func(*S) bool) {
	s.mu.Lock()
	dirty := f(&s.state)
	s.mu.Unlock()
	if dirty {
		s.wake.Send(struct{}{})
	}
}

// State runs f against a read-locked view of the shared record and returns
// whatever f returns.
func State[S any, R any](s *StatefulSignal[S], f func(*S) R) R {
	s.mu.Lock()
	defer s.mu.Unlock()
	return f(&s.state)
}

// StatefulReceiver is one subscriber's read end of a StatefulSignal.
type StatefulReceiver[S any] struct {
	owner *StatefulSignal[S]
	recv  *Receiver[struct{}]
}

// Receiver returns the receive-only handle for the given subscriber ordinal.
func (s *StatefulSignal[S]) Receiver(subscriber int) *StatefulReceiver[S] {
	return &StatefulReceiver[S]{owner: s, recv: s.wake.Receiver(subscriber)}
}

// Close unblocks every pending Recv; used on process shutdown.
func (s *StatefulSignal[S]) Close() {
	s.wake.Close()
}

// Recv blocks until the record has been modified (dirty) since the last
// Recv on this subscriber.
func (r *StatefulReceiver[S]) Recv() {
	r.recv.Recv()
}

// RecvOK blocks like Recv but reports false once the signal has been
// closed with no pending wake.
func (r *StatefulReceiver[S]) RecvOK() bool {
	_, ok := r.recv.RecvOK()
	return ok
}

// TryRecv consumes a pending wake without blocking, reporting whether one
// was pending.
func (r *StatefulReceiver[S]) TryRecv() bool {
	_, ok := r.recv.TryRecv()
	return ok
}

// State snapshots the current record through f. Callers typically call this
// immediately after Recv, but it is always safe to call on its own.
func (r *StatefulReceiver[S]) State(f func(*S) bool) {
	r.owner.mu.Lock()
	defer r.owner.mu.Unlock()
	f(&r.owner.state)
}

// Snapshot returns a copy of the record produced by f under the lock. This
// is the common read-only case: f reads fields and returns a derived value.
func Snapshot[S any, R any](r *StatefulReceiver[S], f func(*S) R) R {
	r.owner.mu.Lock()
	defer r.owner.mu.Unlock()
	return f(&r.owner.state)
}
