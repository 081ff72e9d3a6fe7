package signalbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalCoalescing(t *testing.T) {
	s := NewSignal[int](1)
	r := s.Receiver(0)

	s.Send(1)
	s.Send(2)

	got := recvWithTimeout(t, r)
	assert.Equal(t, 2, got)

	assertBlocks(t, r)
}

func TestSignalFanOutToAllSubscribers(t *testing.T) {
	s := NewSignal[string](3)
	s.Send("hello")

	for i := 0; i < 3; i++ {
		assert.Equal(t, "hello", recvWithTimeout(t, s.Receiver(i)))
	}
}

func recvWithTimeout[T any](t *testing.T, r *Receiver[T]) T {
	t.Helper()
	ch := make(chan T, 1)
	go func() { ch <- r.Recv() }()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Recv")
		var zero T
		return zero
	}
}

func assertBlocks(t *testing.T, r *Receiver[int]) {
	t.Helper()
	ch := make(chan int, 1)
	go func() { ch <- r.Recv() }()
	select {
	case <-ch:
		t.Fatal("Recv returned without a new Send")
	case <-time.After(50 * time.Millisecond):
	}
}

type counterState struct {
	version int
	value   int
}

func TestStatefulSignalVersioning(t *testing.T) {
	ss := NewStatefulSignal(counterState{}, 1)
	r := ss.Receiver(0)

	ss.Modify(func(s *counterState) bool {
		s.value = 5
		s.version++
		return true
	})

	r.Recv()
	got := Snapshot(r, func(s *counterState) counterState { return *s })
	require.Equal(t, 1, got.version)
	assert.Equal(t, 5, got.value)

	ss.Modify(func(s *counterState) bool {
		s.value = 6
		s.version++
		return true
	})
	ss.Modify(func(s *counterState) bool {
		s.value = 7
		s.version++
		return true
	})

	r.Recv()
	got = Snapshot(r, func(s *counterState) counterState { return *s })
	assert.Equal(t, 3, got.version)
	assert.Equal(t, 7, got.value)
}

func TestStatefulSignalNonDirtyModifyDoesNotWake(t *testing.T) {
	ss := NewStatefulSignal(counterState{}, 1)
	r := ss.Receiver(0)

	ss.Modify(func(s *counterState) bool {
		s.value = 1
		return false
	})

	ch := make(chan struct{}, 1)
	go func() { r.Recv(); ch <- struct{}{} }()

	select {
	case <-ch:
		t.Fatal("Recv woke on a non-dirty Modify")
	case <-time.After(50 * time.Millisecond):
	}
}
