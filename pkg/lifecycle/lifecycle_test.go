package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougsko/carbridged/pkg/signalbus"
)

func TestSystemStateSixCases(t *testing.T) {
	always := NewServiceSet(Can)
	other := NewServiceSet(Bt)

	cases := []struct {
		name    string
		sys     System
		want    SystemState
	}{
		{"stopped", System{AlwaysOn: always, Started: 0, SysEnabled: false}, Stopped},
		{"stopping", System{AlwaysOn: always, Started: always.Union(other), SysEnabled: false}, Stopping},
		{"starting_from_nothing", System{AlwaysOn: always, Enabled: other, Started: 0, SysEnabled: true}, Starting},
		{"starting_partial", System{AlwaysOn: always, Enabled: other, Started: always, SysEnabled: true}, Starting},
		{"started", System{AlwaysOn: always, Enabled: other, Started: always.Union(other), SysEnabled: true}, Started},
		{"stopped_always_on_only_disabled", System{AlwaysOn: always, Started: always, SysEnabled: false}, Stopped},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.sys.GetState())
		})
	}
}

func TestModeTransitions(t *testing.T) {
	sys := NewSystem()

	sys.SetNormalMode()
	assert.False(t, sys.Enabled.Contains(Wifi))
	assert.False(t, sys.Enabled.Contains(Can)) // always-on, excluded from Enabled
	assert.True(t, sys.Enabled.Contains(Bt))

	sys.SetUpdateMode()
	assert.True(t, sys.Enabled.Contains(Wifi))
	assert.False(t, sys.Enabled.Contains(Bt))

	sys.SetServiceMode()
	assert.Equal(t, ServiceSet(0), sys.Enabled)
}

func newTestLifecycle() (*ServiceLifecycle, *signalbus.StatefulSignal[System]) {
	sig := signalbus.NewStatefulSignal(NewSystem(), NumServices)
	lc := NewServiceLifecycle(Bt, sig)
	return lc, sig
}

func TestStartedGuardClearsOnRelease(t *testing.T) {
	lc, sig := newTestLifecycle()

	g := lc.Started()
	started := signalbus.State(sig, func(s *System) bool { return s.Started.Contains(Bt) })
	require.True(t, started)

	g.Release()
	started = signalbus.State(sig, func(s *System) bool { return s.Started.Contains(Bt) })
	assert.False(t, started)
}

func TestWaitEnabledUnblocksOnSysStartNormalMode(t *testing.T) {
	lc, sig := newTestLifecycle()

	done := make(chan struct{})
	go func() {
		lc.WaitEnabled()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("WaitEnabled returned before the service was enabled")
	default:
	}

	sig.Modify(func(s *System) bool {
		s.SetNormalMode()
		s.SysEnabled = true
		return true
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitEnabled did not unblock after enabling")
	}
}

func TestAlwaysOnServiceEnabledRegardlessOfMode(t *testing.T) {
	lc, sig := newTestLifecycle()
	canLc := NewServiceLifecycle(Can, sig)
	_ = lc

	done := make(chan struct{})
	go func() {
		canLc.WaitEnabled()
		close(done)
	}()

	sig.Modify(func(s *System) bool {
		s.SetServiceMode()
		s.SysEnabled = true
		return true
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("always-on service did not become enabled in service mode")
	}
}
