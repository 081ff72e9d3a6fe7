package lifecycle

import (
	"context"
	"log"

	"github.com/dougsko/carbridged/pkg/signalbus"
)

// ServiceLifecycle is the per-service handle a service's run loop uses to
// wait for its enable bit, mark itself started, and mutate system-wide mode
// and power state. It is bound to exactly one Service for its lifetime.
type ServiceLifecycle struct {
	service  Service
	receiver *signalbus.StatefulReceiver[System]
	signal   *signalbus.StatefulSignal[System]
}

// NewServiceLifecycle binds a lifecycle handle to svc against the shared
// System signal.
func NewServiceLifecycle(svc Service, signal *signalbus.StatefulSignal[System]) *ServiceLifecycle {
	return &ServiceLifecycle{
		service:  svc,
		receiver: signal.Receiver(int(svc)),
		signal:   signal,
	}
}

// Guard is returned by Started; releasing it (via its Release method, always
// called through defer) clears the service's started bit. Every exit path
// from a service's run body — normal return, error, or cooperative
// cancellation — must release exactly one Guard.
type Guard struct {
	lc       *ServiceLifecycle
	released bool
}

// Release clears the owning service's started bit. Safe to call more than
// once; only the first call has an effect.
func (g *Guard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.lc.setStarted(false)
}

// Starting logs entry into the starting phase. It does not set the started
// bit; call Started for that.
func (lc *ServiceLifecycle) Starting() {
	log.Printf("lifecycle: %s starting", lc.service)
}

// Started marks this service's started bit and returns a Guard that clears
// it again on release.
func (lc *ServiceLifecycle) Started() *Guard {
	lc.setStarted(true)
	return &Guard{lc: lc}
}

// StartedWhenEnabled waits for the enable bit, logs the starting
// transition, and returns the scope guard -- the common per-service
// boilerplate at the top of a run loop.
func (lc *ServiceLifecycle) StartedWhenEnabled() *Guard {
	lc.WaitEnabled()
	lc.Starting()
	return lc.Started()
}

func (lc *ServiceLifecycle) setStarted(started bool) {
	svc := lc.service
	lc.signal.Modify(func(sys *System) bool {
		was := sys.Started.Contains(svc)
		if was == started {
			return false
		}
		if started {
			sys.Started = sys.Started.With(svc)
		} else {
			sys.Started = sys.Started.Without(svc)
		}
		log.Printf("lifecycle: %s started=%t", svc, started)
		return true
	})
}

// WaitEnabled clears the started bit (a service calling wait_enabled is, by
// construction, not currently started) and blocks until this service's
// enable predicate is true.
func (lc *ServiceLifecycle) WaitEnabled() {
	lc.setStarted(false)
	lc.waitEnabledDisabled(true)
}

// WaitDisabled blocks until this service's enable predicate is false. Used
// as the cancellation side of the first-of-N-wins race in selectspawn: when
// it returns, the caller tears down its peripheral and releases its Guard.
func (lc *ServiceLifecycle) WaitDisabled() {
	lc.waitEnabledDisabled(false)
}

// WaitDisabledCtx adapts WaitDisabled to selectspawn.Race's waitDisabled
// shape: it returns either when the service becomes disabled or when ctx is
// cancelled, whichever comes first. If ctx wins, the inner WaitDisabled
// goroutine is abandoned rather than killed -- there is no way to
// interrupt a blocked signal Recv -- and exits on its own once the system
// actually transitions, same as the cooperative executor this models would
// eventually reschedule it.
func (lc *ServiceLifecycle) WaitDisabledCtx(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		lc.WaitDisabled()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (lc *ServiceLifecycle) waitEnabledDisabled(wantEnabled bool) {
	svc := lc.service
	for {
		if !lc.receiver.RecvOK() {
			// The system signal was closed: the process is exiting, and
			// every wait resolves so service loops can unwind.
			return
		}
		enabled := signalbus.Snapshot(lc.receiver, func(sys *System) bool {
			return sys.isEnabled(svc)
		})
		if enabled == wantEnabled {
			return
		}
	}
}

// SysStart sets the global system-enabled flag.
func (lc *ServiceLifecycle) SysStart() {
	lc.signal.Modify(func(sys *System) bool {
		if sys.SysEnabled {
			return false
		}
		sys.SysEnabled = true
		return true
	})
}

// SysStop clears the global system-enabled flag.
func (lc *ServiceLifecycle) SysStop() {
	lc.signal.Modify(func(sys *System) bool {
		if !sys.SysEnabled {
			return false
		}
		sys.SysEnabled = false
		return true
	})
}

// SysSetNormalMode, SysSetUpdateMode and SysSetServiceMode mutate the
// system's enabled-service set per the mode table in the data model.
func (lc *ServiceLifecycle) SysSetNormalMode() {
	lc.signal.Modify(func(sys *System) bool { sys.SetNormalMode(); return true })
}

func (lc *ServiceLifecycle) SysSetUpdateMode() {
	lc.signal.Modify(func(sys *System) bool { sys.SetUpdateMode(); return true })
}

func (lc *ServiceLifecycle) SysSetServiceMode() {
	lc.signal.Modify(func(sys *System) bool { sys.SetServiceMode(); return true })
}

// GetSysState computes the coarse SystemState from the current record.
func (lc *ServiceLifecycle) GetSysState() SystemState {
	return signalbus.Snapshot(lc.receiver, func(sys *System) SystemState {
		return sys.GetState()
	})
}
