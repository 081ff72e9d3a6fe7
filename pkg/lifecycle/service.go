// Package lifecycle implements the service supervisor: a fixed enumeration
// of services, a shared System record deriving a coarse SystemState, and a
// per-service ServiceLifecycle handle that a service's run loop uses to wait
// for its enable bit and mark itself started via a scope guard.
package lifecycle

import "fmt"

// Service is one of the fixed, compile-time-closed set of long-running
// tasks the supervisor drives. Its ordinal doubles as the subscriber index
// into every Signal/StatefulSignal fan-out array in the bus.
type Service int

const (
	Bt Service = iota
	AudioMux
	Microphone
	Speakers
	Can
	RadioDisplay
	CockpitDisplay
	Commands
	Wifi

	numServices
)

// NumServices is the fixed cardinality of the Service enumeration, used to
// size every broadcast signal's subscriber slot array.
const NumServices = int(numServices)

func (s Service) String() string {
	switch s {
	case Bt:
		return "bt"
	case AudioMux:
		return "audio_mux"
	case Microphone:
		return "microphone"
	case Speakers:
		return "speakers"
	case Can:
		return "can"
	case RadioDisplay:
		return "radio_display"
	case CockpitDisplay:
		return "cockpit_display"
	case Commands:
		return "commands"
	case Wifi:
		return "wifi"
	default:
		return fmt.Sprintf("service(%d)", int(s))
	}
}

// ServiceSet is a bitset over Service, one bit per ordinal.
type ServiceSet uint16

func NewServiceSet(services ...Service) ServiceSet {
	var s ServiceSet
	for _, svc := range services {
		s = s.With(svc)
	}
	return s
}

func (s ServiceSet) With(svc Service) ServiceSet    { return s | (1 << uint(svc)) }
func (s ServiceSet) Without(svc Service) ServiceSet { return s &^ (1 << uint(svc)) }
func (s ServiceSet) Contains(svc Service) bool      { return s&(1<<uint(svc)) != 0 }
func (s ServiceSet) Union(o ServiceSet) ServiceSet  { return s | o }
func (s ServiceSet) Intersect(o ServiceSet) ServiceSet {
	return s & o
}
func (s ServiceSet) Subtract(o ServiceSet) ServiceSet { return s &^ o }

// allServices is the universal set over the fixed Service enumeration.
func allServices() ServiceSet {
	var s ServiceSet
	for i := 0; i < NumServices; i++ {
		s = s.With(Service(i))
	}
	return s
}

// AlwaysOn is the set of services that run whenever the system is enabled,
// independent of the current mode: the vehicle-bus link and the services
// that only make sense while it's up.
var AlwaysOn = NewServiceSet(Can, CockpitDisplay, RadioDisplay, Commands)

// SystemState is the coarse, derived state of the whole supervisor.
type SystemState int

const (
	Stopped SystemState = iota
	Starting
	Started
	Stopping
)

func (s SystemState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Started:
		return "started"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// System is the shared record backing every service's enable/started
// predicate. It is always read and mutated through a StatefulSignal in
// practice (see Bus); the type itself carries no synchronization.
type System struct {
	Enabled    ServiceSet
	AlwaysOn   ServiceSet
	Started    ServiceSet
	SysEnabled bool
}

// NewSystem returns a System with only the always-on set filled in: Enabled
// is empty (the service-mode set) and the system is not yet enabled. Callers
// typically call SetNormalMode and SysStart immediately after boot.
func NewSystem() System {
	return System{AlwaysOn: AlwaysOn}
}

// SetServiceMode clears Enabled to the empty set (used while flashing or
// servicing the device; only always-on services may run).
func (sys *System) SetServiceMode() {
	sys.Enabled = 0
}

// SetUpdateMode restricts Enabled to {Wifi} minus always-on services.
func (sys *System) SetUpdateMode() {
	sys.Enabled = NewServiceSet(Wifi).Subtract(sys.AlwaysOn)
}

// SetNormalMode enables everything except Wifi and the always-on set (which
// runs regardless of mode).
func (sys *System) SetNormalMode() {
	sys.Enabled = allServices().Subtract(NewServiceSet(Wifi)).Subtract(sys.AlwaysOn)
}

// GetState derives the coarse SystemState from the three sets and the
// system-enabled flag.
func (sys *System) GetState() SystemState {
	want := sys.AlwaysOn
	if sys.SysEnabled {
		want = sys.Enabled.Union(sys.AlwaysOn)
	}
	if sys.SysEnabled {
		if sys.Started == want {
			return Started
		}
		return Starting
	}
	if sys.Started.Subtract(sys.AlwaysOn) == 0 {
		return Stopped
	}
	return Stopping
}

// isEnabled reports whether the given service should currently be
// running: sys_enabled ? (enabled ∪ always_on)[s] : always_on[s].
func (sys *System) isEnabled(s Service) bool {
	if sys.SysEnabled {
		return sys.Enabled.Union(sys.AlwaysOn).Contains(s)
	}
	return sys.AlwaysOn.Contains(s)
}
