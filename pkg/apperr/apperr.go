// Package apperr defines the four-member error taxonomy every service
// reports through: PeripheralFault and NetworkFault are fatal to the
// current run and trigger the supervisor's retry/re-drive policy;
// ProtocolDecode is non-fatal and only ever logged; CallbackOverflow is not
// actually an error path (the ring buffer's oldest-drop policy handles it)
// but is named here so callers can recognize and log the condition
// uniformly.
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors, wrapped with errors.Wrap at the point a driver error
// first crosses into service code so the wrap carries a stack trace.
var (
	ErrPeripheralFault  = errors.New("peripheral fault")
	ErrProtocolDecode   = errors.New("protocol decode")
	ErrNetworkFault     = errors.New("network fault")
	ErrCallbackOverflow = errors.New("callback overflow")
)

// Peripheral wraps err as a PeripheralFault, fatal to the current service
// run. The wrap via errors.Wrap attaches a stack trace at the point the
// driver error first crosses into service code.
func Peripheral(err error, context string) error {
	return fmt.Errorf("%w: %w", ErrPeripheralFault, errors.Wrap(err, context))
}

// Network wraps err as a NetworkFault, fatal to the current OTA attempt.
func Network(err error, context string) error {
	return fmt.Errorf("%w: %w", ErrNetworkFault, errors.Wrap(err, context))
}

// Is reports whether err is (or wraps) the given sentinel, via
// errors.Is/Cause semantics.
func Is(err, sentinel error) bool {
	return errors.Is(err, sentinel)
}
