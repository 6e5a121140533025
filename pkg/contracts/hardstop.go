package contracts

import (
	"errors"
	"fmt"
)

// HardStopError marks an error that must never be caught inside the core —
// it is meant to surface to the calling wrapper as fatal. External wrappers type-assert for the
// HardStop() marker to decide on a non-zero exit code rather than string
// matching error text.
type HardStopError struct {
	Kind string // machine-readable kind, e.g. "AUDIT_INTEGRITY_FAULT"
	Err  error
}

func NewHardStop(kind string, err error) *HardStopError {
	return &HardStopError{Kind: kind, Err: err}
}

func (e *HardStopError) Error() string {
	if e.Err == nil {
		return e.Kind
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *HardStopError) Unwrap() error { return e.Err }

// HardStop satisfies the ambient hard-stop marker convention.
func (e *HardStopError) HardStop() bool { return true }

// hardStopper is the marker interface every hard-stop error in the core
// implements, whether or not it is a *HardStopError.
type hardStopper interface {
	HardStop() bool
}

// IsHardStop reports whether err (or anything it wraps) is a hard-stop.
func IsHardStop(err error) bool {
	var hs hardStopper
	return errors.As(err, &hs) && hs.HardStop()
}
