package fiberrt

import (
	"errors"
	"fmt"
)

// Kind classifies a scheduling failure, per the error taxonomy in spec.md §7.
type Kind string

const (
	// KindConfigInvalid marks a mutually exclusive or impossible bootstrap
	// configuration. Fatal at bootstrap.
	KindConfigInvalid Kind = "config-invalid"
	// KindRuntimeStopped marks an operation attempted after Terminate.
	KindRuntimeStopped Kind = "runtime-stopped"
	// KindTimedOut marks a wait that expired before it was signaled.
	KindTimedOut Kind = "timed-out"
	// KindCancelled marks an operation cancelled by its caller (fiber
	// aborted, timer cancelled).
	KindCancelled Kind = "cancelled"
	// KindAllocationFailed marks a failed stack or buffer-block allocation.
	KindAllocationFailed Kind = "allocation-failed"
)

// Sentinel errors for errors.Is comparisons against a *SchedError's Kind.
var (
	ErrConfigInvalid    = &SchedError{Kind: KindConfigInvalid, Msg: "invalid configuration"}
	ErrRuntimeStopped   = &SchedError{Kind: KindRuntimeStopped, Msg: "runtime has been terminated"}
	ErrTimedOut         = &SchedError{Kind: KindTimedOut, Msg: "wait timed out"}
	ErrCancelled        = &SchedError{Kind: KindCancelled, Msg: "operation cancelled"}
	ErrAllocationFailed = &SchedError{Kind: KindAllocationFailed, Msg: "allocation failed"}
)

// ErrIndexOutOfBounds is returned by the Runtime's per-group accessors
// (GetSchedulingGroupSize, GetSchedulingGroupAssignedNode) given an
// out-of-range scheduling group index.
var ErrIndexOutOfBounds = errors.New("fiberrt: index out of bounds")

// SchedError carries a Kind and a human-readable message through the
// scheduler's recoverable-error paths. Invariant violations never produce
// a SchedError; they panic via invariant() instead, matching spec.md §7's
// "abort in debug, undefined behavior in release" policy for programmer
// errors.
type SchedError struct {
	Err  error
	Kind Kind
	Msg  string
}

// Error implements the error interface.
func (e *SchedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *SchedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is a *SchedError with the same Kind, allowing
// errors.Is(err, ErrRuntimeStopped) style checks regardless of message or
// wrapped cause.
func (e *SchedError) Is(target error) bool {
	other, ok := target.(*SchedError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// wrapf builds a new *SchedError of the given kind with a formatted
// message, optionally wrapping a cause.
func wrapf(kind Kind, cause error, format string, args ...any) *SchedError {
	return &SchedError{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// invariant panics if cond is false. It marks scheduler-internal invariant
// violations (spec.md §7 "internal-invariant"): these indicate scheduler
// bugs, never user error, and are never returned as recoverable errors.
func invariant(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("fiberrt: invariant violated: "+format, args...))
	}
}
