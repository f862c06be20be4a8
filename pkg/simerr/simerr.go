// Package simerr defines the closed error taxonomy surfaced by the simulation core.
//
// Every failure that crosses a package boundary is one of four kinds. The public
// surface of an error is its kind and a fixed message; lower-level causes are only
// ever written to the structured log.
package simerr

import (
	"context"
	"errors"
	"log/slog"
)

// Kind classifies a failure.
type Kind string

const (
	// InvalidAction is a rejected player action. The state is unchanged and play continues.
	InvalidAction Kind = "INVALID_ACTION"
	// StateCorruption means a save could not be authenticated or decoded.
	StateCorruption Kind = "STATE_CORRUPTION"
	// SystemFailure covers I/O, randomness and allocation failures.
	SystemFailure Kind = "SYSTEM_FAILURE"
	// ConfigurationError is malformed content or tuning, detected at startup or on use.
	ConfigurationError Kind = "CONFIGURATION_ERROR"
)

// Classification defines how a host loop should react to a kind.
type Classification string

const (
	// ClassRecoverable means the operation can be retried with different input.
	ClassRecoverable Classification = "RECOVERABLE"
	// ClassFatalToAttempt aborts the current operation only.
	ClassFatalToAttempt Classification = "FATAL_TO_ATTEMPT"
	// ClassFatalAtStartup stops the session from starting.
	ClassFatalAtStartup Classification = "FATAL_AT_STARTUP"
)

// Code returns the stable error code for a kind.
func (k Kind) Code() string {
	return "CISOSIM/CORE/" + string(k)
}

// Classify returns the reaction class for a kind.
func (k Kind) Classify() Classification {
	switch k {
	case InvalidAction:
		return ClassRecoverable
	case ConfigurationError:
		return ClassFatalAtStartup
	default:
		return ClassFatalToAttempt
	}
}

func (k Kind) message() string {
	switch k {
	case InvalidAction:
		return "invalid action"
	case StateCorruption:
		return "saved state is corrupt or cannot be unlocked"
	case SystemFailure:
		return "system failure"
	case ConfigurationError:
		return "configuration error"
	default:
		return "unknown error"
	}
}

// Error is the only error type returned by the simulation core.
type Error struct {
	kind Kind
}

func (e *Error) Error() string {
	return e.kind.message()
}

// Kind returns the failure kind.
func (e *Error) Kind() Kind {
	return e.kind
}

// Is matches any *Error of the same kind, so errors.Is(err, simerr.ErrInvalidAction) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.kind == e.kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidAction      = &Error{kind: InvalidAction}
	ErrStateCorruption    = &Error{kind: StateCorruption}
	ErrSystemFailure      = &Error{kind: SystemFailure}
	ErrConfigurationError = &Error{kind: ConfigurationError}
)

// New returns an error of the given kind without a cause.
func New(kind Kind) error {
	return &Error{kind: kind}
}

// Wrap logs cause under op at debug level and returns an opaque error of the given kind.
// The cause is not reachable through the returned value.
func Wrap(ctx context.Context, kind Kind, op string, cause error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	attrs := []any{"op", op, "kind", string(kind), "code", kind.Code()}
	if cause != nil {
		attrs = append(attrs, "cause", cause.Error())
	}
	slog.Default().DebugContext(ctx, "simulation error", attrs...)
	return &Error{kind: kind}
}

// KindOf returns the kind of err, or SystemFailure for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return SystemFailure
}
