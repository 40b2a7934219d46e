package internalerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrDuplicate        = errors.New("duplicate entry")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrSchemaMismatch   = errors.New("schema mismatch")
	ErrInvariant        = errors.New("invariant violated")

	// ErrFatal matches every *FatalError via errors.Is.
	ErrFatal = errors.New("fatal")
)

// FatalError aborts a run. It carries enough context for the operator to
// locate the offending input without re-running.
type FatalError struct {
	Phase      string
	Type       string
	LineUID    string
	Message    string
	Underlying error
}

// NewFatal creates a fatal error for a phase.
func NewFatal(phase, errType, message string) *FatalError {
	return &FatalError{Phase: phase, Type: errType, Message: message}
}

// WithLine attaches the offending line identity.
func (e *FatalError) WithLine(uid string) *FatalError {
	e.LineUID = uid
	return e
}

// Wrap attaches an underlying cause.
func (e *FatalError) Wrap(err error) *FatalError {
	e.Underlying = err
	return e
}

// Error implements the error interface
func (e *FatalError) Error() string {
	msg := fmt.Sprintf("FATAL %s/%s: %s", e.Phase, e.Type, e.Message)
	if e.LineUID != "" {
		msg += " (line " + e.LineUID + ")"
	}
	if e.Underlying != nil {
		msg += ": " + e.Underlying.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As
func (e *FatalError) Unwrap() error {
	return e.Underlying
}

// Is makes errors.Is(err, ErrFatal) true for any fatal error.
func (e *FatalError) Is(target error) bool {
	return target == ErrFatal
}

// Issue returns the fatal error as a manifest issue.
func (e *FatalError) Issue() Issue {
	iss := Issue{
		Severity: SeverityFatal,
		Phase:    e.Phase,
		Type:     e.Type,
		LineUID:  e.LineUID,
		Message:  e.Message,
	}
	if e.Underlying != nil {
		iss = iss.With("cause", e.Underlying.Error())
	}
	return iss
}

// IsFatal reports whether err aborts the run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
