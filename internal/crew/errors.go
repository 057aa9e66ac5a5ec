package crew

import (
	"errors"
	"fmt"

	"github.com/helmcode/crew-bus/internal/routing"
)

// Sentinel errors. Every error returned by the engine unwraps to one of these.
var (
	ErrNotFound    = errors.New("not found")
	ErrInvalid     = errors.New("invalid")
	ErrBlocked     = errors.New("blocked")
	ErrConflict    = errors.New("conflict")
	ErrRateLimited = errors.New("rate limited")
)

// ValidationError reports bad input: unknown ids, invalid enum values,
// out-of-range scores or malformed configs.
type ValidationError struct {
	Op    string
	Field string
	Msg   string

	missing bool
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Unwrap() error {
	if e.missing {
		return ErrNotFound
	}
	return ErrInvalid
}

// PermissionError reports a routing denial. It is always audited before it
// is returned.
type PermissionError struct {
	Reason   string
	Blocked  bool
	Decision routing.Decision
}

func (e *PermissionError) Error() string { return e.Reason }

func (e *PermissionError) Unwrap() error { return ErrBlocked }

// StateError reports an operation that is not valid in the entity's current
// state, such as restoring an active agent.
type StateError struct {
	Op  string
	Msg string
}

func (e *StateError) Error() string { return e.Msg }

func (e *StateError) Unwrap() error { return ErrConflict }

// RateLimitError reports a sender over its mailbox quota.
type RateLimitError struct {
	Msg string
}

func (e *RateLimitError) Error() string { return e.Msg }

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

func invalidf(op, field, format string, args ...interface{}) error {
	return &ValidationError{Op: op, Field: field, Msg: fmt.Sprintf(format, args...)}
}

func notFoundf(op, field, format string, args ...interface{}) error {
	return &ValidationError{Op: op, Field: field, Msg: fmt.Sprintf(format, args...), missing: true}
}

func statef(op, format string, args ...interface{}) error {
	return &StateError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

func blocked(reason string, d routing.Decision) error {
	return &PermissionError{Reason: reason, Blocked: true, Decision: d}
}
