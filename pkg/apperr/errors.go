// Package apperr defines the error kinds shared by the stores, the provider
// client, the document cache and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can pick a fallback without string
// matching.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindValidation        Kind = "validation"
	KindTransientExternal Kind = "transient_external"
	KindStorage           Kind = "storage"
	KindGeneration        Kind = "generation"
)

// Sentinel errors matched through errors.Is against any *Error of the same kind.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrTransient  = errors.New("transient external failure")
	ErrStorage    = errors.New("storage unavailable")
	ErrGeneration = errors.New("generation failed")
)

var kindSentinels = map[Kind]error{
	KindNotFound:          ErrNotFound,
	KindValidation:        ErrValidation,
	KindTransientExternal: ErrTransient,
	KindStorage:           ErrStorage,
	KindGeneration:        ErrGeneration,
}

// Error carries a Kind, the operation that failed and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, kindSentinels[e.Kind])
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

func newErr(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NotFound builds a KindNotFound error for op.
func NotFound(op, format string, args ...any) error {
	return newErr(KindNotFound, op, fmt.Errorf(format, args...))
}

// Validation builds a KindValidation error for op.
func Validation(op string, err error) error {
	return newErr(KindValidation, op, err)
}

// Validationf is Validation with a formatted message.
func Validationf(op, format string, args ...any) error {
	return newErr(KindValidation, op, fmt.Errorf(format, args...))
}

// Transient wraps a provider timeout, throttle or 5xx.
func Transient(op string, err error) error {
	return newErr(KindTransientExternal, op, err)
}

// Storage wraps a durable-store failure.
func Storage(op string, err error) error {
	return newErr(KindStorage, op, err)
}

// Generation wraps a failure of the generation collaborator.
func Generation(op string, err error) error {
	return newErr(KindGeneration, op, err)
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
