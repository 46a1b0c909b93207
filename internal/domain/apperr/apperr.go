// Package apperr defines the error kinds shared by every domain package.
//
// Domain packages declare their own sentinel values with New so callers can
// match either the precise sentinel or its broad kind:
//
//	errors.Is(err, cart.ErrLimitExceeded) // precise
//	errors.Is(err, apperr.ErrNotEligible) // kind
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Error kinds. The HTTP layer maps each kind to a status code.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrNotEligible   = errors.New("not eligible")
	ErrWindowExpired = errors.New("window expired")
	ErrConflict      = errors.New("conflict")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrExternal      = errors.New("external dependency failed")
	ErrStorage       = errors.New("storage failure")
)

// Error is a domain error tagged with one of the kinds above.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

// New returns an Error of the given kind with a user-facing message.
func New(kind error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf is New with formatting.
func Newf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind. The message is what clients see; err stays internal.
func Wrap(kind error, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

// Is reports a match against the kind so errors.Is(err, ErrNotFound) works
// for every sentinel built on it.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Storage wraps an unexpected repository failure. Errors that already carry a
// kind pass through untouched.
func Storage(err error, msg string) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil {
		return err
	}
	return Wrap(ErrStorage, err, msg)
}

// KindOf returns the kind of err, or nil when err carries none.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

// Message returns the client-facing message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}
