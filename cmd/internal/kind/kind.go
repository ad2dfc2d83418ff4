// Package kind is the error taxonomy shared by the vidtube services.
//
// Every service operation fails with an error that matches exactly one of the
// sentinels below under errors.Is. The HTTP adapter maps each sentinel to one
// status code; nothing else inspects error strings.
package kind

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not_found")
	ErrInternal     = errors.New("internal")
)

// Error carries a kind, a client-safe message and an optional cause.
// It unwraps to both Kind and Err.
type Error struct {
	Op   string
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v: %s: %v", e.Op, e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// E builds an *Error.
func E(op string, k error, msg string, cause error) error {
	return &Error{Op: op, Kind: k, Msg: msg, Err: cause}
}

func Validation(op, msg string) error { return E(op, ErrValidation, msg, nil) }
func Conflict(op, msg string) error { return E(op, ErrConflict, msg, nil) }
func Unauthorized(op, msg string) error { return E(op, ErrUnauthorized, msg, nil) }
func Forbidden(op, msg string) error { return E(op, ErrForbidden, msg, nil) }
func NotFound(op, msg string) error { return E(op, ErrNotFound, msg, nil) }

// Internal wraps an unexpected cause. The message shown to clients stays generic.
func Internal(op string, cause error) error {
	return E(op, ErrInternal, "", cause)
}

var all = []error{ErrValidation, ErrConflict, ErrUnauthorized, ErrForbidden, ErrNotFound, ErrInternal}

// Of returns the sentinel kind of err, or ErrInternal when none matches.
func Of(err error) error {
	for _, k := range all {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}

// Message returns the client-safe message of err, or "" if it carries none.
func Message(err error) string {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Msg
	}
	return ""
}
