package domain

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable failure class shared by every core operation.
type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindInvalidArgument    Kind = "INVALID_ARGUMENT"
	KindPreconditionFailed Kind = "PRECONDITION_FAILED"
	KindPoolExceeded       Kind = "POOL_EXCEEDED"
	KindConflict           Kind = "CONFLICT"
	KindStoreUnavailable   Kind = "STORE_UNAVAILABLE"
)

// Error carries a Kind alongside a human message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the bare per-kind sentinels below, so callers can write
// errors.Is(err, domain.ErrPoolExceeded).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Msg != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInvalidArgument    = &Error{Kind: KindInvalidArgument}
	ErrPreconditionFailed = &Error{Kind: KindPreconditionFailed}
	ErrPoolExceeded       = &Error{Kind: KindPoolExceeded}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrStoreUnavailable   = &Error{Kind: KindStoreUnavailable}
)

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error { return newf(KindNotFound, format, args...) }

func InvalidArgument(format string, args ...any) error {
	return newf(KindInvalidArgument, format, args...)
}

func PreconditionFailed(format string, args ...any) error {
	return newf(KindPreconditionFailed, format, args...)
}

func PoolExceeded(format string, args ...any) error {
	return newf(KindPoolExceeded, format, args...)
}

// Wrap attaches kind to a lower-level cause.
func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf classifies err. Errors that never passed through a store
// translation are reported as StoreUnavailable.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindStoreUnavailable
}
