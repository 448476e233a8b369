package gateway

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind classifies a terminal gateway failure.
type Kind int

const (
	KindEmptyText Kind = iota + 1
	KindContentionExhausted
	KindUnexpected
	KindEncoding
)

func (k Kind) String() string {
	switch k {
	case KindEmptyText:
		return "empty text"
	case KindContentionExhausted:
		return "contention exhausted"
	case KindUnexpected:
		return "unexpected"
	case KindEncoding:
		return "encoding error"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against an *Error of the same Kind.
var (
	ErrEmptyText           = errors.New("gateway: empty text")
	ErrContentionExhausted = errors.New("gateway: clipboard contention exhausted")
	ErrUnexpected          = errors.New("gateway: unexpected clipboard error")
	ErrEncoding            = errors.New("gateway: text encoding error")
)

// Error is the terminal Failed state of a read or write.
type Error struct {
	Op       string // "read" or "write"
	Kind     Kind
	Attempts int     // acquire attempts made, 0 if none
	Code     uintptr // OS error code for KindUnexpected, when known
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("clipboard %s: %s", e.Op, e.Kind)
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Code != 0 {
		msg += fmt.Sprintf(" (code %d)", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrEmptyText:
		return e.Kind == KindEmptyText
	case ErrContentionExhausted:
		return e.Kind == KindContentionExhausted
	case ErrUnexpected:
		return e.Kind == KindUnexpected
	case ErrEncoding:
		return e.Kind == KindEncoding
	}
	return false
}

// KindOf returns the Kind of err, or 0 when err is not a gateway error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return 0
}

func unexpected(op string, attempts int, err error) *Error {
	e := &Error{Op: op, Kind: KindUnexpected, Attempts: attempts, Err: err}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		e.Code = uintptr(errno)
	}
	return e
}
