package dispatch

import (
	"errors"
	"fmt"
)

// Kind separates errors that end a run from errors that only skip an address.
type Kind int

const (
	KindFatal Kind = iota
	KindItem
)

func (k Kind) String() string {
	switch k {
	case KindFatal:
		return "fatal"
	case KindItem:
		return "item"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned (KindFatal) or reported to OnItemFailure (KindItem).
type Error struct {
	Kind  Kind
	Op    string // "fetch", "cursor", "send", "record"
	Email string
	Err   error
}

func (e *Error) Error() string {
	if e.Email != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Kind, e.Op, e.Email, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func fatal(op string, err error) error {
	return &Error{Kind: KindFatal, Op: op, Err: err}
}

// IsFatal reports whether err carries a KindFatal dispatch error.
func IsFatal(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == KindFatal
}
