package riskco

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Error carries a message and the frame of the caller that created it, so
// that %+v prints a usable trace while errors.Is/As keep working through
// Unwrap.
type Error struct {
	err   error
	msg   string
	frame xerrors.Frame
}

func newError(err error, msg string, skip int) error {
	if err == nil {
		return nil
	}
	return &Error{
		err:   err,
		msg:   msg,
		frame: xerrors.Caller(skip),
	}
}

// ErrorOrNil wraps err with msg and the caller's frame, or returns nil when
// there is nothing to wrap.
func ErrorOrNil(err error, msg string) error {
	return newError(err, msg, 2)
}

// WrapError wraps err with the caller's frame only.
func WrapError(err error) error {
	return newError(err, "", 2)
}

func (e *Error) Error() string {
	if e.msg != "" {
		return e.msg + ": " + fmt.Sprintf("%v", e.err)
	}
	return fmt.Sprintf("%v", e.err)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.err
}

// Format implements fmt.Formatter by delegating to xerrors.
func (e *Error) Format(f fmt.State, c rune) {
	xerrors.FormatError(e, f, c)
}

// FormatError prints the message and, in detail mode, the stored frame.
func (e *Error) FormatError(p xerrors.Printer) error {
	if e.msg != "" {
		p.Printf("%s: %v", e.msg, e.err)
	} else {
		p.Printf("%v", e.err)
	}

	if p.Detail() {
		e.frame.Format(p)
		p.Printf("%+v", e.err)
	}
	return nil
}
