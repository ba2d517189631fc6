package peer

import (
	"errors"
	"fmt"
)

var (
	ErrNegotiation       = errors.New("negotiation failed")
	ErrIllegalTransition = errors.New("illegal state transition")
	ErrSessionClosed     = errors.New("session closed")
	ErrManagerClosed     = errors.New("peer manager closed")
)

// Error annotates a session failure with the operation and remote involved.
type Error struct {
	Op      string
	Remote  string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Remote != "" && e.Details != "" {
		return fmt.Sprintf("%s %s: %v (%s)", e.Op, e.Remote, e.Err, e.Details)
	}
	if e.Remote != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Remote, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op, remote string, err error) *Error {
	return &Error{Op: op, Remote: remote, Err: err}
}

func WrapError(op, remote string, err error, details string) *Error {
	return &Error{Op: op, Remote: remote, Err: err, Details: details}
}
