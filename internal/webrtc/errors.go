package webrtc

import (
	"errors"
	"fmt"
)

var (
	ErrBadSignal        = errors.New("malformed signal payload")
	ErrUnexpectedSignal = errors.New("unexpected signal for role")
	ErrConnectionFailed = errors.New("peer connection failed")
	ErrTransportClosed  = errors.New("transport closed")
)

// TransportError wraps a pion failure with the operation that hit it.
type TransportError struct {
	Op      string
	Err     error
	Details string
}

func (e *TransportError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *TransportError {
	return &TransportError{Op: op, Err: err, Details: details}
}
