package signaling

import (
	"errors"
	"fmt"
)

var (
	ErrProtocol  = errors.New("protocol error")
	ErrClosed    = errors.New("signaling connection closed")
	ErrQueueFull = errors.New("outbound queue full")
)

// ProtocolError reports a malformed or out-of-order event. The offending
// event is dropped; the connection stays open.
type ProtocolError struct {
	Type   string
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("%v: %s", ErrProtocol, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrProtocol, e.Type, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}

func protocolError(msgType, reason string) *ProtocolError {
	return &ProtocolError{Type: msgType, Reason: reason}
}
