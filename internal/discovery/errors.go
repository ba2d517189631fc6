package discovery

import "errors"

// Package-level sentinel errors for discovery operations.
var (
	// ErrClosed is returned when advertising on a shut down Advertiser.
	ErrClosed = errors.New("discovery: closed")

	// ErrAlreadyStarted is returned when the relay is already advertised.
	ErrAlreadyStarted = errors.New("discovery: already started")

	// ErrInvalidPort is returned when the port number is out of range.
	ErrInvalidPort = errors.New("discovery: invalid port (must be 1-65535)")

	// ErrRelayNotFound is returned when no relay answered before the timeout.
	ErrRelayNotFound = errors.New("discovery: no relay found on the local network")
)
