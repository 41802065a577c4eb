package ipc

import "errors"

var (
	// ErrNoHandler is returned by Invoke when the privileged side has no handler for the channel.
	ErrNoHandler = errors.New("no handler registered")

	// ErrHandlerExists is returned when a second invoke handler is registered for a channel.
	ErrHandlerExists = errors.New("handler already registered")

	// ErrTransportClosed is returned when the transport is torn down before a reply arrives.
	ErrTransportClosed = errors.New("transport closed")
)
