package transport

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrClosed          = errors.New("transport closed")
	ErrNotUpgrade      = errors.New("request is not a websocket upgrade")
	ErrMissingKey      = errors.New("missing Sec-WebSocket-Key header")
	ErrStaleConnection = errors.New("connection stale (no pong)")
)

// HandshakeError reports a failed upgrade. No session exists when it is returned.
type HandshakeError struct {
	Reason string
	Err    error
}

func (e *HandshakeError) Error() string {
	if e.Err == nil {
		return "websocket handshake: " + e.Reason
	}
	return fmt.Sprintf("websocket handshake: %s: %v", e.Reason, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}
