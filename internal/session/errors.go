package session

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrSessionClosed  = errors.New("session closed")
	ErrAlreadyRunning = errors.New("session already running")
	ErrNoNamespace    = errors.New("envelope has no namespace")
)

// ProtocolError reports an inbound frame that is not a well-formed envelope.
// The frame is dropped and the session continues.
type ProtocolError struct {
	Frame []byte
	Err   error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed envelope (%d bytes): %v", len(e.Frame), e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// RoutingError reports an envelope addressed to a namespace with no binding.
type RoutingError struct {
	Namespace string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("no handler bound to namespace %q", e.Namespace)
}

// WorkerFailure is a handler that returned an error or panicked. It is
// reported to the sink and never reaches the client or the dispatcher.
type WorkerFailure struct {
	Namespace string
	Err       error
	Panic     any    // Recovered value, nil for ordinary errors
	Stack     []byte // Set when Panic is non-nil
}

func (e *WorkerFailure) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("namespace %q worker panicked: %v", e.Namespace, e.Panic)
	}
	return fmt.Sprintf("namespace %q worker failed: %v", e.Namespace, e.Err)
}

func (e *WorkerFailure) Unwrap() error {
	return e.Err
}
