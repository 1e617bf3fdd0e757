package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrRuntimeUnavailable indicates the simulation runtime image could not be staged.
	ErrRuntimeUnavailable = errors.New("bridge: simulation runtime unavailable")

	// ErrNotReady indicates an operation that needs the ready handshake ran before it.
	ErrNotReady = errors.New("bridge: session not ready")

	// ErrTerminated indicates the simulation process was destroyed.
	ErrTerminated = errors.New("bridge: session terminated")

	// ErrUnknownKind indicates a descriptor whose category tag is not in the closed set.
	ErrUnknownKind = errors.New("bridge: unknown object kind")

	// ErrUnknownMessage indicates a message or event tag outside the protocol vocabulary.
	ErrUnknownMessage = errors.New("bridge: unknown message tag")

	// ErrInvalidState indicates a lifecycle transition that is not allowed from the current state.
	ErrInvalidState = errors.New("bridge: invalid lifecycle transition")

	// ErrTransportClosed indicates a send on a closed transport.
	ErrTransportClosed = errors.New("bridge: transport closed")
)

// ProtocolError wraps a decode or dispatch failure with the offending tag.
type ProtocolError struct {
	Tag     string
	Wrapped error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("bridge: protocol fault on %q: %v", e.Tag, e.Wrapped)
}

func (e *ProtocolError) Unwrap() error {
	return e.Wrapped
}
