package transport

import "github.com/san-kum/simbridge/internal/protocol"

// Transport is the consumer's end of the process boundary.
//
// Post is fire-and-forget. A transport that supports ownership transfer
// detaches any buffer a message carries; one that does not sends a copy and
// leaves the sender's buffer intact.
type Transport interface {
	Post(m protocol.Message) error
	Events() <-chan protocol.Event
	Done() <-chan struct{}
	Close() error
}

// Endpoint is the simulation process's end of the boundary.
type Endpoint interface {
	Emit(e protocol.Event) error
	Messages() <-chan protocol.Message
	Done() <-chan struct{}
	Close() error
}

// FaultCounter is implemented by transports that decode wire frames. Faults
// counts frames dropped because they could not be decoded.
type FaultCounter interface {
	Faults() uint64
}

const queueSize = 256
