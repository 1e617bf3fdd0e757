package transport

import (
	"sync"

	"github.com/san-kum/simbridge/internal/bridge"
	"github.com/san-kum/simbridge/internal/protocol"
)

// pipe is an in-process link between two goroutines standing in for two
// processes. Buffers either move (transfer) or are cloned on every hop.
type pipe struct {
	transfer bool
	toSim    chan protocol.Message
	toHost   chan protocol.Event
	done     chan struct{}
	once     sync.Once
}

// Pipe is the consumer side of an in-process link.
type Pipe struct{ p *pipe }

// PipeEndpoint is the simulation side of an in-process link.
type PipeEndpoint struct{ p *pipe }

// NewPipe links a consumer and a simulation endpoint. With transfer set,
// carried buffers change owner instead of being copied.
func NewPipe(transfer bool) (*Pipe, *PipeEndpoint) {
	p := &pipe{
		transfer: transfer,
		toSim:    make(chan protocol.Message, queueSize),
		toHost:   make(chan protocol.Event, queueSize),
		done:     make(chan struct{}),
	}
	return &Pipe{p: p}, &PipeEndpoint{p: p}
}

func (p *pipe) close() {
	p.once.Do(func() { close(p.done) })
}

func (p *pipe) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (t *Pipe) Post(m protocol.Message) error {
	if t.p.closed() {
		return bridge.ErrTransportClosed
	}
	if t.p.transfer {
		m = protocol.Transfer(m)
	} else {
		m = protocol.Copy(m)
	}
	select {
	case t.p.toSim <- m:
		return nil
	case <-t.p.done:
		return bridge.ErrTransportClosed
	}
}

// Events delivers simulation events. The channel is never closed; consumers
// select on it alongside their own cancellation.
func (t *Pipe) Events() <-chan protocol.Event { return t.p.toHost }

// Done is closed when either side closes the link.
func (t *Pipe) Done() <-chan struct{} { return t.p.done }

func (t *Pipe) Close() error {
	t.p.close()
	return nil
}

func (e *PipeEndpoint) Emit(ev protocol.Event) error {
	if e.p.closed() {
		return bridge.ErrTransportClosed
	}
	if e.p.transfer {
		ev = protocol.Transfer(ev)
	} else {
		ev = protocol.Copy(ev)
	}
	select {
	case e.p.toHost <- ev:
		return nil
	case <-e.p.done:
		return bridge.ErrTransportClosed
	}
}

func (e *PipeEndpoint) Messages() <-chan protocol.Message { return e.p.toSim }

// Done is closed when either side closes the link.
func (e *PipeEndpoint) Done() <-chan struct{} { return e.p.done }

func (e *PipeEndpoint) Close() error {
	e.p.close()
	return nil
}
