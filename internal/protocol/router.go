package protocol

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/san-kum/simbridge/internal/bridge"
	"github.com/san-kum/simbridge/internal/layout"
)

// Handlers are the per-tag event callbacks. A nil handler drops its events.
// Reclaim runs before StepDone so buffer ownership is back with the consumer
// before any step handler reads it.
type Handlers struct {
	Ready         func(Ready)
	Reclaim       func(*layout.Buffer)
	StepDone      func(StepDone)
	PoseUpdate    func(PoseUpdate)
	Ellipsoid     func(EllipsoidRequest)
	Break         func(BreakRequest)
	RayCastResult func(RayCastResult)
}

// Router dispatches events to handlers one at a time, in arrival order.
type Router struct {
	h       Handlers
	logger  *log.Logger
	dropped atomic.Uint64
}

func NewRouter(h Handlers, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	return &Router{h: h, logger: logger.WithPrefix("router")}
}

// Dispatch delivers one event synchronously.
func (r *Router) Dispatch(ev Event) error {
	switch e := ev.(type) {
	case Ready:
		if r.h.Ready != nil {
			r.h.Ready(e)
		}
	case StepDone:
		if r.h.Reclaim != nil && e.Buffer != nil {
			r.h.Reclaim(e.Buffer)
		}
		if r.h.StepDone != nil {
			r.h.StepDone(e)
		}
	case PoseUpdate:
		if r.h.PoseUpdate != nil {
			r.h.PoseUpdate(e)
		}
	case EllipsoidRequest:
		if r.h.Ellipsoid != nil {
			r.h.Ellipsoid(e)
		}
	case BreakRequest:
		if r.h.Break != nil {
			r.h.Break(e)
		}
	case RayCastResult:
		if r.h.RayCastResult != nil {
			r.h.RayCastResult(e)
		}
	default:
		r.dropped.Add(1)
		return &bridge.ProtocolError{Tag: fmt.Sprintf("%T", ev), Wrapped: bridge.ErrUnknownMessage}
	}
	return nil
}

func (r *Router) dispatchLogged(ev Event) {
	if err := r.Dispatch(ev); err != nil {
		r.logger.Warn("dropping event", "err", err)
	}
}

// Run dispatches events until the channel closes or ctx is done.
func (r *Router) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.dispatchLogged(ev)
		}
	}
}

// Dropped counts events rejected as protocol faults.
func (r *Router) Dropped() uint64 {
	return r.dropped.Load()
}
