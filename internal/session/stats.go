package session

import "github.com/san-kum/simbridge/internal/transport"

// Stats is a point-in-time view of the session.
type Stats struct {
	State   State
	Mode    TransferMode
	FPS     int
	Delta   float64
	Sent    uint64
	Skipped uint64
	// InFlight is set while a step request awaits its reply.
	InFlight bool
	// Dropped counts protocol faults: events without a handler and frames
	// the link could not decode.
	Dropped uint64
	Objects int
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	st := Stats{State: s.state, Mode: s.mode}
	faults := s.linkFaults + frameFaults(s.transport)
	s.mu.Unlock()

	st.FPS = s.scheduler.FPS()
	st.Delta = s.scheduler.Delta()
	st.Sent = s.scheduler.Sent()
	st.Skipped = s.scheduler.Skipped()
	st.InFlight = s.scheduler.InFlight()
	st.Dropped = s.router.Dropped() + faults
	st.Objects = s.registry.Len()
	return st
}

func frameFaults(tr transport.Transport) uint64 {
	if fc, ok := tr.(transport.FaultCounter); ok {
		return fc.Faults()
	}
	return 0
}
