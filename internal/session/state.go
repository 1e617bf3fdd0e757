package session

import "fmt"

// State is the session lifecycle position.
type State int

const (
	Uninitialized State = iota
	Loading
	HandshakePending
	Ready
	Running
	Paused
	Resetting
	Terminated
)

var stateNames = [...]string{
	Uninitialized:    "uninitialized",
	Loading:          "loading",
	HandshakePending: "handshake",
	Ready:            "ready",
	Running:          "running",
	Paused:           "paused",
	Resetting:        "resetting",
	Terminated:       "terminated",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// TransferMode is how the shared buffer crosses the boundary. It is fixed by
// the handshake probe for the life of the session.
type TransferMode int

const (
	DeepCopy TransferMode = iota
	ZeroCopy
)

func (m TransferMode) String() string {
	if m == ZeroCopy {
		return "zero-copy"
	}
	return "deep-copy"
}
