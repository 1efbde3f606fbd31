package session

import "fmt"

// State is the lifecycle state of the Manager.
type State int

const (
	Idle State = iota
	Scanning
	Connecting
	Connected
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// PolicyViolation rejects an operation that is not allowed in the current state.
// The state is left unchanged.
type PolicyViolation struct {
	Op    string
	State State
}

func (e *PolicyViolation) Error() string {
	if e.Op == "connect" && (e.State == Connected || e.State == Connecting) {
		return "already connected"
	}
	return fmt.Sprintf("%s not allowed while %s", e.Op, e.State)
}
