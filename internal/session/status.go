// ABOUTME: Connection status reported by the session
// ABOUTME: Disconnected, Connecting, Connected or Error with a reason
package session

// State is the connection state of a session
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is a point-in-time connection status. Reason is only set for StateError.
type Status struct {
	State  State
	Reason string
}

func (s Status) String() string {
	if s.State == StateError && s.Reason != "" {
		return "error: " + s.Reason
	}
	return s.State.String()
}

// Connected reports whether the session is in the Connected state
func (s Status) Connected() bool {
	return s.State == StateConnected
}
