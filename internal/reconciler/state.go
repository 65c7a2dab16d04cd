package reconciler

// State is the lifecycle position of a room session.
type State int

const (
	// StateUnresolved is the entry state while the reconciler decides how to join.
	StateUnresolved State = iota
	// StateAwaitingIdentity waits for a guest display name.
	StateAwaitingIdentity
	// StateRequesting has a credential request in flight.
	StateRequesting
	// StateConnected holds a live transport connection.
	StateConnected
	// StateDisconnected is reached on leave or transport disconnect.
	StateDisconnected
	// StateFailed is reached when a fetch or connect fails. Retry leaves it.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnresolved:
		return "unresolved"
	case StateAwaitingIdentity:
		return "awaiting_identity"
	case StateRequesting:
		return "requesting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// active reports whether a session in s owns or may soon own resources.
func (s State) active() bool {
	return s == StateUnresolved || s == StateRequesting || s == StateConnected || s == StateAwaitingIdentity
}
