package session

// State is the connection lifecycle state of a Client. Transitions are
// serialized by the client mutex and never run concurrently.
type State int

const (
	// StateDisconnected is the initial state before Connect.
	StateDisconnected State = iota

	// StateConnecting means the transport dial is in progress.
	StateConnecting

	// StateAwaitingHandshake means the configuration message was sent and
	// the client is waiting for the server acknowledgment. No frame may be
	// transmitted in this state.
	StateAwaitingHandshake

	// StateReady means the handshake completed and frames may be sent.
	StateReady

	// StateActive means at least one frame has been released since the
	// handshake.
	StateActive

	// StateClosed is the terminal state after Close or a server-announced
	// session end. Enqueue and dispatch become no-ops.
	StateClosed

	// StateFailed means the transport failed. Reconnection requires an
	// explicit Connect call.
	StateFailed
)

// String returns a readable name for the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHandshake:
		return "awaitingHandshake"
	case StateReady:
		return "ready"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// streamable reports whether frames may be released in this state.
func (s State) streamable() bool {
	return s == StateReady || s == StateActive
}

// terminal reports whether the session has ended.
func (s State) terminal() bool {
	return s == StateClosed || s == StateFailed
}
