package conn

// State is the connection lifecycle state. Transitions happen only
// inside Connection; there is no external writer.
type State string

const (
	StateInitial      State = "initial"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateClosing      State = "closing"
	StateClosed       State = "closed"
	StateFailed       State = "failed"
	StateReconnecting State = "reconnecting"
	StateSuspended    State = "suspended"
)

// IsActive reports whether the connection is establishing or holding a
// session.
func (s State) IsActive() bool {
	switch s {
	case StateConnecting, StateConnected, StateReconnecting:
		return true
	}
	return false
}

// IsTerminalFailure reports whether the connection has ended and will
// not recover on its own.
func (s State) IsTerminalFailure() bool {
	return s == StateClosed || s == StateFailed
}

// CanSend reports whether Send is currently allowed.
func (s State) CanSend() bool {
	return s == StateConnected
}
