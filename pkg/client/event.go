package client

import "time"

// State is the manager's externally observable state, derived from the
// owned connection plus reconnection bookkeeping.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDisconnected State = "disconnected"
)

// EventType tags entries on the manager event stream.
type EventType string

const (
	EventConnected          EventType = "connected"
	EventDisconnected       EventType = "disconnected"
	EventReconnecting       EventType = "reconnecting"
	EventReconnected        EventType = "reconnected"
	EventReconnectionFailed EventType = "reconnection_failed"
	EventConnectionFailed   EventType = "connection_failed"
	EventMessageSent        EventType = "message_sent"
	EventMessageQueued      EventType = "message_queued"
	EventMessageDropped     EventType = "message_dropped"
	EventError              EventType = "error"
)

// Event is one entry on the manager event stream.
type Event struct {
	Type      EventType
	Err       error
	MessageID string
	Attempt   int
	At        time.Time
}

func newEvent(t EventType) Event {
	return Event{Type: t, At: time.Now()}
}
