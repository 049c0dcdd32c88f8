package conn

import "time"

// EventType tags entries on the connection's generic event stream.
type EventType string

const (
	EventConnected        EventType = "connected"
	EventDisconnected     EventType = "disconnected"
	EventMessageSent      EventType = "message_sent"
	EventConnectionFailed EventType = "connection_failed"
	EventError            EventType = "error"
)

// Event is one entry on the connection event stream.
type Event struct {
	Type      EventType
	Err       error  // set for error and connection_failed events
	MessageID string // set for message_sent events
	At        time.Time
}

func newEvent(t EventType) Event {
	return Event{Type: t, At: time.Now()}
}
