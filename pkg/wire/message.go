package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries is used when a message is created (or decoded)
// without an explicit retry budget.
const DefaultMaxRetries = 3

// Message is an immutable outbound or inbound unit. The zero value is
// not usable; construct through NewMessage or the typed helpers.
type Message struct {
	ID          string
	Payload     Payload
	CreatedAt   time.Time
	RequiresAck bool
	RetryCount  int
	MaxRetries  int
}

// NewMessage creates a message around the given payload, assigning a
// fresh id and the default retry budget.
func NewMessage(p Payload) Message {
	return Message{
		ID:         uuid.NewString(),
		Payload:    p,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: DefaultMaxRetries,
	}
}

// NewText creates a plain text message.
func NewText(s string) Message {
	return NewMessage(TextPayload(s))
}

// NewBinary creates a binary message.
func NewBinary(b []byte) Message {
	return NewMessage(BinaryPayload(b))
}

// NewJSON marshals v into a structured message. The body is encoded
// once, here, so what goes over the wire is canonical JSON rather than
// some default string form of v.
func NewJSON(v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("marshal structured payload: %w", err)
	}
	return NewMessage(StructuredPayload(data)), nil
}

// NewControl creates a control message ("ping" or "pong"). Control
// messages never require an ack and are never retried.
func NewControl(token string) Message {
	m := NewMessage(ControlPayload(token))
	m.MaxRetries = 0
	return m
}

// Kind returns the payload variant tag.
func (m Message) Kind() Kind {
	if m.Payload == nil {
		return ""
	}
	return m.Payload.Kind()
}

// CanRetry reports whether the message still has retry budget left.
func (m Message) CanRetry() bool {
	return m.RetryCount < m.MaxRetries
}

// WithRetry returns a copy with the retry counter advanced by one. The
// receiver is left untouched.
func (m Message) WithRetry() Message {
	m.RetryCount++
	return m
}
