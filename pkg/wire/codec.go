package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// envelope is the persisted JSON form of a Message.
type envelope struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	RequiresAck bool            `json:"requires_ack,omitempty"`
	RetryCount  int             `json:"retry_count,omitempty"`
	MaxRetries  *int            `json:"max_retries,omitempty"`
}

// Encode serializes the message to its canonical JSON envelope.
func Encode(m Message) ([]byte, error) {
	if m.Payload == nil {
		return nil, fmt.Errorf("encode message %s: nil payload", m.ID)
	}

	var body json.RawMessage
	switch v := m.Payload.(type) {
	case TextPayload:
		b, _ := json.Marshal(string(v))
		body = b
	case BinaryPayload:
		b, _ := json.Marshal([]byte(v)) // base64
		body = b
	case StructuredPayload:
		body = json.RawMessage(v)
	case ControlPayload:
		b, _ := json.Marshal(string(v))
		body = b
	}

	maxRetries := m.MaxRetries
	return json.Marshal(envelope{
		ID:          m.ID,
		Kind:        m.Kind(),
		Payload:     body,
		CreatedAt:   m.CreatedAt,
		RequiresAck: m.RequiresAck,
		RetryCount:  m.RetryCount,
		MaxRetries:  &maxRetries,
	})
}

// Decode parses a JSON envelope back into a Message. Missing optional
// fields fall back to their defaults: requires_ack false, retry_count 0,
// max_retries DefaultMaxRetries.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("decode message envelope: %w", err)
	}
	if env.ID == "" {
		return Message{}, fmt.Errorf("decode message envelope: missing id")
	}

	var payload Payload
	switch env.Kind {
	case KindText:
		var s string
		if err := json.Unmarshal(env.Payload, &s); err != nil {
			return Message{}, fmt.Errorf("decode text payload: %w", err)
		}
		payload = TextPayload(s)
	case KindBinary:
		var b []byte
		if err := json.Unmarshal(env.Payload, &b); err != nil {
			return Message{}, fmt.Errorf("decode binary payload: %w", err)
		}
		payload = BinaryPayload(b)
	case KindStructured:
		if !json.Valid(env.Payload) {
			return Message{}, fmt.Errorf("decode structured payload: invalid JSON")
		}
		payload = StructuredPayload(env.Payload)
	case KindControl:
		var s string
		if err := json.Unmarshal(env.Payload, &s); err != nil {
			return Message{}, fmt.Errorf("decode control payload: %w", err)
		}
		payload = ControlPayload(s)
	default:
		return Message{}, fmt.Errorf("decode message envelope: unknown kind %q", env.Kind)
	}

	maxRetries := DefaultMaxRetries
	if env.MaxRetries != nil {
		maxRetries = *env.MaxRetries
	}

	return Message{
		ID:          env.ID,
		Payload:     payload,
		CreatedAt:   env.CreatedAt,
		RequiresAck: env.RequiresAck,
		RetryCount:  env.RetryCount,
		MaxRetries:  maxRetries,
	}, nil
}
