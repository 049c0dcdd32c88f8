package wire

import "encoding/json"

// Kind identifies the payload variant carried by a Message.
type Kind string

const (
	KindText       Kind = "text"
	KindBinary     Kind = "binary"
	KindStructured Kind = "structured"
	KindControl    Kind = "control"
)

// Control tokens. Heartbeat probes travel as literal text frames.
const (
	ControlPing = "ping"
	ControlPong = "pong"
)

// Payload is the closed union of message bodies. Exactly four types
// implement it: TextPayload, BinaryPayload, StructuredPayload and
// ControlPayload.
type Payload interface {
	Kind() Kind
}

// TextPayload is a plain UTF-8 text body.
type TextPayload string

func (TextPayload) Kind() Kind { return KindText }

// BinaryPayload is a raw byte body.
type BinaryPayload []byte

func (BinaryPayload) Kind() Kind { return KindBinary }

// StructuredPayload is a JSON document body. The raw bytes are kept
// verbatim so key order survives a round trip.
type StructuredPayload json.RawMessage

func (StructuredPayload) Kind() Kind { return KindStructured }

// ControlPayload is a protocol control token ("ping" or "pong").
type ControlPayload string

func (ControlPayload) Kind() Kind { return KindControl }

// Body returns the payload serialized for the transport: text as-is,
// binary as raw bytes, structured as its canonical JSON encoding and
// control as the literal token. The second result reports whether the
// frame must be sent as binary.
func Body(p Payload) ([]byte, bool) {
	switch v := p.(type) {
	case TextPayload:
		return []byte(v), false
	case BinaryPayload:
		return v, true
	case StructuredPayload:
		return []byte(v), false
	case ControlPayload:
		return []byte(v), false
	default:
		return nil, false
	}
}

// ClassifyText builds the payload for an inbound text frame. Control
// tokens are intercepted as ControlPayload; anything that parses as a
// JSON object or array is reclassified as structured; everything else,
// including malformed JSON, stays plain text.
func ClassifyText(s string) Payload {
	switch s {
	case ControlPing, ControlPong:
		return ControlPayload(s)
	}
	if looksStructured(s) && json.Valid([]byte(s)) {
		return StructuredPayload(s)
	}
	return TextPayload(s)
}

func looksStructured(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[':
			return true
		default:
			return false
		}
	}
	return false
}
