package wire

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestNewMessage_Defaults(t *testing.T) {
	m := NewText("hello")

	if m.ID == "" {
		t.Error("expected a generated id")
	}
	if m.Kind() != KindText {
		t.Errorf("Kind() = %q, want %q", m.Kind(), KindText)
	}
	if m.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", m.MaxRetries, DefaultMaxRetries)
	}
	if m.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", m.RetryCount)
	}
	if m.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestWithRetry_DoesNotMutateOriginal(t *testing.T) {
	m := NewText("payload")
	r := m.WithRetry()

	if m.RetryCount != 0 {
		t.Errorf("original RetryCount = %d, want 0", m.RetryCount)
	}
	if r.RetryCount != 1 {
		t.Errorf("copy RetryCount = %d, want 1", r.RetryCount)
	}
	if r.ID != m.ID {
		t.Errorf("copy ID = %q, want %q", r.ID, m.ID)
	}
}

func TestCanRetry(t *testing.T) {
	m := NewText("x")
	m.MaxRetries = 2

	for i := 0; i < 2; i++ {
		if !m.CanRetry() {
			t.Fatalf("CanRetry() = false at retry count %d", m.RetryCount)
		}
		m = m.WithRetry()
	}
	if m.CanRetry() {
		t.Errorf("CanRetry() = true at retry count %d, max %d", m.RetryCount, m.MaxRetries)
	}
}

func TestNewControl_NoRetryBudget(t *testing.T) {
	m := NewControl(ControlPing)
	if m.Kind() != KindControl {
		t.Errorf("Kind() = %q, want %q", m.Kind(), KindControl)
	}
	if m.CanRetry() {
		t.Error("control messages must not be retryable")
	}
}

func TestNewJSON_CanonicalEncoding(t *testing.T) {
	m, err := NewJSON(map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("NewJSON failed: %v", err)
	}

	body, binary := Body(m.Payload)
	if binary {
		t.Error("structured payloads must go out as text frames")
	}
	if !json.Valid(body) {
		t.Errorf("body is not valid JSON: %s", body)
	}
	if !bytes.Equal(body, []byte(`{"a":1}`)) {
		t.Errorf("body = %s, want %s", body, `{"a":1}`)
	}
}

func TestBody(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		want    []byte
		binary  bool
	}{
		{"text", TextPayload("hi"), []byte("hi"), false},
		{"binary", BinaryPayload{0x01, 0x02}, []byte{0x01, 0x02}, true},
		{"structured", StructuredPayload(`{"k":"v"}`), []byte(`{"k":"v"}`), false},
		{"control", ControlPayload(ControlPong), []byte("pong"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, binary := Body(tt.payload)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Body() = %q, want %q", got, tt.want)
			}
			if binary != tt.binary {
				t.Errorf("binary = %v, want %v", binary, tt.binary)
			}
		})
	}
}

func TestClassifyText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Kind
	}{
		{"ping token", "ping", KindControl},
		{"pong token", "pong", KindControl},
		{"json object", `{"type":"greeting"}`, KindStructured},
		{"json array", `[1,2,3]`, KindStructured},
		{"json with leading space", `  {"a":1}`, KindStructured},
		{"plain text", "hello there", KindText},
		{"malformed json degrades to text", `{"broken":`, KindText},
		{"bare number stays text", "42", KindText},
		{"empty", "", KindText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyText(tt.in).Kind()
			if got != tt.want {
				t.Errorf("ClassifyText(%q).Kind() = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestClassifyText_PreservesKeyOrder(t *testing.T) {
	in := `{"z":1,"a":2}`
	p := ClassifyText(in)
	sp, ok := p.(StructuredPayload)
	if !ok {
		t.Fatalf("expected StructuredPayload, got %T", p)
	}
	if string(sp) != in {
		t.Errorf("structured bytes = %q, want verbatim %q", sp, in)
	}
}

func messageEqual(a, b Message) bool {
	if a.ID != b.ID || a.RequiresAck != b.RequiresAck ||
		a.RetryCount != b.RetryCount || a.MaxRetries != b.MaxRetries {
		return false
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return false
	}
	ab, abin := Body(a.Payload)
	bb, bbin := Body(b.Payload)
	return a.Kind() == b.Kind() && abin == bbin && bytes.Equal(ab, bb)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	structured, err := NewJSON(map[string]any{"op": "subscribe", "ch": []string{"a", "b"}})
	if err != nil {
		t.Fatalf("NewJSON failed: %v", err)
	}

	acked := NewText("needs ack")
	acked.RequiresAck = true
	acked = acked.WithRetry()

	tests := []struct {
		name string
		msg  Message
	}{
		{"text", NewText("hello")},
		{"binary", NewBinary([]byte{0x00, 0xFF, 0x10})},
		{"structured", structured},
		{"control", NewControl(ControlPing)},
		{"ack and retry flags", acked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !messageEqual(got, tt.msg) {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, tt.msg)
			}
		})
	}
}

func TestDecode_MissingOptionalFields(t *testing.T) {
	data := []byte(`{"id":"m-1","kind":"text","payload":"hi","created_at":"2026-01-02T15:04:05Z"}`)

	m, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if m.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want default %d", m.MaxRetries, DefaultMaxRetries)
	}
	if m.RequiresAck {
		t.Error("RequiresAck = true, want default false")
	}
	if m.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want default 0", m.RetryCount)
	}
	want := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	if !m.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", m.CreatedAt, want)
	}
}

func TestDecode_ZeroMaxRetriesIsExplicit(t *testing.T) {
	m := NewText("fire and forget")
	m.MaxRetries = 0

	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want explicit 0", got.MaxRetries)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "nope"},
		{"missing id", `{"kind":"text","payload":"x"}`},
		{"unknown kind", `{"id":"a","kind":"exotic","payload":"x"}`},
		{"invalid structured body", `{"id":"a","kind":"structured","payload":{"x":}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.data)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
