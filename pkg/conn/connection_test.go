package conn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/viaduct-io/wireline/pkg/transport"
	"github.com/viaduct-io/wireline/pkg/transport/transporttest"
	"github.com/viaduct-io/wireline/pkg/wire"
)

func newTestConn(t *testing.T, cfg Config) (*Connection, *transporttest.Transport) {
	t.Helper()
	if cfg.Addr == "" {
		cfg.Addr = "ws://test.invalid/stream"
	}
	tr := transporttest.New()
	c := New(cfg, tr, nil)
	t.Cleanup(c.Close)
	return c, tr
}

func waitState(t *testing.T, ch <-chan State, want State) {
	t.Helper()
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				t.Fatalf("state stream closed while waiting for %q", want)
			}
			if s == want {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for state %q", want)
		}
	}
}

func waitEvent(t *testing.T, ch <-chan Event, want EventType) Event {
	t.Helper()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event stream closed while waiting for %q", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %q", want)
		}
	}
}

func waitFrame(t *testing.T, s *transporttest.Session) transport.Frame {
	t.Helper()
	select {
	case f := <-s.SentFrames():
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an outbound frame")
		return transport.Frame{}
	}
}

func TestConnect_StateTransitionsInOrder(t *testing.T) {
	c, _ := newTestConn(t, Config{})

	states, cancel := c.States()
	defer cancel()
	events, cancelEv := c.Events()
	defer cancelEv()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	waitState(t, states, StateConnecting)
	waitState(t, states, StateConnected)
	waitEvent(t, events, EventConnected)

	if got := c.State(); got != StateConnected {
		t.Errorf("State() = %q, want %q", got, StateConnected)
	}
}

func TestConnect_NoOpWhenConnected(t *testing.T) {
	c, tr := newTestConn(t, Config{})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}
	if tr.OpenCount() != 1 {
		t.Errorf("OpenCount = %d, want 1 (second Connect must be a no-op)", tr.OpenCount())
	}
}

func TestConnect_DialFailure(t *testing.T) {
	c, tr := newTestConn(t, Config{})
	tr.FailDials(errors.New("refused"))

	events, cancel := c.Events()
	defer cancel()

	err := c.Connect(context.Background())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect error = %v, want ErrConnectionFailed", err)
	}
	if got := c.State(); got != StateFailed {
		t.Errorf("State() = %q, want %q", got, StateFailed)
	}

	ev := waitEvent(t, events, EventConnectionFailed)
	if ev.Err == nil {
		t.Error("connection_failed event carries no error")
	}
}

func TestConnect_ExplicitRetryAfterFailure(t *testing.T) {
	c, tr := newTestConn(t, Config{})
	tr.FailDials(errors.New("refused"))

	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected dial failure")
	}
	if got := c.State(); got != StateFailed {
		t.Fatalf("State() = %q, want %q", got, StateFailed)
	}

	// Failed never flips back to Connecting on its own; a fresh Connect
	// call is the only path out.
	tr.FailDials(nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("retry Connect failed: %v", err)
	}
	if got := c.State(); got != StateConnected {
		t.Errorf("State() = %q, want %q", got, StateConnected)
	}
}

func TestSend_NotConnected(t *testing.T) {
	c, _ := newTestConn(t, Config{})

	if err := c.Send(wire.NewText("early")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send error = %v, want ErrNotConnected", err)
	}
}

func TestSend_SerializationPerKind(t *testing.T) {
	c, tr := newTestConn(t, Config{})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	sess := tr.Last()

	structured, err := wire.NewJSON(map[string]string{"greeting": "hi"})
	if err != nil {
		t.Fatalf("NewJSON failed: %v", err)
	}

	tests := []struct {
		name     string
		msg      wire.Message
		wantType transport.FrameType
		wantData string
	}{
		{"text as-is", wire.NewText("plain body"), transport.FrameText, "plain body"},
		{"binary raw", wire.NewBinary([]byte{0x1, 0x2}), transport.FrameBinary, "\x01\x02"},
		{"structured canonical json", structured, transport.FrameText, `{"greeting":"hi"}`},
		{"control literal token", wire.NewControl(wire.ControlPing), transport.FrameText, "ping"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Send(tt.msg); err != nil {
				t.Fatalf("Send failed: %v", err)
			}
			f := waitFrame(t, sess)
			if f.Type != tt.wantType {
				t.Errorf("frame type = %d, want %d", f.Type, tt.wantType)
			}
			if string(f.Data) != tt.wantData {
				t.Errorf("frame data = %q, want %q", f.Data, tt.wantData)
			}
		})
	}

	if got := c.Stats().Sent; got != int64(len(tests)) {
		t.Errorf("Stats().Sent = %d, want %d", got, len(tests))
	}
}

func TestSend_EmitsMessageSent(t *testing.T) {
	c, _ := newTestConn(t, Config{})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	events, cancel := c.Events()
	defer cancel()

	m := wire.NewText("traced")
	if err := c.Send(m); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	ev := waitEvent(t, events, EventMessageSent)
	if ev.MessageID != m.ID {
		t.Errorf("event MessageID = %q, want %q", ev.MessageID, m.ID)
	}
}

func TestInbound_Classification(t *testing.T) {
	c, tr := newTestConn(t, Config{})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	msgs, cancel := c.Messages()
	defer cancel()
	sess := tr.Last()

	sess.PushText(`{"kind":"order","qty":3}`)
	sess.PushText("just words")
	sess.Push(transport.BinaryFrame([]byte{0xCA, 0xFE}))
	sess.PushText(`{"broken":`)

	wantKinds := []wire.Kind{wire.KindStructured, wire.KindText, wire.KindBinary, wire.KindText}
	for i, want := range wantKinds {
		select {
		case m := <-msgs:
			if m.Kind() != want {
				t.Errorf("message %d kind = %q, want %q", i, m.Kind(), want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestInbound_PingAnsweredWithPong(t *testing.T) {
	c, tr := newTestConn(t, Config{})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	msgs, cancel := c.Messages()
	defer cancel()
	sess := tr.Last()

	sess.PushText(wire.ControlPing)

	f := waitFrame(t, sess)
	if string(f.Data) != wire.ControlPong {
		t.Errorf("auto-reply = %q, want %q", f.Data, wire.ControlPong)
	}

	// The ping itself must not surface as an application message.
	select {
	case m := <-msgs:
		t.Errorf("control frame surfaced as message: %+v", m)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestInbound_PongRecordsLatency(t *testing.T) {
	c, tr := newTestConn(t, Config{})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	sess := tr.Last()

	if err := c.Ping(); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	waitFrame(t, sess) // the outbound ping

	sess.PushText(wire.ControlPong)

	deadline := time.Now().Add(2 * time.Second)
	for {
		s := c.Stats()
		if !s.LastPongAt.IsZero() {
			if s.Latency <= 0 {
				t.Errorf("Latency = %v, want > 0", s.Latency)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("pong never recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionFailure_MovesToFailed(t *testing.T) {
	c, tr := newTestConn(t, Config{})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	states, cancel := c.States()
	defer cancel()
	events, cancelEv := c.Events()
	defer cancelEv()

	tr.Last().Fail(errors.New("wire cut"))

	waitState(t, states, StateFailed)
	ev := waitEvent(t, events, EventError)
	if ev.Err == nil {
		t.Error("error event carries no error")
	}
}

func TestDisconnect_CleanClose(t *testing.T) {
	c, tr := newTestConn(t, Config{})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	states, cancel := c.States()
	defer cancel()
	events, cancelEv := c.Events()
	defer cancelEv()

	c.Disconnect()
	c.Disconnect() // no-op from Closed

	waitState(t, states, StateClosing)
	waitState(t, states, StateClosed)
	waitEvent(t, events, EventDisconnected)

	// Locally initiated close must not be reported as a failure.
	if got := c.State(); got != StateClosed {
		t.Errorf("State() = %q, want %q", got, StateClosed)
	}
	if tr.OpenCount() != 1 {
		t.Errorf("OpenCount = %d, want 1", tr.OpenCount())
	}
}

func TestDisconnect_DuringDialWins(t *testing.T) {
	c, tr := newTestConn(t, Config{})

	entered := make(chan struct{})
	release := make(chan struct{})
	tr.SetOpenHook(func() {
		close(entered)
		<-release
	})

	states, cancel := c.States()
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- c.Connect(context.Background()) }()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("dial never started")
	}
	c.Disconnect()
	close(release)

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrNotConnected) {
			t.Fatalf("Connect = %v, want ErrNotConnected", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return")
	}

	// The Disconnect wins: the late dial result must not pull the
	// connection back out of Closed, and its session must be closed.
	waitState(t, states, StateClosed)
	if got := c.State(); got != StateClosed {
		t.Errorf("State() = %q, want %q", got, StateClosed)
	}
	if err := tr.Last().Send(transport.TextFrame([]byte("x"))); !errors.Is(err, transport.ErrNotConnected) {
		t.Errorf("orphaned session Send = %v, want transport.ErrNotConnected", err)
	}
	select {
	case s := <-states:
		t.Errorf("unexpected state %q after Closed", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHeartbeat_SendsPings(t *testing.T) {
	c, tr := newTestConn(t, Config{
		EnableHeartbeat:   true,
		HeartbeatInterval: 20 * time.Millisecond,
	})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	sess := tr.Last()

	for i := 0; i < 2; i++ {
		f := waitFrame(t, sess)
		if string(f.Data) != wire.ControlPing {
			t.Fatalf("heartbeat frame = %q, want %q", f.Data, wire.ControlPing)
		}
	}
}

func TestHeartbeat_TimeoutIsSignalOnly(t *testing.T) {
	c, tr := newTestConn(t, Config{
		EnableHeartbeat:   true,
		HeartbeatInterval: 15 * time.Millisecond,
	})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	sess := tr.Last()
	events, cancel := c.Events()
	defer cancel()

	// Answer exactly one ping so both a ping and a pong are recorded,
	// then blackhole the session: pings stop going out and both
	// timestamps age past 2x the interval.
	waitFrame(t, sess)
	sess.PushText(wire.ControlPong)
	sess.SetSendErr(errors.New("blackhole"))

	ev := waitEvent(t, events, EventError)
	if !errors.Is(ev.Err, ErrHeartbeatTimeout) {
		t.Errorf("event error = %v, want ErrHeartbeatTimeout", ev.Err)
	}

	// A heartbeat timeout is a signal, not a failure trigger.
	if got := c.State(); got != StateConnected {
		t.Errorf("State() = %q, want %q after heartbeat timeout", got, StateConnected)
	}
}

func TestClose_IdempotentTeardown(t *testing.T) {
	c, _ := newTestConn(t, Config{})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	events, cancel := c.Events()
	defer cancel()

	c.Close()
	c.Close()

	// All streams must end exactly once.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				if err := c.Connect(context.Background()); !errors.Is(err, ErrDisposed) {
					t.Errorf("Connect after Close = %v, want ErrDisposed", err)
				}
				return
			}
		case <-deadline:
			t.Fatal("event stream not closed after Close")
		}
	}
}
