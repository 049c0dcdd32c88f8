// Package transporttest provides an in-memory Transport for exercising
// the connection and manager layers without a network.
package transporttest

import (
	"context"
	"sync"

	"github.com/viaduct-io/wireline/pkg/transport"
)

// Transport is a scriptable in-memory transport.Transport.
type Transport struct {
	mu       sync.Mutex
	dialErr  error
	sendErr  error
	sendHook func(transport.Frame) error
	openHook func()
	dials    int
	sessions []*Session
}

// New creates a fake transport whose dials succeed.
func New() *Transport {
	return &Transport{}
}

// FailDials makes every subsequent Open return err. Pass nil to let
// dials succeed again.
func (t *Transport) FailDials(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dialErr = err
}

// FailSends makes Send on subsequently opened sessions return err.
func (t *Transport) FailSends(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
}

// SetSendHook installs a hook that runs on every Send of subsequently
// opened sessions, before the frame is recorded. A non-nil return is
// handed back to the caller as the send error.
func (t *Transport) SetSendHook(hook func(transport.Frame) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendHook = hook
}

// SetOpenHook installs a hook that runs inside every Open call, before
// the dial outcome is decided. Useful for stalling a dial mid-flight.
func (t *Transport) SetOpenHook(hook func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openHook = hook
}

// OpenCount returns how many sessions were opened so far.
func (t *Transport) OpenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// DialCount returns how many Open calls were made, successful or not.
func (t *Transport) DialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

// Last returns the most recently opened session, or nil.
func (t *Transport) Last() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sessions) == 0 {
		return nil
	}
	return t.sessions[len(t.sessions)-1]
}

// Open implements transport.Transport.
func (t *Transport) Open(ctx context.Context, addr string, opts transport.Options) (transport.Session, error) {
	t.mu.Lock()
	t.dials++
	openHook := t.openHook
	dialErr := t.dialErr
	sendErr := t.sendErr
	sendHook := t.sendHook
	t.mu.Unlock()

	if openHook != nil {
		openHook()
	}
	if dialErr != nil {
		return nil, dialErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &Session{
		addr:     addr,
		opts:     opts,
		sendErr:  sendErr,
		sendHook: sendHook,
		frames:   make(chan transport.Frame, 64),
		done:     make(chan struct{}),
		sentCh:   make(chan transport.Frame, 64),
	}
	t.mu.Lock()
	t.sessions = append(t.sessions, s)
	t.mu.Unlock()
	return s, nil
}

// Session is the in-memory counterpart of a live connection. The test
// acts as the remote peer through Push and Fail.
type Session struct {
	addr string
	opts transport.Options

	frames   chan transport.Frame
	done     chan struct{}
	sentCh   chan transport.Frame
	sendHook func(transport.Frame) error

	mu      sync.Mutex
	sent    []transport.Frame
	sendErr error
	err     error
	closed  bool
}

func (s *Session) Send(f transport.Frame) error {
	s.mu.Lock()
	closed := s.closed
	sendErr := s.sendErr
	s.mu.Unlock()

	if closed {
		return transport.ErrNotConnected
	}
	if s.sendHook != nil {
		if err := s.sendHook(f); err != nil {
			return err
		}
	}
	if sendErr != nil {
		return sendErr
	}

	s.mu.Lock()
	s.sent = append(s.sent, f)
	s.mu.Unlock()
	select {
	case s.sentCh <- f:
	default:
	}
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	close(s.frames)
	return nil
}

func (s *Session) Frames() <-chan transport.Frame { return s.frames }

func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Push delivers an inbound frame, as if the peer had sent it.
func (s *Session) Push(f transport.Frame) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.frames <- f
}

// PushText delivers an inbound text frame.
func (s *Session) PushText(text string) {
	s.Push(transport.TextFrame([]byte(text)))
}

// Fail terminates the session abnormally with err.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	s.mu.Unlock()

	close(s.done)
	close(s.frames)
}

// Sent returns a copy of every frame sent through this session.
func (s *Session) Sent() []transport.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]transport.Frame, len(s.sent))
	copy(out, s.sent)
	return out
}

// SentFrames exposes sends as a channel for tests that need to wait.
func (s *Session) SentFrames() <-chan transport.Frame { return s.sentCh }

// SetSendErr changes the send failure for this session.
func (s *Session) SetSendErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = err
}

// Opts returns the dial options the session was opened with.
func (s *Session) Opts() transport.Options { return s.opts }
