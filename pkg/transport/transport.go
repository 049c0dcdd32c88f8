// Package transport defines the raw frame-transport contract the
// connection layer depends on, plus its default WebSocket
// implementation.
//
// The contract is deliberately small: open an address into a Session,
// send frames, receive a push-based stream of inbound frames, observe
// termination. Implementations that cannot honor every Option (custom
// headers, subprotocols) proceed without them; partial capability is
// not an error.
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrNotConnected is returned by Send once a session has terminated.
var ErrNotConnected = errors.New("transport: not connected")

// FrameType distinguishes text from binary frames.
type FrameType int

const (
	FrameText FrameType = iota + 1
	FrameBinary
)

// Frame is one unit on the wire.
type Frame struct {
	Type FrameType
	Data []byte
}

// TextFrame builds a text frame.
func TextFrame(data []byte) Frame { return Frame{Type: FrameText, Data: data} }

// BinaryFrame builds a binary frame.
func BinaryFrame(data []byte) Frame { return Frame{Type: FrameBinary, Data: data} }

// Options carries optional dial parameters. Implementations apply what
// they support and silently skip the rest.
type Options struct {
	Headers          map[string]string
	Subprotocols     []string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadBufferSize   int
}

// Transport opens sessions to remote endpoints.
type Transport interface {
	// Open dials the address and returns a live session. The context
	// bounds the dial only, not the session lifetime.
	Open(ctx context.Context, addr string, opts Options) (Session, error)
}

// Session is one live bidirectional frame stream.
type Session interface {
	// Send writes a frame. Returns ErrNotConnected once the session has
	// terminated.
	Send(f Frame) error

	// Close tears the session down. Idempotent.
	Close() error

	// Frames returns the inbound frame stream. The channel closes when
	// the session terminates, after all received frames are delivered.
	Frames() <-chan Frame

	// Done is closed when the session terminates for any reason.
	Done() <-chan struct{}

	// Err returns the terminating error, or nil after a clean local
	// Close. Valid once Done is closed.
	Err() error
}
