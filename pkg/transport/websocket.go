package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultFrameBuffer      = 256
)

// WebSocket is the default Transport, backed by gorilla/websocket.
type WebSocket struct {
	logger *slog.Logger
}

// NewWebSocket creates a WebSocket transport.
func NewWebSocket(logger *slog.Logger) *WebSocket {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocket{logger: logger}
}

// Open dials the address and starts the session read loop.
func (t *WebSocket) Open(ctx context.Context, addr string, opts Options) (Session, error) {
	handshake := opts.HandshakeTimeout
	if handshake <= 0 {
		handshake = defaultHandshakeTimeout
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshake,
		Subprotocols:     opts.Subprotocols,
	}

	header := http.Header{}
	for k, v := range opts.Headers {
		header.Set(k, v)
	}

	conn, _, err := dialer.DialContext(ctx, addr, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	buffer := opts.ReadBufferSize
	if buffer <= 0 {
		buffer = defaultFrameBuffer
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	s := &wsSession{
		conn:         conn,
		writeTimeout: writeTimeout,
		frames:       make(chan Frame, buffer),
		done:         make(chan struct{}),
		closing:      make(chan struct{}),
	}
	go s.readLoop()

	t.logger.Debug("websocket session opened", "addr", addr)
	return s, nil
}

// wsSession implements Session over a gorilla connection.
type wsSession struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	frames  chan Frame
	done    chan struct{}
	closing chan struct{}

	writeMu sync.Mutex

	mu     sync.Mutex
	err    error
	closed bool
}

func (s *wsSession) Send(f Frame) error {
	select {
	case <-s.done:
		return ErrNotConnected
	default:
	}

	msgType := websocket.TextMessage
	if f.Type == FrameBinary {
		msgType = websocket.BinaryMessage
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteMessage(msgType, f.Data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (s *wsSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closing)
	s.mu.Unlock()

	s.writeMu.Lock()
	s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	s.writeMu.Unlock()

	return s.conn.Close()
}

func (s *wsSession) Frames() <-chan Frame { return s.frames }

func (s *wsSession) Done() <-chan struct{} { return s.done }

func (s *wsSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// readLoop pumps inbound frames until the connection dies. A full frame
// buffer applies backpressure on the peer rather than dropping; a local
// Close unblocks the loop. Errors after a local Close are discarded.
func (s *wsSession) readLoop() {
	defer func() {
		close(s.done)
		close(s.frames)
	}()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			if !s.closed {
				s.err = err
			}
			s.mu.Unlock()
			return
		}

		var frame Frame
		switch msgType {
		case websocket.TextMessage:
			frame = TextFrame(data)
		case websocket.BinaryMessage:
			frame = BinaryFrame(data)
		default:
			continue
		}

		select {
		case s.frames <- frame:
		case <-s.closing:
			return
		}
	}
}
