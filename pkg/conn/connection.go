package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/viaduct-io/wireline/pkg/stream"
	"github.com/viaduct-io/wireline/pkg/transport"
	"github.com/viaduct-io/wireline/pkg/wire"
)

// Errors surfaced by Connection.
var (
	ErrNotConnected     = errors.New("connection: not connected")
	ErrConnectionFailed = errors.New("connection: connect failed")
	ErrSendFailed       = errors.New("connection: send failed")
	ErrSessionLost      = errors.New("connection: session terminated")
	ErrHeartbeatTimeout = errors.New("connection: heartbeat timeout")
	ErrDisposed         = errors.New("connection: disposed")
)

// Default timing parameters.
const (
	DefaultConnectTimeout    = 10 * time.Second
	DefaultHeartbeatInterval = 15 * time.Second
)

// Config holds per-connection settings.
type Config struct {
	Addr              string
	Options           transport.Options
	ConnectTimeout    time.Duration
	HeartbeatInterval time.Duration
	EnableHeartbeat   bool
}

func (cfg *Config) applyDefaults() {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
}

// Stats is a point-in-time snapshot of per-connection counters.
type Stats struct {
	Sent       int64
	Received   int64
	Errors     int64
	LastPingAt time.Time
	LastPongAt time.Time
	Latency    time.Duration
}

// Connection owns exactly one transport session and its state machine.
// State transitions, inbound classification and the heartbeat all live
// here; reconnection policy does not.
type Connection struct {
	cfg    Config
	tr     transport.Transport
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	session    transport.Session
	userClosed bool
	hbStop     chan struct{}

	states   *stream.Broadcaster[State]
	messages *stream.Broadcaster[wire.Message]
	events   *stream.Broadcaster[Event]

	sent     atomic.Int64
	received atomic.Int64
	errs     atomic.Int64
	disposed atomic.Bool

	pingMu     sync.Mutex
	lastPingAt time.Time
	lastPongAt time.Time
	latency    time.Duration

	closeOnce sync.Once
}

// New creates a Connection in the Initial state. Nothing is dialed
// until Connect.
func New(cfg Config, tr transport.Transport, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &Connection{
		cfg:      cfg,
		tr:       tr,
		logger:   logger,
		state:    StateInitial,
		states:   stream.NewBroadcaster[State](),
		messages: stream.NewBroadcaster[wire.Message](),
		events:   stream.NewBroadcaster[Event](),
	}
}

// State returns the current state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// States subscribes to state transitions, delivered in order with no
// coalescing.
func (c *Connection) States() (<-chan State, func()) {
	return c.states.Subscribe()
}

// Messages subscribes to inbound application messages. Control frames
// are intercepted and never appear here.
func (c *Connection) Messages() (<-chan wire.Message, func()) {
	return c.messages.Subscribe()
}

// Events subscribes to the generic event stream.
func (c *Connection) Events() (<-chan Event, func()) {
	return c.events.Subscribe()
}

// Connect dials the transport. No-op when already connecting or
// connected. On timeout or dial error the connection enters Failed and
// a connection_failed event is emitted.
func (c *Connection) Connect(ctx context.Context) error {
	if c.disposed.Load() {
		return ErrDisposed
	}

	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.userClosed = false
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	sess, err := c.tr.Open(dialCtx, c.cfg.Addr, c.cfg.Options)
	if err != nil {
		c.mu.Lock()
		if c.userClosed || c.state != StateConnecting {
			c.mu.Unlock()
			return ErrNotConnected
		}
		c.setStateLocked(StateFailed)
		c.mu.Unlock()
		c.errs.Inc()

		werr := fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		ev := newEvent(EventConnectionFailed)
		ev.Err = werr
		c.events.Publish(ev)
		return werr
	}

	c.mu.Lock()
	// A Disconnect or Close that landed while the dial was in flight
	// wins: discard the fresh session instead of resurrecting the
	// connection out of Closed.
	if c.disposed.Load() || c.userClosed || c.state != StateConnecting {
		c.mu.Unlock()
		sess.Close()
		if c.disposed.Load() {
			return ErrDisposed
		}
		return ErrNotConnected
	}
	c.session = sess
	hbStop := make(chan struct{})
	c.hbStop = hbStop
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.pingMu.Lock()
	c.lastPingAt, c.lastPongAt, c.latency = time.Time{}, time.Time{}, 0
	c.pingMu.Unlock()

	c.events.Publish(newEvent(EventConnected))
	c.logger.Debug("connected", "addr", c.cfg.Addr)

	go c.readLoop(sess)
	if c.cfg.EnableHeartbeat {
		go c.heartbeat(sess, hbStop)
	}
	return nil
}

// Disconnect closes the session cleanly. No-op when already Closed or
// Failed.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateFailed {
		c.mu.Unlock()
		return
	}
	c.userClosed = true
	c.setStateLocked(StateClosing)
	c.stopHeartbeatLocked()
	sess := c.session
	c.session = nil
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
	c.events.Publish(newEvent(EventDisconnected))
	c.logger.Debug("disconnected", "addr", c.cfg.Addr)
}

// Send serializes and writes one message. Fails with ErrNotConnected
// unless the connection is in the Connected state.
func (c *Connection) Send(m wire.Message) error {
	if m.Payload == nil {
		return fmt.Errorf("%w: nil payload", ErrSendFailed)
	}

	c.mu.Lock()
	sess := c.session
	ok := c.state.CanSend() && sess != nil
	c.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}

	body, binary := wire.Body(m.Payload)
	frame := transport.TextFrame(body)
	if binary {
		frame = transport.BinaryFrame(body)
	}

	if err := sess.Send(frame); err != nil {
		c.errs.Inc()
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	c.sent.Inc()
	ev := newEvent(EventMessageSent)
	ev.MessageID = m.ID
	c.events.Publish(ev)
	return nil
}

// Ping sends a heartbeat probe out of band and records its departure.
func (c *Connection) Ping() error {
	if err := c.Send(wire.NewControl(wire.ControlPing)); err != nil {
		return err
	}
	c.pingMu.Lock()
	c.lastPingAt = time.Now()
	c.pingMu.Unlock()
	return nil
}

// Stats returns a snapshot of the connection counters.
func (c *Connection) Stats() Stats {
	c.pingMu.Lock()
	lastPing, lastPong, latency := c.lastPingAt, c.lastPongAt, c.latency
	c.pingMu.Unlock()

	return Stats{
		Sent:       c.sent.Load(),
		Received:   c.received.Load(),
		Errors:     c.errs.Load(),
		LastPingAt: lastPing,
		LastPongAt: lastPong,
		Latency:    latency,
	}
}

// Close disposes the connection: disconnect, stop timers, close all
// three event streams. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.disposed.Store(true)
		c.Disconnect()
		c.states.Close()
		c.messages.Close()
		c.events.Close()
	})
}

// setStateLocked records and publishes a transition. Must be called
// with mu held; publishing under the lock keeps delivery in transition
// order.
func (c *Connection) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.states.Publish(s)
}

// stopHeartbeatLocked cancels the heartbeat timer. Must be called with
// mu held.
func (c *Connection) stopHeartbeatLocked() {
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
}

// readLoop consumes inbound frames until the session terminates. A
// termination that was not locally initiated moves the connection to
// Failed and emits an error event.
func (c *Connection) readLoop(sess transport.Session) {
	for f := range sess.Frames() {
		c.handleFrame(sess, f)
	}

	c.mu.Lock()
	stale := c.session != sess
	user := c.userClosed
	if !stale && !user {
		c.stopHeartbeatLocked()
		c.session = nil
		c.setStateLocked(StateFailed)
	}
	c.mu.Unlock()

	if stale || user {
		return
	}

	c.errs.Inc()
	err := sess.Err()
	if err == nil {
		err = ErrSessionLost
	}
	ev := newEvent(EventError)
	ev.Err = err
	c.events.Publish(ev)
	c.logger.Debug("session terminated", "addr", c.cfg.Addr, "error", err)
}

// handleFrame classifies one inbound frame. Control tokens are
// intercepted: ping is answered automatically, pong updates the
// heartbeat bookkeeping. Parse failures degrade to plain text and never
// reach the caller as errors.
func (c *Connection) handleFrame(sess transport.Session, f transport.Frame) {
	c.received.Inc()

	if f.Type == transport.FrameBinary {
		c.messages.Publish(wire.NewMessage(wire.BinaryPayload(f.Data)))
		return
	}

	payload := wire.ClassifyText(string(f.Data))
	if ctl, ok := payload.(wire.ControlPayload); ok {
		switch string(ctl) {
		case wire.ControlPing:
			if err := sess.Send(transport.TextFrame([]byte(wire.ControlPong))); err != nil {
				c.logger.Debug("pong reply failed", "error", err)
			}
		case wire.ControlPong:
			now := time.Now()
			c.pingMu.Lock()
			c.lastPongAt = now
			if !c.lastPingAt.IsZero() {
				c.latency = now.Sub(c.lastPingAt)
			}
			c.pingMu.Unlock()
		}
		return
	}

	c.messages.Publish(wire.NewMessage(payload))
}

// heartbeat sends a ping every HeartbeatInterval while connected. When
// both the last ping and the last pong are older than twice the
// interval, an error event is emitted as a liveness signal; the
// connection itself is left running.
func (c *Connection) heartbeat(sess transport.Session, stop <-chan struct{}) {
	interval := c.cfg.HeartbeatInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if c.disposed.Load() {
				return
			}
			c.mu.Lock()
			connected := c.state.CanSend() && c.session == sess
			c.mu.Unlock()
			if !connected {
				return
			}

			c.pingMu.Lock()
			lastPing, lastPong := c.lastPingAt, c.lastPongAt
			c.pingMu.Unlock()

			if !lastPing.IsZero() && !lastPong.IsZero() &&
				time.Since(lastPing) > 2*interval && time.Since(lastPong) > 2*interval {
				ev := newEvent(EventError)
				ev.Err = ErrHeartbeatTimeout
				c.events.Publish(ev)
			}

			if err := sess.Send(transport.TextFrame([]byte(wire.ControlPing))); err != nil {
				c.logger.Debug("heartbeat send failed", "error", err)
				continue
			}
			c.pingMu.Lock()
			c.lastPingAt = time.Now()
			c.pingMu.Unlock()
		}
	}
}
