package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/viaduct-io/wireline/pkg/backoff"
	"github.com/viaduct-io/wireline/pkg/conn"
	"github.com/viaduct-io/wireline/pkg/queue"
	"github.com/viaduct-io/wireline/pkg/stream"
	"github.com/viaduct-io/wireline/pkg/transport"
	"github.com/viaduct-io/wireline/pkg/wire"
)

// Errors surfaced by the Manager.
var (
	ErrNotConnected       = errors.New("client: not connected")
	ErrQueueFull          = errors.New("client: queue full")
	ErrDuplicateMessage   = errors.New("client: duplicate message id")
	ErrReconnectionFailed = errors.New("client: reconnection failed")
	ErrDisposed           = errors.New("client: disposed")
)

// Statistics is a fresh snapshot combining manager-level and
// connection-level counters. Never cached; every call recomputes both
// sources together.
type Statistics struct {
	State            State
	ReconnectAttempt int
	Reconnecting     bool
	Queue            queue.Stats
	Connection       conn.Stats
}

// Manager orchestrates the connect/reconnect lifecycle, the pending
// queue, and event fan-out. All methods are safe for concurrent use.
type Manager struct {
	cfg    Config
	tr     transport.Transport
	logger *slog.Logger
	policy backoff.Policy
	queue  *queue.Queue

	mu           sync.Mutex
	state        State
	conn         *conn.Connection
	unsubscribe  []func()
	attempt      int
	timerPending bool
	timer        *time.Timer
	disposed     bool
	journal      Journal

	states     *stream.Broadcaster[State]
	events     *stream.Broadcaster[Event]
	connStates *stream.Broadcaster[conn.State]
	messages   *stream.Broadcaster[wire.Message]

	closeOnce sync.Once
}

// New creates a Manager. The transport defaults to the WebSocket
// implementation when nil.
func New(cfg Config, tr transport.Transport, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	if tr == nil {
		tr = transport.NewWebSocket(logger)
	}

	return &Manager{
		cfg:    cfg,
		tr:     tr,
		logger: logger,
		policy: backoff.New(cfg.Backoff),
		queue: queue.New(queue.Options{
			MaxSize:     cfg.MaxQueueSize,
			Deduplicate: cfg.DeduplicateQueue,
		}),
		state:      StateIdle,
		states:     stream.NewBroadcaster[State](),
		events:     stream.NewBroadcaster[Event](),
		connStates: stream.NewBroadcaster[conn.State](),
		messages:   stream.NewBroadcaster[wire.Message](),
	}
}

// State returns the current manager state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// States subscribes to manager state changes.
func (m *Manager) States() (<-chan State, func()) {
	return m.states.Subscribe()
}

// Events subscribes to the manager event stream.
func (m *Manager) Events() (<-chan Event, func()) {
	return m.events.Subscribe()
}

// ConnectionStates subscribes to the raw connection state stream. The
// stream survives reconnects: states from successive connections are
// forwarded in order.
func (m *Manager) ConnectionStates() (<-chan conn.State, func()) {
	return m.connStates.Subscribe()
}

// Messages subscribes to inbound application messages.
func (m *Manager) Messages() (<-chan wire.Message, func()) {
	return m.messages.Subscribe()
}

// Connect establishes the managed connection. No-op when an active
// connection already exists. An explicit Connect resets any exhausted
// reconnection campaign.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	if m.conn != nil && m.conn.State().IsActive() {
		m.mu.Unlock()
		return nil
	}
	m.attempt = 0
	m.policy.Reset()
	m.mu.Unlock()

	return m.connect(ctx)
}

// connect builds a fresh connection, wires its streams, dials, and on
// success starts draining the queue.
func (m *Manager) connect(ctx context.Context) error {
	c := conn.New(conn.Config{
		Addr: m.cfg.Addr,
		Options: transport.Options{
			Headers:      m.cfg.Headers,
			Subprotocols: m.cfg.Subprotocols,
		},
		ConnectTimeout:    m.cfg.ConnectTimeout,
		HeartbeatInterval: m.cfg.HeartbeatInterval,
		EnableHeartbeat:   m.cfg.EnableHeartbeat,
	}, m.tr, m.logger)

	stateCh, cancelStates := c.States()
	eventCh, cancelEvents := c.Events()
	msgCh, cancelMsgs := c.Messages()

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		cancelStates()
		cancelEvents()
		cancelMsgs()
		c.Close()
		return ErrDisposed
	}
	// An explicit Connect after a terminal failure still holds the dead
	// connection; detach and dispose it before installing the new one,
	// or its streams and their watchers leak.
	old := m.teardownLocked()
	m.conn = c
	m.unsubscribe = []func(){cancelStates, cancelEvents, cancelMsgs}
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}

	go m.watchStates(c, stateCh)
	go m.watchEvents(c, eventCh)
	go m.forwardMessages(msgCh)

	if err := c.Connect(ctx); err != nil {
		// The failed state propagates through watchStates, which owns
		// reconnection scheduling; here we only report.
		return fmt.Errorf("connect: %w", err)
	}

	m.mu.Lock()
	wasReconnecting := m.attempt > 0
	m.attempt = 0
	m.policy.Reset()
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	if wasReconnecting {
		m.events.Publish(newEvent(EventReconnected))
		m.logger.Info("reconnected", "addr", m.cfg.Addr)
	} else {
		m.events.Publish(newEvent(EventConnected))
	}

	go m.drain(c)
	return nil
}

// Disconnect cancels any pending reconnection, resets the campaign and
// tears the connection down.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.cancelReconnectLocked()
	m.attempt = 0
	m.policy.Reset()
	c := m.teardownLocked()
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if c != nil {
		c.Close()
	}
	m.events.Publish(newEvent(EventDisconnected))
}

// Send delivers the message immediately when connected; otherwise it is
// queued (when queuing is enabled). A queue rejection emits an error
// event and is returned to the caller: messages are never dropped
// silently.
func (m *Manager) Send(msg wire.Message) error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	c := m.conn
	m.mu.Unlock()

	if c != nil && c.State().CanSend() {
		if err := c.Send(msg); err == nil {
			ev := newEvent(EventMessageSent)
			ev.MessageID = msg.ID
			m.events.Publish(ev)
			return nil
		} else if !m.cfg.EnableQueue {
			return err
		}
		// Delivery failed under our feet; fall through to the queue.
	}

	if !m.cfg.EnableQueue {
		return ErrNotConnected
	}

	if m.queue.Enqueue(msg) {
		ev := newEvent(EventMessageQueued)
		ev.MessageID = msg.ID
		m.events.Publish(ev)
		return nil
	}

	err := ErrQueueFull
	if m.cfg.DeduplicateQueue && m.queue.Len() < m.cfg.MaxQueueSize {
		err = ErrDuplicateMessage
	}
	ev := newEvent(EventError)
	ev.Err = err
	ev.MessageID = msg.ID
	m.events.Publish(ev)
	return err
}

// SendText submits a plain text message.
func (m *Manager) SendText(s string) error {
	return m.Send(wire.NewText(s))
}

// SendBinary submits a binary message.
func (m *Manager) SendBinary(b []byte) error {
	return m.Send(wire.NewBinary(b))
}

// SendJSON marshals v and submits it as a structured message.
func (m *Manager) SendJSON(v any) error {
	msg, err := wire.NewJSON(v)
	if err != nil {
		return err
	}
	return m.Send(msg)
}

// Ping submits a ping control message.
func (m *Manager) Ping() error {
	return m.Send(wire.NewControl(wire.ControlPing))
}

// Statistics computes a fresh snapshot across manager, queue and
// connection.
func (m *Manager) Statistics() Statistics {
	m.mu.Lock()
	s := Statistics{
		State:            m.state,
		ReconnectAttempt: m.attempt,
		Reconnecting:     m.state == StateReconnecting,
	}
	c := m.conn
	m.mu.Unlock()

	s.Queue = m.queue.Stats()
	if c != nil {
		s.Connection = c.Stats()
	}
	return s
}

// Close disposes the manager: cancels the reconnection timer, disposes
// the connection, then closes the manager's own streams. Guarded
// against double teardown.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.disposed = true
		m.cancelReconnectLocked()
		c := m.teardownLocked()
		m.mu.Unlock()

		if c != nil {
			c.Close()
		}
		m.states.Close()
		m.events.Close()
		m.connStates.Close()
		m.messages.Close()
	})
}

// watchStates forwards raw connection states and triggers the
// reconnection campaign on loss.
func (m *Manager) watchStates(c *conn.Connection, ch <-chan conn.State) {
	for s := range ch {
		m.connStates.Publish(s)
		if s == conn.StateFailed || s == conn.StateClosed {
			m.handleLoss(c)
		}
	}
}

// watchEvents forwards connection-level failures and errors to the
// manager event stream.
func (m *Manager) watchEvents(c *conn.Connection, ch <-chan conn.Event) {
	for ev := range ch {
		switch ev.Type {
		case conn.EventConnectionFailed:
			out := newEvent(EventConnectionFailed)
			out.Err = ev.Err
			m.events.Publish(out)
		case conn.EventError:
			out := newEvent(EventError)
			out.Err = ev.Err
			m.events.Publish(out)
		}
	}
}

// forwardMessages pumps inbound messages to the manager's stream.
func (m *Manager) forwardMessages(ch <-chan wire.Message) {
	for msg := range ch {
		m.messages.Publish(msg)
	}
}

// handleLoss runs once per lost connection. It either schedules the
// next reconnection attempt or declares the campaign over.
func (m *Manager) handleLoss(c *conn.Connection) {
	m.mu.Lock()
	if m.disposed || c != m.conn || m.timerPending {
		m.mu.Unlock()
		return
	}

	if !m.cfg.EnableReconnection {
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()
		return
	}

	m.attempt++
	attempt := m.attempt

	if !m.policy.ShouldRetry(attempt, m.cfg.MaxReconnectAttempts) {
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()

		ev := newEvent(EventReconnectionFailed)
		ev.Err = fmt.Errorf("%w: max attempts (%d) reached", ErrReconnectionFailed, m.cfg.MaxReconnectAttempts)
		ev.Attempt = attempt
		m.events.Publish(ev)
		m.logger.Warn("reconnection abandoned",
			"addr", m.cfg.Addr,
			"attempts", m.cfg.MaxReconnectAttempts,
		)
		return
	}

	delay := m.policy.Delay(attempt)
	m.timerPending = true
	m.timer = time.AfterFunc(delay, m.reconnect)
	m.setStateLocked(StateReconnecting)
	m.mu.Unlock()

	ev := newEvent(EventReconnecting)
	ev.Attempt = attempt
	m.events.Publish(ev)
	m.logger.Info("reconnection scheduled",
		"addr", m.cfg.Addr,
		"attempt", attempt,
		"delay", delay,
	)
}

// reconnect fires when the backoff timer elapses: tear down the stale
// connection and dial again. A failure here re-enters handleLoss via
// the new connection's state stream, so the attempt ceiling spans the
// whole campaign.
func (m *Manager) reconnect() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.timerPending = false
	stale := m.teardownLocked()
	m.mu.Unlock()

	if stale != nil {
		stale.Close()
	}

	if err := m.connect(context.Background()); err != nil {
		m.logger.Warn("reconnection attempt failed", "addr", m.cfg.Addr, "error", err)
	}
}

// drain delivers queued messages in bounded batches while the
// connection stays live. Failed sends are re-enqueued with their retry
// counter advanced, or dropped with an error event once the budget is
// gone.
func (m *Manager) drain(c *conn.Connection) {
	batch := m.cfg.DrainBatchSize

	for {
		m.mu.Lock()
		disposed := m.disposed
		m.mu.Unlock()
		if disposed || m.queue.Len() == 0 || !c.State().CanSend() {
			return
		}

		for i := 0; i < batch; i++ {
			msg, ok := m.queue.Dequeue()
			if !ok {
				return
			}

			if err := c.Send(msg); err != nil {
				if !msg.CanRetry() {
					ev := newEvent(EventMessageDropped)
					ev.MessageID = msg.ID
					ev.Err = fmt.Errorf("message %s dropped: retries exhausted: %w", msg.ID, err)
					m.events.Publish(ev)
					m.logger.Warn("queued message dropped", "id", msg.ID, "error", err)
				} else if !m.queue.Enqueue(msg.WithRetry()) {
					// The freed slot was taken by a concurrent Send; the
					// message must not vanish without a signal.
					ev := newEvent(EventMessageDropped)
					ev.MessageID = msg.ID
					ev.Err = fmt.Errorf("message %s dropped: requeue rejected: %w", msg.ID, err)
					m.events.Publish(ev)
					m.logger.Warn("queued message dropped", "id", msg.ID, "error", err)
				}
				if !c.State().CanSend() {
					return
				}
				continue
			}

			ev := newEvent(EventMessageSent)
			ev.MessageID = msg.ID
			m.events.Publish(ev)
		}

		// Yield between batches so a deep queue cannot starve other
		// work on this connection.
		runtime.Gosched()
	}
}

// teardownLocked detaches the current connection and its stream
// subscriptions. Must be called with mu held; the caller closes the
// returned connection outside the lock.
func (m *Manager) teardownLocked() *conn.Connection {
	for _, cancel := range m.unsubscribe {
		cancel()
	}
	m.unsubscribe = nil
	c := m.conn
	m.conn = nil
	return c
}

// cancelReconnectLocked stops a pending reconnection timer. Must be
// called with mu held.
func (m *Manager) cancelReconnectLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerPending = false
}

// setStateLocked records and publishes a manager state change. Must be
// called with mu held.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	m.states.Publish(s)
}
