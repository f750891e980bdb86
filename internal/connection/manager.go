package connection

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ActivitySource delivers local user-interaction signals.
type ActivitySource interface {
	// Subscribe registers fn for the given signal kinds and returns a
	// function that removes the subscription.
	Subscribe(signals []string, fn func(signal string)) (cancel func())
}

// Option configures a Manager.
type Option func(*Manager)

// WithTransport replaces the default WebSocket transport.
func WithTransport(t Transport) Option {
	return func(m *Manager) { m.transport = t }
}

// WithActivitySource enables idle handling driven by s.
func WithActivitySource(s ActivitySource) Option {
	return func(m *Manager) { m.activity = s }
}

// WithClock replaces the wall clock used for every timer.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// Manager maintains a single self-healing connection to a remote endpoint.
type Manager struct {
	cfg       Config
	logger    *slog.Logger
	transport Transport
	activity  ActivitySource
	clock     Clock

	mu       sync.Mutex
	deferred []func() // transport I/O queued under mu, run once it is released

	conn        *connInstance // nil when no transport connection exists
	state       State
	lastAddress string
	shutdown    bool

	handlers  map[HandlerID]ConnHandler
	heartbeat heartbeatMonitor
	reconnect reconnectPolicy
	idle      activityMonitor
}

// connInstance is one transport connection. It is replaced, never reused,
// on every connect.
type connInstance struct {
	id       uuid.UUID
	address  string
	handle   Handle
	expected bool // close was requested by the owner
	logger   *slog.Logger
}

// NewManager creates a new Connection Manager.
func NewManager(cfg Config, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:      cfg,
		logger:   logger,
		clock:    realClock{},
		handlers: make(map[HandlerID]ConnHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.transport == nil {
		m.transport = NewWebSocketTransport(DefaultWebSocketConfig(), logger)
	}

	lock := func() func() {
		m.mu.Lock()
		return m.unlock
	}
	m.heartbeat.task = newTask("heartbeat", m.clock, lock)
	m.reconnect.task = newTask("reconnect", m.clock, lock)
	m.reconnect.backoff = newReconnectBackOff(cfg)
	m.idle.idleTask = newTask("idle", m.clock, lock)
	m.idle.closeTask = newTask("idle-close", m.clock, lock)

	return m
}

// Connect (re)establishes the managed connection to address. Calling it
// again with the address already in use is a no-op.
func (m *Manager) Connect(address string) error {
	m.mu.Lock()
	defer m.unlock()

	if m.shutdown {
		return ErrManagerClosed
	}
	if address == "" {
		return ErrNoAddress
	}
	return m.connectLocked(address)
}

func (m *Manager) connectLocked(address string) error {
	if c := m.conn; c != nil && (m.state == StateConnecting || m.state == StateOpen) {
		if c.address == address {
			return nil
		}
		return ErrAlreadyConnected
	}

	m.lastAddress = address
	m.reconnect.task.cancel()
	m.detachLocked()

	c := &connInstance{
		id:      uuid.New(),
		address: address,
	}
	c.logger = m.logger.With("conn_id", c.id.String())

	m.conn = c
	m.state = StateConnecting

	handle, err := m.transport.Open(address, &connListener{m: m, c: c})
	if err != nil {
		m.conn = nil
		m.state = StateClosed
		c.logger.Error("open transport failed", "address", address, "error", err)
		m.afterUnexpectedCloseLocked()
		return fmt.Errorf("open transport: %w", err)
	}
	c.handle = handle

	c.logger.Info("connecting", "address", address)
	return nil
}

// detachLocked stops every timer tied to the current connection and drops
// the handle so no event from it is acted on again.
func (m *Manager) detachLocked() {
	m.stopHeartbeatLocked()
	m.idle.closeTask.cancel()
	m.idle.idleTask.cancel()

	if c := m.conn; c != nil {
		c.expected = true
		m.closeHandleLocked(c)
	}
	m.conn = nil
	m.state = StateClosed
}

// RegisterHandler subscribes h to every inbound payload.
func (m *Manager) RegisterHandler(h Handler) HandlerID {
	if h == nil {
		return HandlerID{}
	}
	return m.RegisterConnHandler(func(_ string, payload []byte) { h(payload) })
}

// RegisterConnHandler subscribes h to every inbound payload, tagged with the
// ID of the connection that received it.
func (m *Manager) RegisterConnHandler(h ConnHandler) HandlerID {
	if h == nil {
		return HandlerID{}
	}

	m.mu.Lock()
	defer m.unlock()

	id := HandlerID(uuid.New())
	m.handlers[id] = h
	return id
}

// UnregisterHandler removes a handler. Returns false if id is unknown.
func (m *Manager) UnregisterHandler(id HandlerID) bool {
	m.mu.Lock()
	defer m.unlock()

	if _, ok := m.handlers[id]; !ok {
		return false
	}
	delete(m.handlers, id)
	return true
}

// Send transmits payload if the connection is open. Otherwise the payload is
// dropped and ErrNotConnected is returned.
func (m *Manager) Send(payload []byte) error {
	m.mu.Lock()
	c := m.conn
	state := m.state
	m.mu.Unlock()

	if c == nil || state != StateOpen {
		m.logger.Warn("connection not open, payload dropped",
			"state", state,
			"bytes", len(payload),
		)
		return ErrNotConnected
	}

	if err := c.handle.Send(payload); err != nil {
		c.logger.Warn("send failed", "error", err)
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Close closes the connection at the owner's request. Automatic reconnection
// does not engage for this closure.
func (m *Manager) Close() error {
	m.mu.Lock()
	h := m.closeLocked()
	m.unlock()
	return closeHandle(h)
}

// closeLocked marks the current connection as closing at the owner's request
// and returns the handle the caller must close once mu is released.
func (m *Manager) closeLocked() Handle {
	m.reconnect.task.cancel()
	m.stopHeartbeatLocked()
	m.stopActivityLocked()

	c := m.conn
	if c == nil {
		return nil
	}
	if c.expected && m.state == StateClosing {
		return nil
	}

	c.expected = true
	m.state = StateClosing
	c.logger.Info("closing connection", "address", c.address)
	return c.handle
}

func closeHandle(h Handle) error {
	if h == nil {
		return nil
	}
	if err := h.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

// Shutdown closes the connection, removes activity listeners and rejects any
// further Connect.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	m.shutdown = true
	h := m.closeLocked()
	m.unlock()
	return closeHandle(h)
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.unlock()
	return m.state
}

// Stats returns a snapshot of the manager's state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.unlock()

	s := Stats{
		State:              m.state,
		StateName:          m.state.String(),
		Address:            m.lastAddress,
		ReconnectAttempts:  m.reconnect.attempts,
		ReconnectPending:   m.reconnect.task.pending(),
		ReconnectExhausted: m.reconnect.exhausted,
		MissedHeartbeats:   m.heartbeat.missed,
		HeartbeatRunning:   m.heartbeat.task.pending(),
		UserInactive:       m.idle.inactive,
		Handlers:           len(m.handlers),
	}
	if m.conn != nil {
		s.ConnectionID = m.conn.id.String()
	}
	return s
}

// forceCloseLocked closes c without marking the closure as expected, so the
// resulting close event goes through the recovery path.
func (m *Manager) forceCloseLocked(c *connInstance) {
	m.state = StateClosing
	m.closeHandleLocked(c)
}

// closeHandleLocked queues c's transport close to run after mu is released.
// Closing may wait on a write in flight, which must never stall the manager.
func (m *Manager) closeHandleLocked(c *connInstance) {
	h := c.handle
	if h == nil {
		return
	}
	m.afterUnlock(func() {
		if err := h.Close(); err != nil {
			c.logger.Debug("close transport", "error", err)
		}
	})
}

// afterUnlock queues fn to run once mu is released. Caller holds mu.
func (m *Manager) afterUnlock(fn func()) {
	m.deferred = append(m.deferred, fn)
}

// unlock releases mu, then runs the I/O queued while it was held.
func (m *Manager) unlock() {
	work := m.deferred
	m.deferred = nil
	m.mu.Unlock()

	for _, fn := range work {
		fn()
	}
}

func (m *Manager) handleOpen(c *connInstance) {
	m.mu.Lock()
	defer m.unlock()

	if m.conn != c || m.state != StateConnecting {
		return
	}

	m.state = StateOpen
	m.resetReconnectLocked()
	m.startHeartbeatLocked()
	m.startActivityLocked()

	c.logger.Info("connected", "address", c.address)
}

func (m *Manager) handleMessage(c *connInstance, data []byte) {
	m.mu.Lock()
	if m.conn != c {
		m.unlock()
		return
	}

	// Protocol-level interception runs before fan-out.
	m.observeHeartbeatLocked(data)

	connID := c.id.String()
	handlers := make([]ConnHandler, 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.unlock()

	for _, h := range handlers {
		h(connID, data)
	}
}

func (m *Manager) handleError(c *connInstance, err error) {
	m.mu.Lock()
	defer m.unlock()

	if m.conn != c {
		return
	}
	c.logger.Error("transport error", "address", c.address, "error", err)
}

func (m *Manager) handleClose(c *connInstance, err error) {
	m.mu.Lock()
	defer m.unlock()

	if m.conn != c {
		return
	}

	m.conn = nil
	m.state = StateClosed
	m.stopHeartbeatLocked()

	if c.expected {
		m.stopActivityLocked()
		c.logger.Info("connection closed", "address", c.address)
		return
	}

	c.logger.Warn("connection closed unexpectedly", "address", c.address, "error", err)
	m.afterUnexpectedCloseLocked()
}

// afterUnexpectedCloseLocked runs recovery once a connection is gone without
// the owner asking for it.
func (m *Manager) afterUnexpectedCloseLocked() {
	m.suspendActivityLocked()

	if m.idle.inactive && m.idle.resume {
		m.idle.inactive = false
		m.idle.resume = false
		m.logger.Info("user active again, reconnecting", "address", m.lastAddress)
		if err := m.connectLocked(m.lastAddress); err != nil {
			m.logger.Warn("reconnect on activity failed", "error", err)
		}
		return
	}
	if m.idle.inactive {
		m.logger.Info("user inactive, deferring reconnect until activity resumes",
			"address", m.lastAddress,
		)
		return
	}
	m.scheduleReconnectLocked()
}

// connListener binds transport events to the connection instance they
// belong to.
type connListener struct {
	m *Manager
	c *connInstance
}

func (l *connListener) OnOpen()               { l.m.handleOpen(l.c) }
func (l *connListener) OnMessage(data []byte) { l.m.handleMessage(l.c, data) }
func (l *connListener) OnError(err error)     { l.m.handleError(l.c, err) }
func (l *connListener) OnClose(err error)     { l.m.handleClose(l.c, err) }
