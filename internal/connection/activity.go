package connection

// activityMonitor suspends heartbeating while the user is idle and closes the
// connection after a further idle period.
type activityMonitor struct {
	idleTask  *task
	closeTask *task
	inactive  bool
	resume    bool // a signal arrived while the idle close was in flight

	// Non-nil while listening for interaction signals. The subscription
	// outlives a connection that drops without the owner asking, so the next
	// signal can reconnect.
	unsubscribe func()
}

func (m *Manager) idleEnabled() bool {
	return m.activity != nil && m.cfg.IdleTimeout > 0
}

// startActivityLocked stops any running monitor, then subscribes to
// interaction signals and arms the idle timer.
func (m *Manager) startActivityLocked() {
	m.stopActivityLocked()
	if !m.idleEnabled() {
		return
	}

	m.idle.unsubscribe = m.activity.Subscribe(m.cfg.ActivitySignals, m.handleActivity)
	m.resetIdleTimersLocked()
}

// stopActivityLocked cancels both timers, removes the listener and clears
// the inactive flag. Idempotent.
func (m *Manager) stopActivityLocked() {
	m.suspendActivityLocked()
	if m.idle.unsubscribe != nil {
		m.idle.unsubscribe()
		m.idle.unsubscribe = nil
	}
	m.idle.inactive = false
	m.idle.resume = false
}

// suspendActivityLocked cancels both timers but keeps listening.
func (m *Manager) suspendActivityLocked() {
	m.idle.idleTask.cancel()
	m.idle.closeTask.cancel()
}

func (m *Manager) resetIdleTimersLocked() {
	m.idle.closeTask.cancel()
	m.idle.idleTask.arm(m.cfg.IdleTimeout, m.idleTimeoutLocked)
}

func (m *Manager) idleTimeoutLocked() {
	m.idle.inactive = true
	m.stopHeartbeatLocked()
	m.logger.Info("user inactive, heartbeat suspended",
		"idle_timeout", m.cfg.IdleTimeout,
		"close_delay", m.cfg.IdleCloseDelay,
	)
	m.idle.closeTask.arm(m.cfg.IdleCloseDelay, m.idleCloseLocked)
}

func (m *Manager) idleCloseLocked() {
	c := m.conn
	if !m.idle.inactive || c == nil {
		return
	}
	c.logger.Info("user still inactive, closing connection", "address", c.address)
	m.forceCloseLocked(c)
}

func (m *Manager) handleActivity(signal string) {
	m.mu.Lock()
	defer m.unlock()

	if m.idle.unsubscribe == nil || m.shutdown {
		return
	}

	if m.conn == nil {
		if !m.idle.inactive {
			// Recovery belongs to the reconnection policy.
			return
		}
		m.idle.inactive = false
		if m.lastAddress == "" {
			return
		}
		m.logger.Info("user active again, reconnecting",
			"signal", signal,
			"address", m.lastAddress,
		)
		if err := m.connectLocked(m.lastAddress); err != nil {
			m.logger.Warn("reconnect on activity failed", "error", err)
		}
		return
	}

	if m.state != StateOpen {
		if m.idle.inactive {
			// The idle close is still in flight; reconnect once it lands.
			m.idle.resume = true
		}
		return
	}
	if m.idle.inactive {
		m.idle.inactive = false
		m.logger.Info("user active again, heartbeat resumed", "signal", signal)
		m.startHeartbeatLocked()
	}
	m.resetIdleTimersLocked()
}
