package connection

import (
	"encoding/json"
)

const pongContent = "pong"

// heartbeatMonitor detects connections that died without the transport
// noticing.
type heartbeatMonitor struct {
	task   *task
	missed int // probes sent since the last pong
}

// isPong reports whether data is a JSON object whose content field is "pong".
// Payloads that are not JSON never count.
func isPong(data []byte) bool {
	var msg struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return false
	}
	return msg.Content == pongContent
}

// startHeartbeatLocked stops any running heartbeat, then arms a new one.
func (m *Manager) startHeartbeatLocked() {
	m.stopHeartbeatLocked()
	if m.cfg.HeartbeatInterval <= 0 {
		return
	}
	m.heartbeat.task.arm(m.cfg.HeartbeatInterval, m.heartbeatTickLocked)
}

// stopHeartbeatLocked cancels the tick and resets the counter. Idempotent.
func (m *Manager) stopHeartbeatLocked() {
	m.heartbeat.task.cancel()
	m.heartbeat.missed = 0
}

func (m *Manager) heartbeatTickLocked() {
	c := m.conn
	if c == nil || m.state != StateOpen {
		return
	}
	m.heartbeat.task.arm(m.cfg.HeartbeatInterval, m.heartbeatTickLocked)

	h, ping := c.handle, []byte(m.cfg.PingPayload)
	m.afterUnlock(func() {
		if err := h.Send(ping); err != nil {
			c.logger.Warn("failed to send ping", "error", err)
		}
	})
	m.heartbeat.missed++

	if m.heartbeat.missed > m.cfg.HeartbeatThreshold {
		c.logger.Warn("no pong received, closing connection",
			"missed", m.heartbeat.missed,
			"threshold", m.cfg.HeartbeatThreshold,
			"error", ErrHeartbeatTimeout,
		)
		m.heartbeat.task.cancel()
		m.forceCloseLocked(c)
	}
}

func (m *Manager) observeHeartbeatLocked(data []byte) {
	if !isPong(data) {
		return
	}
	if m.heartbeat.missed > 0 {
		m.conn.logger.Debug("pong received", "missed", m.heartbeat.missed)
	}
	m.heartbeat.missed = 0
}
