package connection

import (
	"github.com/cenkalti/backoff/v4"
)

// reconnectPolicy schedules reattempts after unexpected closures.
type reconnectPolicy struct {
	task      *task
	backoff   backoff.BackOff
	attempts  int  // attempts scheduled since the last successful open
	exhausted bool // the attempt bound was hit and reported
}

// newReconnectBackOff returns a jitter-free backoff yielding
// min(base*2^n, max) for n = 0..attempts-1, then backoff.Stop.
func newReconnectBackOff(cfg Config) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.ReconnectBaseDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = cfg.ReconnectMaxDelay
	b.MaxElapsedTime = 0

	attempts := cfg.MaxReconnectAttempts
	if attempts < 0 {
		attempts = 0
	}
	bo := backoff.WithMaxRetries(b, uint64(attempts))
	bo.Reset()
	return bo
}

// scheduleReconnectLocked arms one reconnect attempt to the last address.
// No-op while an attempt is already pending or no address is known.
func (m *Manager) scheduleReconnectLocked() {
	p := &m.reconnect
	if p.task.pending() || m.lastAddress == "" {
		return
	}

	delay := p.backoff.NextBackOff()
	if delay == backoff.Stop {
		if !p.exhausted {
			p.exhausted = true
			m.logger.Error("giving up on reconnect",
				"attempts", p.attempts,
				"address", m.lastAddress,
				"error", ErrReconnectExhausted,
			)
		}
		return
	}

	p.attempts++
	attempt := p.attempts
	address := m.lastAddress

	m.logger.Info("scheduling reconnect",
		"attempt", attempt,
		"delay", delay,
		"address", address,
	)

	p.task.arm(delay, func() {
		m.logger.Info("attempting reconnect", "attempt", attempt, "address", address)
		if err := m.connectLocked(address); err != nil {
			m.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
		}
	})
}

// resetReconnectLocked clears the policy after a successful open.
func (m *Manager) resetReconnectLocked() {
	p := &m.reconnect
	p.task.cancel()
	p.backoff.Reset()
	p.attempts = 0
	p.exhausted = false
}
