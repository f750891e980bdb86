package connection

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Errors
var (
	ErrNotConnected       = errors.New("not connected")
	ErrAlreadyConnected   = errors.New("already connected to a different address")
	ErrManagerClosed      = errors.New("manager shut down")
	ErrReconnectExhausted = errors.New("max reconnect attempts exceeded")
	ErrHeartbeatTimeout   = errors.New("heartbeat timeout (no pong)")
	ErrNoAddress          = errors.New("no address")
)

// State is the lifecycle state of the managed connection.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateClosing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Handler receives every inbound payload, raw and unparsed.
type Handler func(payload []byte)

// ConnHandler receives every inbound payload along with the ID of the
// connection that delivered it.
type ConnHandler func(connectionID string, payload []byte)

// HandlerID identifies a registered handler.
type HandlerID uuid.UUID

// String returns the canonical UUID form.
func (id HandlerID) String() string {
	return uuid.UUID(id).String()
}

// Default activity signals, mirroring pointer, keyboard and scroll interaction.
var DefaultActivitySignals = []string{"mousemove", "keydown", "scroll", "click"}

// Config configures the Connection Manager.
type Config struct {
	HeartbeatInterval    time.Duration // Interval between ping probes
	HeartbeatThreshold   int           // Unanswered probes tolerated before forcing a close
	PingPayload          string        // Probe payload sent on each heartbeat tick
	ReconnectBaseDelay   time.Duration // Delay before the first reconnect attempt
	ReconnectMaxDelay    time.Duration // Upper bound on the reconnect delay
	MaxReconnectAttempts int           // Automatic attempts before giving up
	IdleTimeout          time.Duration // No activity for this long marks the user inactive (0 = disabled)
	IdleCloseDelay       time.Duration // Further inactivity before the connection is closed
	ActivitySignals      []string      // Interaction signal kinds that count as activity
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:    30 * time.Second,
		HeartbeatThreshold:   3,
		PingPayload:          "ping",
		ReconnectBaseDelay:   1 * time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: 10,
		IdleTimeout:          5 * time.Minute,
		IdleCloseDelay:       5 * time.Minute,
		ActivitySignals:      DefaultActivitySignals,
	}
}

// Stats provides a snapshot of the manager's state.
type Stats struct {
	State              State  `json:"-"`
	StateName          string `json:"state"`
	Address            string `json:"address"`
	ConnectionID       string `json:"connection_id,omitempty"`
	ReconnectAttempts  int    `json:"reconnect_attempts"`
	ReconnectPending   bool   `json:"reconnect_pending"`
	ReconnectExhausted bool   `json:"reconnect_exhausted"`
	MissedHeartbeats   int    `json:"missed_heartbeats"`
	HeartbeatRunning   bool   `json:"heartbeat_running"`
	UserInactive       bool   `json:"user_inactive"`
	Handlers           int    `json:"handlers"`
}
