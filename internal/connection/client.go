package connection

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// closeFrameTimeout bounds the wait for the close frame when a send holds the
// socket.
const closeFrameTimeout = 250 * time.Millisecond

// WebSocketConfig configures the WebSocket transport.
type WebSocketConfig struct {
	HandshakeTimeout time.Duration // Dial + upgrade deadline
	WriteTimeout     time.Duration // Write deadline for sends
	ReadLimit        int64         // Max inbound message size in bytes (0 = unlimited)
	Header           http.Header   // Extra headers sent with the upgrade request
}

// DefaultWebSocketConfig returns sensible defaults.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadLimit:        1 << 20,
	}
}

// WebSocketTransport opens gorilla/websocket connections.
type WebSocketTransport struct {
	cfg    WebSocketConfig
	logger *slog.Logger
}

// NewWebSocketTransport creates a new WebSocket transport.
func NewWebSocketTransport(cfg WebSocketConfig, logger *slog.Logger) *WebSocketTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketTransport{cfg: cfg, logger: logger}
}

// Open dials address in the background and reports events to l.
func (t *WebSocketTransport) Open(address string, l Listener) (Handle, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &wsClient{
		cfg:      t.cfg,
		logger:   t.logger,
		address:  address,
		listener: l,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.run(ctx)
	return c, nil
}

// wsClient is one WebSocket connection.
type wsClient struct {
	cfg      WebSocketConfig
	logger   *slog.Logger
	address  string
	listener Listener

	cancel context.CancelFunc
	done   chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	closed    bool
}

// run dials, then reads until the connection fails or is closed.
func (c *wsClient) run(ctx context.Context) {
	defer c.cancel()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.address, c.cfg.Header)
	if err != nil {
		if c.isClosed() {
			c.listener.OnClose(nil)
			return
		}
		c.listener.OnError(err)
		c.listener.OnClose(err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		c.listener.OnClose(nil)
		return
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if c.cfg.ReadLimit > 0 {
		conn.SetReadLimit(c.cfg.ReadLimit)
	}

	c.logger.Debug("websocket connected", "address", c.address)
	c.listener.OnOpen()

	c.listener.OnClose(c.readLoop(conn))
}

// readLoop forwards messages to the listener. Returns nil after a requested
// close or a normal closure from the peer.
func (c *wsClient) readLoop(conn *websocket.Conn) error {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-c.done:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			c.listener.OnError(err)
			return err
		}
		c.listener.OnMessage(data)
	}
}

func (c *wsClient) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Send writes a text message.
func (c *wsClient) Send(data []byte) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()
	if !connected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and tears down the socket. A dial still in
// progress is cancelled.
func (c *wsClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	c.cancel()

	if conn == nil {
		return nil
	}

	// WriteControl may run alongside a blocked WriteMessage; it gives up at
	// the deadline and conn.Close then unblocks the writer.
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeFrameTimeout),
	)
	return conn.Close()
}
