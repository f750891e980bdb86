package connection

// Transport opens full-duplex message connections.
type Transport interface {
	// Open starts connecting to address and returns immediately. Events for
	// the new connection are delivered to l, never before Open returns.
	// OnClose is delivered exactly once, including when the dial fails.
	Open(address string, l Listener) (Handle, error)
}

// Handle is a single transport connection.
type Handle interface {
	// Send writes one payload. Fails if the connection is not open.
	Send(data []byte) error

	// Close starts closing the connection. Idempotent.
	Close() error
}

// Listener receives transport events for one connection.
type Listener interface {
	OnOpen()
	OnMessage(data []byte)
	OnError(err error)
	OnClose(err error)
}
