// Package journal archives inbound connection payloads to PostgreSQL.
//
// Payloads are queued in a growable FIFO buffer by the connection's read
// goroutine and written in batches by a single consumer, so a slow database
// never stalls message delivery.
//
// Rows are append-only:
//
//	inbound_messages(id uuid, connection_id uuid, received_at timestamptz, payload bytea)
package journal
