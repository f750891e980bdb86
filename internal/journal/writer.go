package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS inbound_messages (
	id            uuid PRIMARY KEY,
	connection_id uuid,
	received_at   timestamptz NOT NULL,
	payload       bytea NOT NULL
)`

const insertSQL = `
INSERT INTO inbound_messages (id, connection_id, received_at, payload)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO NOTHING`

// DB is the subset of *pgxpool.Pool the writer needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds writer settings.
type Config struct {
	BatchSize     int           // Rows per insert batch
	FlushInterval time.Duration // Max time a row waits before being written
	BufferSize    int           // Initial buffer capacity
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// Entry is one archived payload.
type Entry struct {
	ID           uuid.UUID
	ConnectionID uuid.UUID // uuid.Nil when unknown
	ReceivedAt   time.Time
	Payload      []byte
}

// Stats contains writer counters.
type Stats struct {
	Inserts   int64       `json:"inserts"`
	Conflicts int64       `json:"conflicts"`
	Flushes   int64       `json:"flushes"`
	Errors    int64       `json:"errors"`
	Dropped   int64       `json:"dropped"`
	Buffer    BufferStats `json:"buffer"`
}

// Writer batches entries from its buffer into inbound_messages.
type Writer struct {
	cfg    Config
	db     DB
	logger *slog.Logger
	now    func() time.Time

	input *Buffer[Entry]

	statsMu sync.Mutex
	stats   Stats
}

// NewWriter creates a new Writer.
func NewWriter(cfg Config, db DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &Writer{
		cfg:    cfg,
		db:     db,
		logger: logger,
		now:    time.Now,
		input:  NewBuffer[Entry](cfg.BufferSize),
	}
}

// EnsureSchema creates the inbound_messages table if it does not exist.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create inbound_messages: %w", err)
	}
	return nil
}

// Record queues a payload received on the given connection. It never
// blocks, so it is safe to call from a message handler.
func (w *Writer) Record(connectionID string, payload []byte) {
	connID, err := uuid.Parse(connectionID)
	if err != nil {
		connID = uuid.Nil
	}

	e := Entry{
		ID:           uuid.New(),
		ConnectionID: connID,
		ReceivedAt:   w.now(),
		Payload:      append([]byte(nil), payload...),
	}
	if !w.input.Push(e) {
		w.statsMu.Lock()
		w.stats.Dropped++
		w.statsMu.Unlock()
	}
}

// Run consumes the buffer until ctx is cancelled, then flushes what is left.
func (w *Writer) Run(ctx context.Context) error {
	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.input.Close()
			w.drainAll()
			w.logger.Info("journal writer stopped")
			return nil
		case <-ticker.C:
			w.flush(ctx, w.input.Drain(w.cfg.BatchSize))
		case <-w.input.Ready():
			if w.input.Len() >= w.cfg.BatchSize {
				w.flush(ctx, w.input.Drain(w.cfg.BatchSize))
			}
		}
	}
}

// Stats returns current counters.
func (w *Writer) Stats() Stats {
	w.statsMu.Lock()
	s := w.stats
	w.statsMu.Unlock()
	s.Buffer = w.input.Stats()
	return s
}

// drainAll writes every remaining entry with a fresh deadline, since the
// run context is already cancelled.
func (w *Writer) drainAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		rows := w.input.Drain(w.cfg.BatchSize)
		if len(rows) == 0 {
			return
		}
		w.flush(ctx, rows)
	}
}

// flush writes one batch and updates counters.
func (w *Writer) flush(ctx context.Context, rows []Entry) {
	if len(rows) == 0 {
		return
	}

	start := time.Now()
	conflicts, err := w.batchInsert(ctx, rows)
	if err != nil {
		w.logger.Error("journal batch insert failed", "error", err, "count", len(rows))
		w.statsMu.Lock()
		w.stats.Errors++
		w.statsMu.Unlock()
		return
	}

	w.statsMu.Lock()
	w.stats.Inserts += int64(len(rows) - conflicts)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.statsMu.Unlock()

	w.logger.Debug("flushed inbound messages",
		"count", len(rows),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []Entry) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		var connID any
		if r.ConnectionID != uuid.Nil {
			connID = r.ConnectionID.String()
		}
		batch.Queue(insertSQL, r.ID.String(), connID, r.ReceivedAt, r.Payload)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
