package journal

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB records queued batches and answers each insert with a fixed tag.
type fakeDB struct {
	mu      sync.Mutex
	execs   []string
	batches []*pgx.Batch
	tag     string
	err     error
}

func newFakeDB() *fakeDB {
	return &fakeDB{tag: "INSERT 0 1"}
}

func (db *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.execs = append(db.execs, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), db.err
}

func (db *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.batches = append(db.batches, b)
	return &fakeResults{tag: pgconn.NewCommandTag(db.tag), err: db.err}
}

func (db *fakeDB) rows() [][]any {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out [][]any
	for _, b := range db.batches {
		for _, q := range b.QueuedQueries {
			out = append(out, q.Arguments)
		}
	}
	return out
}

type fakeResults struct {
	tag pgconn.CommandTag
	err error
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) { return r.tag, r.err }
func (r *fakeResults) Query() (pgx.Rows, error)         { return nil, errors.New("not implemented") }
func (r *fakeResults) QueryRow() pgx.Row                { return nil }
func (r *fakeResults) Close() error                     { return nil }

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startWriter(t *testing.T, w *Writer) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Run() did not return after cancel")
		}
	}
}

func TestWriter_EnsureSchema(t *testing.T) {
	db := newFakeDB()
	w := NewWriter(DefaultConfig(), db, nil)

	if err := w.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if len(db.execs) != 1 || !strings.Contains(db.execs[0], "CREATE TABLE IF NOT EXISTS inbound_messages") {
		t.Errorf("execs = %v, want one CREATE TABLE", db.execs)
	}

	db.err = errors.New("permission denied")
	if err := w.EnsureSchema(context.Background()); err == nil {
		t.Error("EnsureSchema() expected error, got nil")
	}
}

func TestWriter_Record(t *testing.T) {
	w := NewWriter(DefaultConfig(), newFakeDB(), nil)
	fixed := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	connID := uuid.New()
	payload := []byte(`{"content":"hello"}`)
	w.Record(connID.String(), payload)
	payload[0] = 'X'

	entries := w.input.Drain(0)
	if len(entries) != 1 {
		t.Fatalf("queued %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.ConnectionID != connID {
		t.Errorf("ConnectionID = %v, want %v", e.ConnectionID, connID)
	}
	if !e.ReceivedAt.Equal(fixed) {
		t.Errorf("ReceivedAt = %v, want %v", e.ReceivedAt, fixed)
	}
	if !bytes.Equal(e.Payload, []byte(`{"content":"hello"}`)) {
		t.Errorf("Payload = %q, want copy of original", e.Payload)
	}
	if e.ID == uuid.Nil {
		t.Error("ID is nil")
	}
}

func TestWriter_RecordUnknownConnection(t *testing.T) {
	w := NewWriter(DefaultConfig(), newFakeDB(), nil)

	w.Record("", []byte("x"))

	entries := w.input.Drain(0)
	if len(entries) != 1 {
		t.Fatalf("queued %d entries, want 1", len(entries))
	}
	if entries[0].ConnectionID != uuid.Nil {
		t.Errorf("ConnectionID = %v, want uuid.Nil", entries[0].ConnectionID)
	}

	rows := []Entry{entries[0]}
	db := w.db.(*fakeDB)
	if _, err := w.batchInsert(context.Background(), rows); err != nil {
		t.Fatalf("batchInsert() error = %v", err)
	}
	args := db.rows()[0]
	if args[1] != nil {
		t.Errorf("connection_id arg = %v, want nil", args[1])
	}
}

func TestWriter_FlushOnBatchSize(t *testing.T) {
	db := newFakeDB()
	cfg := Config{BatchSize: 3, FlushInterval: time.Hour, BufferSize: 10}
	w := NewWriter(cfg, db, nil)
	stop := startWriter(t, w)
	defer stop()

	for i := 0; i < 3; i++ {
		w.Record("", []byte{byte('a' + i)})
	}

	waitUntil(t, func() bool { return w.Stats().Flushes == 1 })

	stats := w.Stats()
	if stats.Inserts != 3 {
		t.Errorf("Inserts = %d, want 3", stats.Inserts)
	}
	rows := db.rows()
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	for i, args := range rows {
		if got := args[3].([]byte); got[0] != byte('a'+i) {
			t.Errorf("row %d payload = %q, want %q", i, got, string(rune('a'+i)))
		}
	}
}

func TestWriter_FlushOnInterval(t *testing.T) {
	db := newFakeDB()
	cfg := Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond, BufferSize: 10}
	w := NewWriter(cfg, db, nil)
	stop := startWriter(t, w)
	defer stop()

	w.Record("", []byte("tick"))

	waitUntil(t, func() bool { return w.Stats().Inserts == 1 })
}

func TestWriter_StopFlushesRemainder(t *testing.T) {
	db := newFakeDB()
	cfg := Config{BatchSize: 100, FlushInterval: time.Hour, BufferSize: 10}
	w := NewWriter(cfg, db, nil)
	stop := startWriter(t, w)

	for i := 0; i < 5; i++ {
		w.Record("", []byte("x"))
	}
	stop()

	if got := len(db.rows()); got != 5 {
		t.Errorf("rows after stop = %d, want 5", got)
	}

	w.Record("", []byte("late"))
	if got := w.Stats().Dropped; got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
}

func TestWriter_Conflicts(t *testing.T) {
	db := newFakeDB()
	db.tag = "INSERT 0 0"
	w := NewWriter(DefaultConfig(), db, nil)

	w.flush(context.Background(), []Entry{{ID: uuid.New()}, {ID: uuid.New()}})

	stats := w.Stats()
	if stats.Conflicts != 2 {
		t.Errorf("Conflicts = %d, want 2", stats.Conflicts)
	}
	if stats.Inserts != 0 {
		t.Errorf("Inserts = %d, want 0", stats.Inserts)
	}
}

func TestWriter_InsertError(t *testing.T) {
	db := newFakeDB()
	db.err = errors.New("connection reset")
	w := NewWriter(DefaultConfig(), db, nil)

	w.flush(context.Background(), []Entry{{ID: uuid.New()}})

	stats := w.Stats()
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
	if stats.Flushes != 0 {
		t.Errorf("Flushes = %d, want 0", stats.Flushes)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BatchSize != 500 {
		t.Errorf("BatchSize = %d, want 500", cfg.BatchSize)
	}
	if cfg.FlushInterval != time.Second {
		t.Errorf("FlushInterval = %v, want 1s", cfg.FlushInterval)
	}
	if cfg.BufferSize != 10000 {
		t.Errorf("BufferSize = %d, want 10000", cfg.BufferSize)
	}
}
