package writer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/streamwatch/internal/model"
)

// fakeDB records batches and reports an insert for each event id not seen
// before, like ON CONFLICT DO NOTHING.
type fakeDB struct {
	mu      sync.Mutex
	seen    map[string]bool
	batches [][]*pgx.QueuedQuery
	err     error
}

func newFakeDB() *fakeDB {
	return &fakeDB{seen: make(map[string]bool)}
}

func (db *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.batches = append(db.batches, b.QueuedQueries)
	res := &fakeResults{err: db.err}
	for _, q := range b.QueuedQueries {
		id := q.Arguments[0].(string)
		if db.seen[id] {
			res.tags = append(res.tags, pgconn.NewCommandTag("INSERT 0 0"))
			continue
		}
		db.seen[id] = true
		res.tags = append(res.tags, pgconn.NewCommandTag("INSERT 0 1"))
	}
	return res
}

func (db *fakeDB) rows() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, b := range db.batches {
		n += len(b)
	}
	return n
}

type fakeResults struct {
	tags []pgconn.CommandTag
	err  error
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	tag := r.tags[0]
	r.tags = r.tags[1:]
	return tag, nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not implemented") }
func (r *fakeResults) QueryRow() pgx.Row        { return nil }
func (r *fakeResults) Close() error             { return nil }

func event(id, source string) model.StreamOnline {
	return model.StreamOnline{
		EventID: id,
		Broadcaster: model.Broadcaster{
			ID:          "1337",
			Login:       "cool_user",
			DisplayName: "Cool_User",
		},
		Source:     source,
		Title:      "speedruns",
		GameName:   "Celeste",
		StartedAt:  time.Date(2023, 7, 19, 10, 11, 12, 0, time.UTC),
		ReceivedAt: 1689761472000000,
	}
}

func TestTransform(t *testing.T) {
	row := transform(event("9001", model.SourcePoll))

	if row.EventID != "9001" {
		t.Errorf("EventID = %s, want 9001", row.EventID)
	}
	if row.BroadcasterID != "1337" || row.BroadcasterLogin != "cool_user" {
		t.Errorf("broadcaster = %s/%s, want 1337/cool_user", row.BroadcasterID, row.BroadcasterLogin)
	}
	if row.BroadcasterName != "Cool_User" {
		t.Errorf("BroadcasterName = %s, want Cool_User", row.BroadcasterName)
	}
	if row.Source != model.SourcePoll {
		t.Errorf("Source = %s, want poll", row.Source)
	}
	if row.ReceivedAt != 1689761472000000 {
		t.Errorf("ReceivedAt = %d", row.ReceivedAt)
	}
}

func TestTransform_NameFallsBackToLogin(t *testing.T) {
	ev := event("1", model.SourceEventSub)
	ev.Broadcaster.DisplayName = ""

	if got := transform(ev).BroadcasterName; got != "cool_user" {
		t.Errorf("BroadcasterName = %s, want cool_user", got)
	}
}

func TestOnlineEventWriter_FlushCountsConflicts(t *testing.T) {
	db := newFakeDB()
	w := NewOnlineEventWriter(DefaultWriterConfig(), db, nil)

	w.add(event("9001", model.SourceEventSub))
	w.add(event("9001", model.SourcePoll))
	w.add(event("9002", model.SourcePoll))
	w.flush(context.Background())

	stats := w.Stats()
	if stats.Inserts != 2 {
		t.Errorf("Inserts = %d, want 2", stats.Inserts)
	}
	if stats.Conflicts != 1 {
		t.Errorf("Conflicts = %d, want 1", stats.Conflicts)
	}
	if stats.Flushes != 1 {
		t.Errorf("Flushes = %d, want 1", stats.Flushes)
	}

	// Empty batches are not sent.
	w.flush(context.Background())
	if len(db.batches) != 1 {
		t.Errorf("batches = %d, want 1", len(db.batches))
	}
}

func TestOnlineEventWriter_FlushError(t *testing.T) {
	db := newFakeDB()
	db.err = errors.New("connection reset")
	w := NewOnlineEventWriter(DefaultWriterConfig(), db, nil)

	w.add(event("9001", model.SourceEventSub))
	w.flush(context.Background())

	stats := w.Stats()
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
	if stats.Inserts != 0 {
		t.Errorf("Inserts = %d, want 0", stats.Inserts)
	}
}

func TestOnlineEventWriter_BatchSizeTriggersFlush(t *testing.T) {
	db := newFakeDB()
	cfg := WriterConfig{BatchSize: 2, FlushInterval: time.Hour, BufferSize: 10}
	w := NewOnlineEventWriter(cfg, db, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop(context.Background())

	w.HandleOnline(context.Background(), event("1", model.SourceEventSub))
	w.HandleOnline(context.Background(), event("2", model.SourceEventSub))

	deadline := time.Now().Add(time.Second)
	for db.rows() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := db.rows(); got != 2 {
		t.Fatalf("rows = %d, want 2", got)
	}
}

func TestOnlineEventWriter_StopFlushesRemaining(t *testing.T) {
	db := newFakeDB()
	cfg := WriterConfig{BatchSize: 100, FlushInterval: time.Hour, BufferSize: 10}
	w := NewOnlineEventWriter(cfg, db, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	w.HandleOnline(context.Background(), event("1", model.SourceEventSub))
	w.HandleOnline(context.Background(), event("2", model.SourcePoll))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := db.rows(); got != 2 {
		t.Errorf("rows = %d, want 2", got)
	}
	if got := w.Stats().Inserts; got != 2 {
		t.Errorf("Inserts = %d, want 2", got)
	}
}

func TestOnlineEventWriter_DropsWhenFull(t *testing.T) {
	cfg := WriterConfig{BatchSize: 10, FlushInterval: time.Hour, BufferSize: 1}
	w := NewOnlineEventWriter(cfg, newFakeDB(), nil)

	// Not started, so nothing drains the buffer.
	w.HandleOnline(context.Background(), event("1", model.SourceEventSub))
	w.HandleOnline(context.Background(), event("2", model.SourceEventSub))

	if got := w.Stats().Dropped; got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
}
