package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/streamwatch/internal/metrics"
	"github.com/rickgao/streamwatch/internal/model"
	"github.com/rickgao/streamwatch/internal/router"
)

const insertOnlineSQL = `
	INSERT INTO stream_online_events (event_id, broadcaster_id, broadcaster_login, broadcaster_name, source, title, game_name, started_at, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (event_id) DO NOTHING
`

// OnlineEventWriter records stream.online observations in the
// stream_online_events table. The first observation of a stream wins;
// later ones from the other source count as conflicts.
type OnlineEventWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	input *router.Buffer[model.StreamOnline]
	db    DB

	// Batching
	batch       []onlineRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics WriterMetrics
}

// NewOnlineEventWriter creates a new OnlineEventWriter.
func NewOnlineEventWriter(cfg WriterConfig, db DB, logger *slog.Logger) *OnlineEventWriter {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}

	return &OnlineEventWriter{
		cfg:    cfg,
		input:  router.NewBuffer[model.StreamOnline](min(64, cfg.BufferSize), cfg.BufferSize),
		db:     db,
		logger: logger,
		batch:  make([]onlineRow, 0, cfg.BatchSize),
	}
}

// HandleOnline queues ev for writing. It never blocks.
func (w *OnlineEventWriter) HandleOnline(_ context.Context, ev model.StreamOnline) {
	if !w.input.Send(ev) {
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
		metrics.RecordDropped("writer")
		w.logger.Warn("writer buffer full, dropping", "event", ev.EventID)
	}
}

// Start begins consuming events and writing to the database.
func (w *OnlineEventWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("online event writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts down the writer after a final flush of everything buffered.
func (w *OnlineEventWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping online event writer")

	w.input.Close()
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("online event writer stop timed out")
	}

	for _, ev := range w.input.DrainTo(0) {
		w.add(ev)
	}
	w.flush(ctx)

	w.logger.Info("online event writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *OnlineEventWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *OnlineEventWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		ev, ok := w.input.Receive(w.ctx)
		if !ok {
			return
		}
		if w.add(ev) {
			w.flush(w.ctx)
		}
	}
}

func (w *OnlineEventWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// add appends ev to the batch and reports whether the batch is full.
func (w *OnlineEventWriter) add(ev model.StreamOnline) bool {
	row := transform(ev)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

func transform(ev model.StreamOnline) onlineRow {
	return onlineRow{
		EventID:          ev.EventID,
		BroadcasterID:    ev.Broadcaster.ID,
		BroadcasterLogin: ev.Broadcaster.Login,
		BroadcasterName:  ev.Broadcaster.Name(),
		Source:           ev.Source,
		Title:            ev.Title,
		GameName:         ev.GameName,
		StartedAt:        ev.StartedAt,
		ReceivedAt:       ev.ReceivedAt,
	}
}

func (w *OnlineEventWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]onlineRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	// The writer context is already cancelled during the final flush.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}

	start := time.Now()
	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	inserted := len(batch) - conflicts
	w.batchMu.Lock()
	w.metrics.Inserts += int64(inserted)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()
	metrics.RecordRowsWritten(inserted)

	w.logger.Debug("flushed online events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *OnlineEventWriter) batchInsert(ctx context.Context, rows []onlineRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertOnlineSQL,
			r.EventID, r.BroadcasterID, r.BroadcasterLogin, r.BroadcasterName,
			r.Source, r.Title, r.GameName, r.StartedAt, r.ReceivedAt)
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
