package writer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// BufferSize caps the input buffer; events beyond it are dropped.
	BufferSize int
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     100,
		FlushInterval: time.Second,
		BufferSize:    1000,
	}
}

// DB is the subset of pgxpool.Pool used by writers.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// onlineRow represents a row for the stream_online_events table.
type onlineRow struct {
	EventID          string
	BroadcasterID    string
	BroadcasterLogin string
	BroadcasterName  string
	Source           string // "eventsub" or "poll"
	Title            string
	GameName         string
	StartedAt        time.Time
	ReceivedAt       int64 // Microseconds
}

// WriterMetrics holds metrics for a writer.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Dropped   int64
}
