package model

import (
	"context"
	"time"
)

// LogFilter holds optional filters applied to log listings.
type LogFilter struct {
	Level   string // empty = all levels
	Service string // empty = all services
}

// LogUpserter is the narrow write contract required by the ingestion path.
// Upsert is idempotent by record id: re-writing the same id replaces the
// prior value, never duplicates.
type LogUpserter interface {
	UpsertLog(ctx context.Context, rec *LogRecord) error
}

// InsightWriter persists one aggregation snapshot.
type InsightWriter interface {
	PutInsight(ctx context.Context, snap *InsightSnapshot) error
}

// LogReader provides read-only queries on stored log records,
// always ordered newest-first.
type LogReader interface {
	RecentLogs(ctx context.Context, max int) ([]*LogRecord, error)
	LogsFiltered(ctx context.Context, f LogFilter, max int) ([]*LogRecord, error)
	ErrorLogs(ctx context.Context, max int) ([]*LogRecord, error)
}

// InsightReader provides read-only queries on stored snapshots,
// always ordered newest-first.
type InsightReader interface {
	RecentInsights(ctx context.Context, max int) ([]*InsightSnapshot, error)
	InsightsSince(ctx context.Context, since time.Time, max int) ([]*InsightSnapshot, error)
}

// DocumentReader is the unified read contract shared by the cache and
// the HTTP query surface.
type DocumentReader interface {
	LogReader
	InsightReader
}

// EmbeddingProvider encodes a sequence of texts into fixed-length numeric
// vectors. Implementations are deterministic given the same model/version.
type EmbeddingProvider interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}
