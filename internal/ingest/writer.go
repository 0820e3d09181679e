package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/loginsight/loginsight/internal/docstore"
	"github.com/loginsight/loginsight/internal/model"
)

const (
	// maxWriteAttempts bounds retries of a throttled upsert.
	maxWriteAttempts = 5
	// retryBaseDelay grows linearly with the attempt number.
	retryBaseDelay = 500 * time.Millisecond
)

// Writer persists enriched records, absorbing transient store throttling
// with a bounded linear backoff. Non-transient errors surface immediately.
type Writer struct {
	store model.LogUpserter

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWriter creates a writer over the given upserter.
func NewWriter(store model.LogUpserter) *Writer {
	return &Writer{store: store, sleep: sleepCtx}
}

// sleepCtx waits for d, returning early when ctx is cancelled so a
// backing-off worker does not outlive shutdown.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Store upserts rec, retrying up to maxWriteAttempts times when the store
// reports a transient failure. The delay before attempt n is n * 500ms.
func (w *Writer) Store(ctx context.Context, rec *model.LogRecord) error {
	var lastErr error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err := w.store.UpsertLog(ctx, rec)
		if err == nil {
			return nil
		}
		if !docstore.Retryable(err) {
			return fmt.Errorf("ingest: store %s: %w", rec.ID, err)
		}
		lastErr = err
		if attempt < maxWriteAttempts {
			delay := time.Duration(attempt) * retryBaseDelay
			log.Printf("ingest: store throttled for %s (attempt %d/%d), backing off %s",
				rec.ID, attempt, maxWriteAttempts, delay)
			if err := w.sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("ingest: store %s: throttled after %d attempts: %w",
		rec.ID, maxWriteAttempts, lastErr)
}
