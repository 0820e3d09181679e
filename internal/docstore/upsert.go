package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loginsight/loginsight/internal/model"
)

// UpsertLog writes one enriched log record keyed by its document id.
// Replaying the same record rewrites the row in place, so redelivered
// queue messages never produce duplicates. A replaced row receives a
// fresh seq value and re-enters the change feed.
func (s *Store) UpsertLog(ctx context.Context, rec *model.LogRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("docstore: upsert requires a record with an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	queueMeta, err := json.Marshal(rec.QueueMetadata)
	if err != nil {
		return fmt.Errorf("docstore: marshal queue metadata: %w", err)
	}
	var payload []byte
	if rec.OriginalPayload != nil {
		payload, err = json.Marshal(rec.OriginalPayload)
		if err != nil {
			return fmt.Errorf("docstore: marshal original payload: %w", err)
		}
	}

	ingested := rec.IngestedAt
	if ingested.IsZero() {
		ingested = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO logs
			(id, app_name, level, message, severity, user_id, status_code,
			 file_name, event_time, ingested_at, queue_metadata, original_payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.AppName,
		rec.Level,
		rec.Message,
		rec.Severity,
		nullString(rec.UserID),
		nullInt(rec.StatusCode),
		nullString(rec.FileName),
		nullTime(rec.Timestamp),
		ingested.UTC(),
		string(queueMeta),
		nullJSON(payload),
	)
	if err != nil {
		return fmt.Errorf("docstore: upsert log %s: %w", rec.ID, err)
	}
	return nil
}

// PutInsight appends one insight snapshot.
func (s *Store) PutInsight(ctx context.Context, ins *model.InsightSnapshot) error {
	if ins == nil || ins.ID == "" {
		return fmt.Errorf("docstore: put insight requires a snapshot with an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	breakdown, err := json.Marshal(ins.ServiceErrors)
	if err != nil {
		return fmt.Errorf("docstore: marshal service errors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO insights
			(id, ts, total_logs, processed_docs, error_count, warning_count,
			 info_count, error_rate_percent, status, top_error_service, service_errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ins.ID,
		ins.Timestamp.UTC(),
		ins.TotalLogs,
		ins.ProcessedDocs,
		ins.ErrorCount,
		ins.WarningCount,
		ins.InfoCount,
		ins.ErrorRatePercent,
		ins.Status,
		ins.TopErrorService,
		string(breakdown),
	)
	if err != nil {
		return fmt.Errorf("docstore: put insight %s: %w", ins.ID, err)
	}
	return nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullTime(v time.Time) any {
	if v.IsZero() {
		return nil
	}
	return v.UTC()
}

func nullJSON(v []byte) any {
	if len(v) == 0 {
		return nil
	}
	return string(v)
}

var _ model.LogUpserter = (*Store)(nil)
var _ model.InsightWriter = (*Store)(nil)
