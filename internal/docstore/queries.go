package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/loginsight/loginsight/internal/model"
)

const logColumns = `id, seq, app_name, level, message, severity, user_id,
	status_code, file_name, event_time, ingested_at, queue_metadata, original_payload`

// DefaultQueryLimit bounds listings when the caller passes max <= 0.
const DefaultQueryLimit = 100

func clampLimit(max int) int {
	if max <= 0 {
		return DefaultQueryLimit
	}
	return max
}

// RecentLogs returns up to max stored records, newest-first.
func (s *Store) RecentLogs(ctx context.Context, max int) ([]*model.LogRecord, error) {
	return s.queryLogs(ctx, `
		SELECT `+logColumns+`
		FROM logs
		ORDER BY ingested_at DESC, seq DESC
		LIMIT ?`, clampLimit(max))
}

// LogsFiltered returns up to max records matching the filter, newest-first.
// Level matches case-insensitively; service matches the app name exactly.
func (s *Store) LogsFiltered(ctx context.Context, f model.LogFilter, max int) ([]*model.LogRecord, error) {
	query := `SELECT ` + logColumns + ` FROM logs WHERE 1=1`
	var args []any
	if f.Level != "" {
		query += ` AND lower(level) = lower(?)`
		args = append(args, f.Level)
	}
	if f.Service != "" {
		query += ` AND app_name = ?`
		args = append(args, f.Service)
	}
	query += ` ORDER BY ingested_at DESC, seq DESC LIMIT ?`
	args = append(args, clampLimit(max))
	return s.queryLogs(ctx, query, args...)
}

// ErrorLogs returns up to max records whose level is exactly "error" or
// "critical" (case-insensitive), newest-first. Records that merely mention
// errors in the message body are not included.
func (s *Store) ErrorLogs(ctx context.Context, max int) ([]*model.LogRecord, error) {
	return s.queryLogs(ctx, `
		SELECT `+logColumns+`
		FROM logs
		WHERE lower(trim(level)) IN ('error', 'critical')
		ORDER BY ingested_at DESC, seq DESC
		LIMIT ?`, clampLimit(max))
}

func (s *Store) queryLogs(ctx context.Context, query string, args ...any) ([]*model.LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*model.LogRecord
	for rows.Next() {
		rec, _, err := scanLog(rows)
		if err != nil {
			log.Printf("docstore: scan error (logs): %v", err)
			continue
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func scanLog(rows *sql.Rows) (*model.LogRecord, int64, error) {
	var (
		rec       model.LogRecord
		seq       int64
		userID    sql.NullString
		status    sql.NullInt32
		fileName  sql.NullString
		eventTime sql.NullTime
		queueMeta sql.NullString
		payload   sql.NullString
	)
	err := rows.Scan(&rec.ID, &seq, &rec.AppName, &rec.Level, &rec.Message,
		&rec.Severity, &userID, &status, &fileName, &eventTime,
		&rec.IngestedAt, &queueMeta, &payload)
	if err != nil {
		return nil, 0, err
	}
	rec.UserID = userID.String
	rec.StatusCode = int(status.Int32)
	rec.FileName = fileName.String
	if eventTime.Valid {
		rec.Timestamp = eventTime.Time.UTC()
	}
	rec.IngestedAt = rec.IngestedAt.UTC()
	if queueMeta.Valid && queueMeta.String != "" {
		if err := json.Unmarshal([]byte(queueMeta.String), &rec.QueueMetadata); err != nil {
			log.Printf("docstore: bad queue_metadata for %s: %v", rec.ID, err)
		}
	}
	if payload.Valid && payload.String != "" {
		if err := json.Unmarshal([]byte(payload.String), &rec.OriginalPayload); err != nil {
			log.Printf("docstore: bad original_payload for %s: %v", rec.ID, err)
		}
	}
	return &rec, seq, nil
}

// RecentInsights returns up to max snapshots, newest-first.
func (s *Store) RecentInsights(ctx context.Context, max int) ([]*model.InsightSnapshot, error) {
	return s.queryInsights(ctx, `
		SELECT id, ts, total_logs, processed_docs, error_count, warning_count,
		       info_count, error_rate_percent, status, top_error_service, service_errors
		FROM insights
		ORDER BY ts DESC, seq DESC
		LIMIT ?`, clampLimit(max))
}

// InsightsSince returns up to max snapshots created at or after since, newest-first.
func (s *Store) InsightsSince(ctx context.Context, since time.Time, max int) ([]*model.InsightSnapshot, error) {
	return s.queryInsights(ctx, `
		SELECT id, ts, total_logs, processed_docs, error_count, warning_count,
		       info_count, error_rate_percent, status, top_error_service, service_errors
		FROM insights
		WHERE ts >= ?
		ORDER BY ts DESC, seq DESC
		LIMIT ?`, since.UTC(), clampLimit(max))
}

func (s *Store) queryInsights(ctx context.Context, query string, args ...any) ([]*model.InsightSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*model.InsightSnapshot
	for rows.Next() {
		var (
			ins       model.InsightSnapshot
			breakdown sql.NullString
		)
		err := rows.Scan(&ins.ID, &ins.Timestamp, &ins.TotalLogs, &ins.ProcessedDocs,
			&ins.ErrorCount, &ins.WarningCount, &ins.InfoCount, &ins.ErrorRatePercent,
			&ins.Status, &ins.TopErrorService, &breakdown)
		if err != nil {
			log.Printf("docstore: scan error (insights): %v", err)
			continue
		}
		ins.Timestamp = ins.Timestamp.UTC()
		if breakdown.Valid && breakdown.String != "" {
			if err := json.Unmarshal([]byte(breakdown.String), &ins.ServiceErrors); err != nil {
				log.Printf("docstore: bad service_errors for %s: %v", ins.ID, err)
			}
		}
		results = append(results, &ins)
	}
	return results, rows.Err()
}

// ChangedLog is one document surfaced by the change feed, tagged with the
// seq value the feed cursor advances past once the batch is handled.
type ChangedLog struct {
	Seq int64
	Doc map[string]any
}

// LogsAfterSeq returns up to max documents whose change marker is strictly
// greater than afterSeq, in change order (oldest change first).
func (s *Store) LogsAfterSeq(ctx context.Context, afterSeq int64, max int) ([]ChangedLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+logColumns+`
		FROM logs
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?`, afterSeq, clampLimit(max))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []ChangedLog
	for rows.Next() {
		rec, seq, err := scanLog(rows)
		if err != nil {
			log.Printf("docstore: scan error (change feed): %v", err)
			continue
		}
		changes = append(changes, ChangedLog{Seq: seq, Doc: logDoc(rec)})
	}
	return changes, rows.Err()
}

// logDoc flattens a record into the loose document shape consumed by the
// batch aggregator.
func logDoc(rec *model.LogRecord) map[string]any {
	doc := map[string]any{
		"id":          rec.ID,
		"app_name":    rec.AppName,
		"level":       rec.Level,
		"message":     rec.Message,
		"severity":    rec.Severity,
		"ingested_at": rec.IngestedAt.Format(time.RFC3339Nano),
	}
	if rec.UserID != "" {
		doc["user_id"] = rec.UserID
	}
	if rec.StatusCode != 0 {
		doc["status_code"] = rec.StatusCode
	}
	if rec.FileName != "" {
		doc["file_name"] = rec.FileName
	}
	if !rec.Timestamp.IsZero() {
		doc["timestamp"] = rec.Timestamp.Format(time.RFC3339Nano)
	}
	if rec.OriginalPayload != nil {
		doc["original_payload"] = rec.OriginalPayload
	}
	return doc
}

// MaxLogSeq returns the highest change marker currently in the logs table,
// or 0 when the table is empty.
func (s *Store) MaxLogSeq(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(seq) FROM logs").Scan(&seq); err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

// TotalLogCount returns the number of stored records.
func (s *Store) TotalLogCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM logs").Scan(&count)
	return count, err
}

// TopErrorServices returns services ranked by error-level record count
// since the cutoff.
func (s *Store) TopErrorServices(ctx context.Context, since time.Time, limit int) ([]model.ServiceErrorCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT app_name, COUNT(*) AS error_count
		FROM logs
		WHERE lower(trim(level)) IN ('error', 'critical')
		  AND coalesce(event_time, ingested_at) >= ?
		GROUP BY app_name
		ORDER BY error_count DESC, app_name ASC
		LIMIT ?`, since.UTC(), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.ServiceErrorCount
	for rows.Next() {
		var sc model.ServiceErrorCount
		if err := rows.Scan(&sc.Service, &sc.ErrorCount); err != nil {
			log.Printf("docstore: scan error (top error services): %v", err)
			continue
		}
		results = append(results, sc)
	}
	return results, rows.Err()
}

// ErrorTimeline buckets error-level records since the cutoff into
// intervalMinutes-wide counts, latest bucket first.
func (s *Store) ErrorTimeline(ctx context.Context, since time.Time, intervalMinutes int) ([]model.TimelinePoint, error) {
	if intervalMinutes <= 0 {
		intervalMinutes = 60
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT time_bucket(to_minutes(CAST(? AS BIGINT)), coalesce(event_time, ingested_at)) AS bucket,
		       COUNT(*) AS error_count
		FROM logs
		WHERE lower(trim(level)) IN ('error', 'critical')
		  AND coalesce(event_time, ingested_at) >= ?
		GROUP BY bucket
		ORDER BY bucket DESC`, intervalMinutes, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []model.TimelinePoint
	for rows.Next() {
		var (
			bucket time.Time
			count  int
		)
		if err := rows.Scan(&bucket, &count); err != nil {
			log.Printf("docstore: scan error (timeline): %v", err)
			continue
		}
		points = append(points, model.TimelinePoint{
			Timestamp:  bucket.UTC().Format(time.RFC3339),
			ErrorCount: count,
		})
	}
	return points, rows.Err()
}

// DeleteBefore removes records whose event time falls before the cutoff.
// Returns the number of rows deleted.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx(context.Background())
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM logs WHERE coalesce(event_time, ingested_at) < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("docstore: delete before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return res.RowsAffected()
}

var _ model.DocumentReader = (*Store)(nil)
