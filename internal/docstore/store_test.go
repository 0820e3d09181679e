package docstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/loginsight/loginsight/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore(\"\") failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testRecord(id, app, level, message string) *model.LogRecord {
	return &model.LogRecord{
		ID:         id,
		AppName:    app,
		Level:      level,
		Message:    message,
		Severity:   "Low",
		IngestedAt: time.Now().UTC(),
	}
}

func upsertTestRecords(t *testing.T, store *Store, records ...*model.LogRecord) {
	t.Helper()
	for _, rec := range records {
		if err := store.UpsertLog(context.Background(), rec); err != nil {
			t.Fatalf("UpsertLog(%s) failed: %v", rec.ID, err)
		}
	}
}

func TestUpsertLogIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	rec := testRecord("log-1", "Billing", "Error", "payment declined")
	upsertTestRecords(t, store, rec, rec, rec)

	count, err := store.TotalLogCount(context.Background())
	if err != nil {
		t.Fatalf("TotalLogCount: %v", err)
	}
	if count != 1 {
		t.Errorf("TotalLogCount = %d after 3 upserts of one id, want 1", count)
	}
}

func TestUpsertLogReplacesFields(t *testing.T) {
	store := newTestStore(t)

	upsertTestRecords(t, store, testRecord("log-1", "Billing", "Error", "first"))
	upsertTestRecords(t, store, testRecord("log-1", "Billing", "Warning", "second"))

	logs, err := store.RecentLogs(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentLogs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("got %d logs, want 1", len(logs))
	}
	if logs[0].Message != "second" || logs[0].Level != "Warning" {
		t.Errorf("replaced record = %q/%q, want Warning/second", logs[0].Level, logs[0].Message)
	}
}

func TestUpsertLogRequiresID(t *testing.T) {
	store := newTestStore(t)
	if err := store.UpsertLog(context.Background(), &model.LogRecord{}); err == nil {
		t.Error("UpsertLog with empty id succeeded, want error")
	}
}

func TestRecentLogsNewestFirst(t *testing.T) {
	store := newTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		rec := testRecord(fmt.Sprintf("log-%d", i), "Auth", "Information", fmt.Sprintf("event %d", i))
		rec.IngestedAt = base.Add(time.Duration(i) * time.Minute)
		upsertTestRecords(t, store, rec)
	}

	logs, err := store.RecentLogs(context.Background(), 3)
	if err != nil {
		t.Fatalf("RecentLogs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("got %d logs, want 3", len(logs))
	}
	if logs[0].ID != "log-4" || logs[2].ID != "log-2" {
		t.Errorf("order = [%s %s %s], want newest-first log-4..log-2",
			logs[0].ID, logs[1].ID, logs[2].ID)
	}
}

func TestLogsFiltered(t *testing.T) {
	store := newTestStore(t)

	upsertTestRecords(t, store,
		testRecord("a", "Billing", "Error", "boom"),
		testRecord("b", "Billing", "Information", "ok"),
		testRecord("c", "Auth", "error", "denied"),
	)

	byLevel, err := store.LogsFiltered(context.Background(), model.LogFilter{Level: "ERROR"}, 10)
	if err != nil {
		t.Fatalf("LogsFiltered(level): %v", err)
	}
	if len(byLevel) != 2 {
		t.Errorf("level filter matched %d records, want 2 (case-insensitive)", len(byLevel))
	}

	both, err := store.LogsFiltered(context.Background(), model.LogFilter{Level: "error", Service: "Auth"}, 10)
	if err != nil {
		t.Fatalf("LogsFiltered(level+service): %v", err)
	}
	if len(both) != 1 || both[0].ID != "c" {
		t.Errorf("combined filter = %v, want only record c", both)
	}
}

func TestErrorLogsExactLevelMatch(t *testing.T) {
	store := newTestStore(t)

	upsertTestRecords(t, store,
		testRecord("a", "Billing", "Error", "boom"),
		testRecord("b", "Auth", "CRITICAL", "down"),
		testRecord("c", "Auth", "Information", "an error was mentioned"),
		testRecord("d", "Auth", "error_handler", "not an error level"),
	)

	logs, err := store.ErrorLogs(context.Background(), 10)
	if err != nil {
		t.Fatalf("ErrorLogs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("ErrorLogs matched %d records, want exactly the error+critical pair", len(logs))
	}
}

func TestRoundTripOptionalFields(t *testing.T) {
	store := newTestStore(t)

	ts := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	rec := testRecord("full", "Checkout", "Error", "declined")
	rec.UserID = "user-9"
	rec.StatusCode = 502
	rec.FileName = "checkout.log"
	rec.Timestamp = ts
	rec.QueueMetadata = model.QueueMetadata{MessageID: "m-1", DeliveryCount: 2, Sequence: 7}
	rec.OriginalPayload = map[string]any{"Level": "Error", "raw_field": "kept"}
	upsertTestRecords(t, store, rec)

	logs, err := store.RecentLogs(context.Background(), 1)
	if err != nil {
		t.Fatalf("RecentLogs: %v", err)
	}
	got := logs[0]
	if got.UserID != "user-9" || got.StatusCode != 502 || got.FileName != "checkout.log" {
		t.Errorf("optional fields lost: %+v", got)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, ts)
	}
	if got.QueueMetadata.DeliveryCount != 2 || got.QueueMetadata.Sequence != 7 {
		t.Errorf("queue metadata lost: %+v", got.QueueMetadata)
	}
	if got.OriginalPayload["raw_field"] != "kept" {
		t.Errorf("original payload lost: %+v", got.OriginalPayload)
	}
}

func TestLogsAfterSeqTracksChanges(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	upsertTestRecords(t, store,
		testRecord("a", "Billing", "Error", "one"),
		testRecord("b", "Auth", "Information", "two"),
	)

	changes, err := store.LogsAfterSeq(ctx, 0, 100)
	if err != nil {
		t.Fatalf("LogsAfterSeq: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2", len(changes))
	}
	if changes[0].Seq >= changes[1].Seq {
		t.Errorf("changes not in ascending seq order: %d, %d", changes[0].Seq, changes[1].Seq)
	}

	cursor := changes[1].Seq
	rest, err := store.LogsAfterSeq(ctx, cursor, 100)
	if err != nil {
		t.Fatalf("LogsAfterSeq(cursor): %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("got %d changes past cursor, want 0", len(rest))
	}

	// Rewriting an existing document re-enters the feed with a fresh seq.
	upsertTestRecords(t, store, testRecord("a", "Billing", "Error", "one updated"))
	rest, err = store.LogsAfterSeq(ctx, cursor, 100)
	if err != nil {
		t.Fatalf("LogsAfterSeq(after rewrite): %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("got %d changes after rewrite, want 1", len(rest))
	}
	if rest[0].Doc["message"] != "one updated" {
		t.Errorf("change doc message = %v, want rewritten value", rest[0].Doc["message"])
	}
}

func TestPutAndReadInsights(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ins := &model.InsightSnapshot{
			ID:               fmt.Sprintf("ins-%d", i),
			Timestamp:        base.Add(time.Duration(i) * time.Hour),
			TotalLogs:        10,
			ProcessedDocs:    10,
			ErrorCount:       i,
			ErrorRatePercent: float64(i) * 10,
			Status:           model.StatusStable,
			TopErrorService:  "None",
			ServiceErrors:    map[string]int{"Billing": i},
		}
		if err := store.PutInsight(ctx, ins); err != nil {
			t.Fatalf("PutInsight: %v", err)
		}
	}

	recent, err := store.RecentInsights(ctx, 2)
	if err != nil {
		t.Fatalf("RecentInsights: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "ins-2" {
		t.Fatalf("RecentInsights = %v, want newest-first starting at ins-2", recent)
	}
	if recent[0].ServiceErrors["Billing"] != 2 {
		t.Errorf("service breakdown lost: %+v", recent[0].ServiceErrors)
	}

	since, err := store.InsightsSince(ctx, base.Add(90*time.Minute), 10)
	if err != nil {
		t.Fatalf("InsightsSince: %v", err)
	}
	if len(since) != 1 || since[0].ID != "ins-2" {
		t.Errorf("InsightsSince = %v, want only ins-2", since)
	}
}

func TestSharedReturnsOneInstance(t *testing.T) {
	first, err := Shared("")
	if err != nil {
		t.Fatalf("Shared: %v", err)
	}
	second, err := Shared("some-other-path.duckdb")
	if err != nil {
		t.Fatalf("Shared (second call): %v", err)
	}
	if first != second {
		t.Error("Shared returned distinct stores for concurrent-style callers")
	}
}

func TestTopErrorServicesRanksByCount(t *testing.T) {
	store := newTestStore(t)

	upsertTestRecords(t, store,
		testRecord("e-1", "Billing", "Error", "declined"),
		testRecord("e-2", "Billing", "Critical", "down"),
		testRecord("e-3", "Uploads", "Error", "timeout"),
		testRecord("e-4", "Uploads", "Information", "ok"),
		testRecord("e-5", "Auth", "Warning", "slow"),
	)

	services, err := store.TopErrorServices(context.Background(), time.Time{}, 10)
	if err != nil {
		t.Fatalf("TopErrorServices: %v", err)
	}
	if len(services) != 2 {
		t.Fatalf("got %d services, want 2: %+v", len(services), services)
	}
	if services[0].Service != "Billing" || services[0].ErrorCount != 2 {
		t.Errorf("top service = %+v, want Billing/2", services[0])
	}
	if services[1].Service != "Uploads" || services[1].ErrorCount != 1 {
		t.Errorf("second service = %+v, want Uploads/1", services[1])
	}
}

func TestErrorTimelineBucketsLatestFirst(t *testing.T) {
	store := newTestStore(t)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mk := func(id string, offset time.Duration) *model.LogRecord {
		rec := testRecord(id, "Billing", "Error", "boom")
		rec.Timestamp = base.Add(offset)
		return rec
	}
	upsertTestRecords(t, store,
		mk("t-1", 0),
		mk("t-2", 2*time.Minute),
		mk("t-3", 7*time.Minute),
	)

	points, err := store.ErrorTimeline(context.Background(), time.Time{}, 5)
	if err != nil {
		t.Fatalf("ErrorTimeline: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d buckets, want 2: %+v", len(points), points)
	}
	if points[0].ErrorCount != 1 || points[1].ErrorCount != 2 {
		t.Errorf("bucket counts = %d,%d; want latest bucket first with 1 then 2",
			points[0].ErrorCount, points[1].ErrorCount)
	}
	if !(points[0].Timestamp > points[1].Timestamp) {
		t.Errorf("buckets not latest-first: %q then %q", points[0].Timestamp, points[1].Timestamp)
	}
}

func TestDeleteBefore(t *testing.T) {
	store := newTestStore(t)

	old := testRecord("old", "Auth", "Information", "stale")
	old.Timestamp = time.Now().UTC().Add(-48 * time.Hour)
	fresh := testRecord("fresh", "Auth", "Information", "recent")
	upsertTestRecords(t, store, old, fresh)

	deleted, err := store.DeleteBefore(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted %d rows, want 1", deleted)
	}

	count, err := store.TotalLogCount(context.Background())
	if err != nil {
		t.Fatalf("TotalLogCount: %v", err)
	}
	if count != 1 {
		t.Errorf("TotalLogCount = %d, want 1", count)
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"throttled sentinel", ErrThrottled, true},
		{"wrapped throttled", fmt.Errorf("store: %w", ErrThrottled), true},
		{"deadline", context.DeadlineExceeded, true},
		{"lock contention", errors.New("IO Error: database is locked"), true},
		{"schema error", errors.New("table logs has no column named nope"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Retryable(tc.err); got != tc.want {
				t.Errorf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
