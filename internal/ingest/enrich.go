package ingest

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loginsight/loginsight/internal/model"
	"github.com/loginsight/loginsight/internal/normalize"
	"github.com/loginsight/loginsight/internal/severity"
	"github.com/loginsight/loginsight/internal/timeparse"
)

// MaxMessageLen caps the stored message body. Longer messages are truncated,
// never rejected.
const MaxMessageLen = 500

// Field candidate lists, checked in order, case-insensitively.
var (
	idFields      = []string{"RequestId", "request_id", "id", "Id"}
	appFields     = []string{"AppName", "app_name", "application", "app", "service"}
	levelFields   = []string{"Level", "level", "severity", "loglevel", "log_level"}
	messageFields = []string{"Message", "message", "msg", "log"}
	timeFields    = []string{"TimeGenerated", "timestamp", "time", "Time", "created_at"}
	userFields    = []string{"UserId", "user_id", "User"}
	statusFields  = []string{"StatusCode", "status_code", "status"}
	fileFields    = []string{"FileName", "file", "filename", "file_name"}
)

// Enrich turns a decoded document into a canonical record. Every document
// yields a record: missing fields fall back to defaults, and the identity
// rule makes the downstream upsert idempotent (a request id maps to a
// stable document id; anonymous payloads get a generated one).
func Enrich(doc map[string]any, meta model.QueueMetadata, now time.Time) *model.LogRecord {
	rec := &model.LogRecord{
		AppName:         normalize.String(doc, appFields, "Unknown"),
		Level:           normalize.String(doc, levelFields, "Information"),
		UserID:          normalize.String(doc, userFields, ""),
		StatusCode:      normalize.Int(doc, statusFields, 0),
		FileName:        normalize.String(doc, fileFields, ""),
		IngestedAt:      now.UTC(),
		QueueMetadata:   meta,
		OriginalPayload: doc,
	}

	rec.Message = normalize.String(doc, messageFields, "")
	if rec.Message == "" {
		rec.Message = normalize.Stringify(doc)
	}
	rec.Message = Truncate(rec.Message, MaxMessageLen)

	rec.Severity = severity.FromLevel(rec.Level)

	if raw := normalize.String(doc, timeFields, ""); raw != "" {
		if ts, ok := timeparse.Parse(raw); ok {
			rec.Timestamp = ts
		}
	}

	if id := strings.TrimSpace(normalize.String(doc, idFields, "")); id != "" {
		rec.ID = id
	} else if meta.MessageID != "" {
		// Deriving the token from the delivery id keeps redeliveries of an
		// anonymous payload collapsing onto one document.
		rec.ID = "generated-" + meta.MessageID
	} else {
		rec.ID = "generated-" + uuid.NewString()
	}

	return rec
}

// Truncate shortens s to at most max bytes, cutting on a rune boundary so
// truncation never produces invalid UTF-8.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
