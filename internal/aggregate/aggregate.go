// Package aggregate folds batches of changed log documents into insight
// snapshots: per-batch error/warning/info counts, an error-rate health
// status, and a per-service error breakdown.
package aggregate

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/loginsight/loginsight/internal/model"
	"github.com/loginsight/loginsight/internal/normalize"
	"github.com/loginsight/loginsight/internal/severity"
)

// Health thresholds on the batch error rate, in percent.
const (
	criticalRateThreshold = 30
	warningRateThreshold  = 10
)

// NoTopService is the sentinel name used when a batch has no error-level
// records.
const NoTopService = "None"

var (
	levelFields   = []string{"level", "Level", "severity"}
	serviceFields = []string{"app_name", "AppName", "application", "app", "service"}
)

// Aggregator consumes change-feed batches and persists one snapshot per
// non-empty batch. Failures are absorbed: an aggregation problem must
// never take down the pipeline that feeds it.
type Aggregator struct {
	writer model.InsightWriter
	now    func() time.Time
}

// New creates an aggregator writing snapshots through w.
func New(w model.InsightWriter) *Aggregator {
	return &Aggregator{writer: w, now: time.Now}
}

// HandleBatch summarizes one batch of changed documents. It always returns
// nil: malformed documents are skipped and write failures are logged, so
// the change feed keeps advancing.
func (a *Aggregator) HandleBatch(ctx context.Context, docs []map[string]any) error {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("aggregate: recovered from panic over %d docs: %v", len(docs), r)
		}
	}()

	if len(docs) == 0 {
		return nil
	}

	snap := Summarize(docs, a.now().UTC())
	if snap.TotalLogs == 0 {
		// Every document was skipped as a non-log; nothing to summarize.
		return nil
	}
	if err := a.writer.PutInsight(ctx, snap); err != nil {
		log.Printf("aggregate: persist snapshot %s: %v", snap.ID, err)
	}
	return nil
}

// Summarize computes one snapshot over the batch.
func Summarize(docs []map[string]any, ts time.Time) *model.InsightSnapshot {
	snap := &model.InsightSnapshot{
		ID:              "insight-" + uuid.NewString(),
		Timestamp:       ts,
		TopErrorService: NoTopService,
		ServiceErrors:   map[string]int{},
	}

	// First-seen order breaks ties when picking the top error service.
	var serviceOrder []string

	for _, doc := range docs {
		doc = normalize.Normalize(doc)
		snap.ProcessedDocs++
		if !normalize.LooksLikeLogRecord(doc) {
			continue
		}

		level := docLevel(doc)
		switch severity.Classify(level) {
		case severity.ClassError:
			snap.ErrorCount++
			service := normalize.String(doc, serviceFields, "Unknown")
			if _, seen := snap.ServiceErrors[service]; !seen {
				serviceOrder = append(serviceOrder, service)
			}
			snap.ServiceErrors[service]++
		case severity.ClassWarning:
			snap.WarningCount++
		default:
			snap.InfoCount++
		}
	}

	// Only classified log records enter the totals; skipped documents stay
	// visible through ProcessedDocs but never dilute the error rate.
	snap.TotalLogs = snap.ErrorCount + snap.WarningCount + snap.InfoCount
	if snap.TotalLogs > 0 {
		rate := float64(snap.ErrorCount) / float64(snap.TotalLogs) * 100
		snap.ErrorRatePercent = math.Round(rate*100) / 100
	}
	snap.Status = statusForRate(snap.ErrorRatePercent)

	best := -1
	for _, service := range serviceOrder {
		if snap.ServiceErrors[service] > best {
			best = snap.ServiceErrors[service]
			snap.TopErrorService = service
		}
	}

	return snap
}

// docLevel extracts the level, falling back into the original payload for
// documents whose top-level field was lost in transit.
func docLevel(doc map[string]any) string {
	if level := normalize.String(doc, levelFields, ""); level != "" {
		return level
	}
	if payload, ok := normalize.Lookup(doc, "original_payload"); ok {
		if inner, ok := payload.(map[string]any); ok {
			return normalize.String(inner, levelFields, "")
		}
	}
	return ""
}

func statusForRate(rate float64) string {
	switch {
	case rate > criticalRateThreshold:
		return model.StatusCritical
	case rate > warningRateThreshold:
		return model.StatusWarning
	default:
		return model.StatusStable
	}
}
