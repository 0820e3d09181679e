// Package search implements the hybrid query engine: keyword dispatch to
// service-level or system-health analysis over the cached window, with an
// embedding similarity fallback for everything else.
package search

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/loginsight/loginsight/internal/cache"
	"github.com/loginsight/loginsight/internal/embed"
	"github.com/loginsight/loginsight/internal/history"
	"github.com/loginsight/loginsight/internal/ingest"
	"github.com/loginsight/loginsight/internal/model"
	"github.com/loginsight/loginsight/internal/severity"
	"github.com/loginsight/loginsight/internal/timeparse"
	"github.com/montanaflynn/stats"
)

const (
	// DefaultTopK is the semantic result count when the caller passes none.
	DefaultTopK = 5

	// topServicesLimit bounds the ranked service list.
	topServicesLimit = 5

	// matchMessageLen caps message bodies in semantic results.
	matchMessageLen = 150
)

// Keyword sets driving strategy dispatch. Service-level wins when a query
// matches both.
var (
	serviceKeywords = []string{"error", "service", "critical"}
	systemKeywords  = []string{"system", "stable", "health", "trend"}
	failureKeywords = []string{"fail", "failed", "failure", "error", "critical", "issue", "crash"}
)

// Engine dispatches free-text queries across the cached data window.
type Engine struct {
	cache    *cache.Cache
	history  *history.Store
	provider model.EmbeddingProvider
	now      func() time.Time
}

// New creates a query engine.
func New(c *cache.Cache, h *history.Store, provider model.EmbeddingProvider) *Engine {
	return &Engine{cache: c, history: h, provider: provider, now: time.Now}
}

// Search answers one query. The cache is force-refreshed first so answers
// always reflect the live store. Every answered query lands in the history
// under its strategy; a history write failure never fails the search.
func (e *Engine) Search(ctx context.Context, query string, topK int) (any, error) {
	e.cache.Refresh(ctx, true)
	snap := e.cache.Current()
	q := strings.ToLower(strings.TrimSpace(query))

	switch {
	case containsAny(q, serviceKeywords):
		return e.serviceLevel(query, q, snap), nil
	case containsAny(q, systemKeywords):
		return e.systemHealth(query, snap), nil
	default:
		return e.semantic(ctx, query, q, snap, topK)
	}
}

func containsAny(q string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// serviceLevel ranks services by error volume and builds per-service
// hourly error timelines.
func (e *Engine) serviceLevel(query, q string, snap *cache.Snapshot) *ServiceLevelReport {
	errorLogs := filterErrorLogs(snap.Logs)

	counts := map[string]int{}
	var order []string // first-seen, breaks ranking ties
	for _, l := range errorLogs {
		app := appOf(l)
		if _, seen := counts[app]; !seen {
			order = append(order, app)
		}
		counts[app]++
	}

	ranked := make([]model.ServiceErrorCount, 0, len(order))
	for _, app := range order {
		ranked = append(ranked, model.ServiceErrorCount{Service: app, ErrorCount: counts[app]})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].ErrorCount > ranked[j].ErrorCount })
	if len(ranked) > topServicesLimit {
		ranked = ranked[:topServicesLimit]
	}

	report := &ServiceLevelReport{
		Type:               TypeServiceLevel,
		Timestamp:          e.now().UTC().Format(time.RFC3339),
		Query:              query,
		TotalErrorServices: len(counts),
		TopErrorServices:   ranked,
		LatestStatus:       "N/A",
		PerServiceTimeline: perServiceTimeline(errorLogs),
	}
	if len(snap.Insights) > 0 {
		report.LatestStatus = snap.Insights[0].Status
		report.LatestErrorRate = snap.Insights[0].ErrorRatePercent
	}

	// Zoom in when the query names a known failing service.
	for _, app := range order {
		if app != "" && strings.Contains(q, strings.ToLower(app)) {
			report.ServiceDetails = serviceDetails(app, errorLogs)
			break
		}
	}

	e.record(TypeServiceLevel, query, len(ranked))
	return report
}

func serviceDetails(app string, errorLogs []*model.LogRecord) *ServiceDetails {
	details := &ServiceDetails{Service: app, LastErrorTimestamp: "N/A"}
	var last time.Time
	for _, l := range errorLogs {
		if !strings.EqualFold(appOf(l), app) {
			continue
		}
		details.ErrorCount++
		if t := l.EventTime(); t.After(last) {
			last = t
		}
	}
	if !last.IsZero() {
		details.LastErrorTimestamp = last.UTC().Format(time.RFC3339)
	}
	return details
}

func perServiceTimeline(errorLogs []*model.LogRecord) map[string][]model.TimelinePoint {
	buckets := map[string]map[string]int{}
	for _, l := range errorLogs {
		app := appOf(l)
		if buckets[app] == nil {
			buckets[app] = map[string]int{}
		}
		buckets[app][timeparse.HourBucket(l.EventTime())]++
	}

	timelines := make(map[string][]model.TimelinePoint, len(buckets))
	for app, hours := range buckets {
		keys := make([]string, 0, len(hours))
		for k := range hours {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		points := make([]model.TimelinePoint, len(keys))
		for i, k := range keys {
			points[i] = model.TimelinePoint{Timestamp: k, ErrorCount: hours[k]}
		}
		timelines[app] = points
	}
	return timelines
}

// systemHealth summarizes the insight series: latest status, failure
// cadence, and a short trend verdict.
func (e *Engine) systemHealth(query string, snap *cache.Snapshot) any {
	insights := snap.Insights // newest-first
	if len(insights) == 0 {
		return &Notice{Message: "No insights available."}
	}

	latest := insights[0]

	var criticalTimes []time.Time
	for _, ins := range insights {
		if ins.Status == model.StatusCritical {
			criticalTimes = append(criticalTimes, ins.Timestamp)
		}
	}
	var mtbf MTBF
	if len(criticalTimes) > 1 {
		deltas := make([]float64, 0, len(criticalTimes)-1)
		for i := 0; i < len(criticalTimes)-1; i++ {
			deltas = append(deltas, criticalTimes[i].Sub(criticalTimes[i+1]).Hours())
		}
		if mean, err := stats.Mean(deltas); err == nil {
			mtbf = MTBF{Hours: mean, Valid: true}
		}
	}

	recentCritical := 0
	for i := 0; i < len(insights) && i < 3; i++ {
		if insights[i].Status == model.StatusCritical {
			recentCritical++
		}
	}
	trend := "Stable"
	if recentCritical > 1 {
		trend = "Degrading"
	}

	hourTotals := map[string]int{}
	for _, ins := range insights {
		hourTotals[timeparse.HourBucket(ins.Timestamp)] += ins.ErrorCount
	}
	hours := make([]string, 0, len(hourTotals))
	for k := range hourTotals {
		hours = append(hours, k)
	}
	sort.Strings(hours)
	timeline := make([]model.TimelinePoint, len(hours))
	for i, k := range hours {
		timeline[i] = model.TimelinePoint{Timestamp: k, ErrorCount: hourTotals[k]}
	}

	report := &SystemHealthReport{
		Type:             TypeSystemHealth,
		Timestamp:        e.now().UTC().Format(time.RFC3339),
		Query:            query,
		LatestStatus:     latest.Status,
		ErrorRatePercent: latest.ErrorRatePercent,
		TopErrorService:  latest.TopErrorService,
		MTBFHours:        mtbf,
		Trend:            trend,
		RecordsAnalyzed:  len(insights),
		Timeline:         timeline,
	}

	e.record(TypeSystemHealth, query, len(insights))
	return report
}

// corpusItem pairs embeddable text with the fields echoed in a match.
type corpusItem struct {
	text  string
	match SemanticMatch
}

// semantic ranks the cached window by embedding similarity. Queries with
// failure intent restrict the corpus to error-level logs when any exist.
func (e *Engine) semantic(ctx context.Context, query, q string, snap *cache.Snapshot, topK int) (*SemanticReport, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	corpus := buildCorpus(snap, containsAny(q, failureKeywords))

	report := &SemanticReport{
		Type:      TypeSemantic,
		Timestamp: e.now().UTC().Format(time.RFC3339),
		Query:     query,
		Matches:   []SemanticMatch{},
	}

	if len(corpus) == 0 || strings.TrimSpace(query) == "" {
		e.record(TypeSemantic, query, 0)
		return report, nil
	}

	texts := make([]string, 0, len(corpus)+1)
	texts = append(texts, query)
	for _, item := range corpus {
		texts = append(texts, item.text)
	}
	vecs, err := e.provider.Encode(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("search: encode corpus: %w", err)
	}
	queryVec, corpusVecs := vecs[0], vecs[1:]

	type scored struct {
		idx   int
		score float64
	}
	ranked := make([]scored, len(corpus))
	for i, vec := range corpusVecs {
		ranked[i] = scored{idx: i, score: embed.Cosine(queryVec, vec)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	for _, r := range ranked {
		match := corpus[r.idx].match
		match.Score = math.Round(r.score*1000) / 1000
		report.Matches = append(report.Matches, match)
	}
	report.Count = len(report.Matches)

	e.record(TypeSemantic, query, report.Count)
	return report, nil
}

func buildCorpus(snap *cache.Snapshot, failureIntent bool) []corpusItem {
	logs := snap.Logs
	if failureIntent {
		if errorLogs := filterErrorLogs(logs); len(errorLogs) > 0 {
			return logCorpus(errorLogs)
		}
	}

	corpus := logCorpus(logs)
	// Insight snapshots join the corpus so health summaries can surface
	// for descriptive queries.
	for _, ins := range snap.Insights {
		text := fmt.Sprintf("%s status, error rate %.2f%%, top service %s | App: %s | Level: %s",
			ins.Status, ins.ErrorRatePercent, ins.TopErrorService, ins.TopErrorService, ins.Status)
		corpus = append(corpus, corpusItem{
			text: text,
			match: SemanticMatch{
				AppName:   ins.TopErrorService,
				Level:     ins.Status,
				Message:   ingest.Truncate(text, matchMessageLen),
				Timestamp: ins.Timestamp.UTC().Format(time.RFC3339),
				Severity:  "N/A",
			},
		})
	}
	return corpus
}

func logCorpus(logs []*model.LogRecord) []corpusItem {
	corpus := make([]corpusItem, 0, len(logs))
	for _, l := range logs {
		ts := "N/A"
		if !l.Timestamp.IsZero() {
			ts = l.Timestamp.UTC().Format(time.RFC3339)
		}
		corpus = append(corpus, corpusItem{
			text: fmt.Sprintf("%s | App: %s | Level: %s", l.Message, l.AppName, l.Level),
			match: SemanticMatch{
				AppName:   appOf(l),
				Level:     orNA(l.Level),
				Message:   ingest.Truncate(l.Message, matchMessageLen),
				Timestamp: ts,
				Severity:  orNA(l.Severity),
			},
		})
	}
	return corpus
}

func (e *Engine) record(category, query string, resultCount int) {
	if e.history == nil {
		return
	}
	err := e.history.Append(category, history.Entry{
		Query:       query,
		Strategy:    category,
		Timestamp:   e.now().UTC(),
		ResultCount: resultCount,
	})
	if err != nil {
		log.Printf("search: history append failed: %v", err)
	}
}

// History returns the recorded searches grouped by strategy.
func (e *Engine) History() map[string][]history.Entry {
	if e.history == nil {
		return map[string][]history.Entry{}
	}
	return e.history.All()
}

func filterErrorLogs(logs []*model.LogRecord) []*model.LogRecord {
	var out []*model.LogRecord
	for _, l := range logs {
		if severity.IsErrorLevel(l.Level) {
			out = append(out, l)
		}
	}
	return out
}

func appOf(l *model.LogRecord) string {
	if l.AppName == "" {
		return "Unknown"
	}
	return l.AppName
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
