package httpserver

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loginsight/loginsight/internal/model"
	"github.com/loginsight/loginsight/internal/otlprecv"
	"github.com/loginsight/loginsight/internal/timeparse"
	"github.com/montanaflynn/stats"
)

const (
	// maxIngestBody bounds one POST /log request.
	maxIngestBody = 4 << 20

	defaultLogLimit = 100
	maxLogLimit     = 2000

	defaultHealthWindow = 10
	maxHealthWindow     = 100

	// maxErrorServices caps the grouped fetch; topErrorServices caps the
	// response, and criticalErrorTotal flips the rollup status.
	maxErrorServices   = 1000
	topErrorServices   = 10
	criticalErrorTotal = 100

	defaultTimelineMinutes = 5
)

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "loginsight is running"})
}

// handleHealth summarizes recent insight snapshots: latest status, trend over
// the three most recent, and mean time between CRITICAL snapshots.
func (s *Server) handleHealth(c *gin.Context) {
	lastN := defaultHealthWindow
	if raw := c.Query("last_n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHealthWindow {
			c.JSON(http.StatusBadRequest, gin.H{"error": "last_n must be between 1 and 100"})
			return
		}
		lastN = n
	}

	var (
		insights []*model.InsightSnapshot
		err      error
	)
	if raw := c.Query("since"); raw != "" {
		since, perr := timeparse.ParseSince(raw, time.Now().UTC())
		if perr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be like 2h, 1d, or an ISO timestamp"})
			return
		}
		insights, err = s.store.InsightsSince(c.Request.Context(), since, maxHealthWindow)
	} else {
		insights, err = s.store.RecentInsights(c.Request.Context(), lastN)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health data"})
		return
	}
	if len(insights) == 0 {
		c.JSON(http.StatusOK, gin.H{"status": "UNKNOWN", "message": "No health data recorded yet"})
		return
	}

	latest := insights[0] // newest-first
	statuses := make([]string, len(insights))
	var criticalTimes []time.Time
	for i, ins := range insights {
		statuses[i] = ins.Status
		if ins.Status == model.StatusCritical {
			criticalTimes = append(criticalTimes, ins.Timestamp)
		}
	}

	var mtbf any = "N/A"
	if hours, ok := meanHoursBetween(criticalTimes); ok && hours != 0 {
		mtbf = hours
	}

	trend := "Improving"
	for i := 0; i < len(statuses) && i < 3; i++ {
		if statuses[i] == model.StatusCritical {
			trend = "Degrading"
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"latest_status":                  latest.Status,
		"timestamp":                      latest.Timestamp.UTC().Format(time.RFC3339),
		"error_rate_percent":             latest.ErrorRatePercent,
		"total_logs":                     latest.TotalLogs,
		"top_error_service":              latest.TopErrorService,
		"status_trend":                   trend,
		"mean_time_between_failures_hrs": mtbf,
		"records_analyzed":               len(insights),
		"historical_statuses":            statuses,
		"message":                        healthMessage(latest.Status),
	})
}

// meanHoursBetween averages the gaps of a newest-first timestamp list.
func meanHoursBetween(times []time.Time) (float64, bool) {
	if len(times) < 2 {
		return 0, false
	}
	deltas := make([]float64, 0, len(times)-1)
	for i := 0; i < len(times)-1; i++ {
		deltas = append(deltas, times[i].Sub(times[i+1]).Hours())
	}
	mean, err := stats.Mean(deltas)
	if err != nil {
		return 0, false
	}
	return math.Round(mean*100) / 100, true
}

func healthMessage(status string) string {
	switch status {
	case model.StatusStable:
		return "System is stable and healthy."
	case model.StatusWarning:
		return "Elevated error rate detected. Monitor closely."
	default:
		return "CRITICAL: Immediate action required."
	}
}

// handleIngest accepts one log payload or an array of them. Each payload is
// queued for enrichment; nothing is validated here because the pipeline
// guarantees malformed payloads are stored raw rather than rejected.
func (s *Server) handleIngest(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIngestBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty body"})
		return
	}

	count := 0
	var batch []json.RawMessage
	if err := json.Unmarshal(body, &batch); err == nil {
		for _, item := range batch {
			s.publisher.Publish(item)
			count++
		}
	} else {
		s.publisher.Publish(body)
		count = 1
	}

	if s.forwarder != nil {
		var payload any
		if err := json.Unmarshal(body, &payload); err == nil {
			s.forwarder.SendAsync(payload)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "queued", "count": count})
}

// handleOTLPJSON accepts the OTLP HTTP+JSON logs encoding.
func (s *Server) handleOTLPJSON(c *gin.Context) {
	if s.otlp == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "otlp receiver disabled"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIngestBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	req, err := otlprecv.DecodeJSONRequest(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := s.otlp.Export(c.Request.Context(), req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) handleLogs(c *gin.Context) {
	limit := defaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		if n > maxLogLimit {
			n = maxLogLimit
		}
		limit = n
	}

	filter := model.LogFilter{
		Level:   c.Query("level"),
		Service: c.Query("service"),
	}
	logs, err := s.store.LogsFiltered(c.Request.Context(), filter, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query logs"})
		return
	}
	if logs == nil {
		logs = []*model.LogRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(logs), "logs": logs})
}

// handleErrorServices ranks services by error volume with each service's share
// of the total. An optional since parameter narrows the window; the default is
// everything stored.
func (s *Server) handleErrorServices(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := timeparse.ParseSince(raw, time.Now().UTC())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be like 2h, 1d, or an ISO timestamp"})
			return
		}
		since = parsed
	}

	services, err := s.store.TopErrorServices(c.Request.Context(), since, maxErrorServices)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query error services"})
		return
	}
	if len(services) == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "No error logs found.", "top_error_services": []any{}})
		return
	}

	totalErrors := 0
	for _, sc := range services {
		totalErrors += sc.ErrorCount
	}

	if len(services) > topErrorServices {
		services = services[:topErrorServices]
	}
	ranked := make([]gin.H, len(services))
	for i, sc := range services {
		ranked[i] = gin.H{
			"service":          sc.Service,
			"error_count":      sc.ErrorCount,
			"error_percentage": math.Round(float64(sc.ErrorCount)/float64(totalErrors)*100*100) / 100,
		}
	}

	status := model.StatusStable
	if totalErrors > criticalErrorTotal {
		status = model.StatusCritical
	}
	c.JSON(http.StatusOK, gin.H{
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
		"total_error_logs":   totalErrors,
		"top_error_services": ranked,
		"status":             status,
	})
}

// handleErrorTimeline groups error counts into fixed-width time buckets,
// latest bucket first.
func (s *Server) handleErrorTimeline(c *gin.Context) {
	interval := defaultTimelineMinutes
	if raw := c.Query("interval_minutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "interval_minutes must be a positive integer"})
			return
		}
		interval = n
	}

	var since time.Time
	if raw := c.Query("start_time"); raw != "" {
		parsed, err := timeparse.ParseSince(raw, time.Now().UTC())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start_time must be like 2h, 1d, or an ISO timestamp"})
			return
		}
		since = parsed
	}

	points, err := s.store.ErrorTimeline(c.Request.Context(), since, interval)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query timeline"})
		return
	}
	if len(points) == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "No errors found in this time range."})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"interval_minutes": interval,
		"total_intervals":  len(points),
		"timeline":         points,
	})
}

func (s *Server) handleSearch(c *gin.Context) {
	var req struct {
		Query string `json:"query" binding:"required"`
		TopK  int    `json:"top_k"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing query field"})
		return
	}

	result, err := s.searcher.Search(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleSearchHistory(c *gin.Context) {
	c.JSON(http.StatusOK, s.searcher.History())
}
