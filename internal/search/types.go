package search

import (
	"encoding/json"
	"math"

	"github.com/loginsight/loginsight/internal/model"
)

// Strategy names, also used as history categories.
const (
	TypeServiceLevel = "service_level"
	TypeSystemHealth = "system_health"
	TypeSemantic     = "semantic"
)

// ServiceLevelReport answers queries about which services are failing.
type ServiceLevelReport struct {
	Type               string                           `json:"type"`
	Timestamp          string                           `json:"timestamp"`
	Query              string                           `json:"query"`
	TotalErrorServices int                              `json:"total_error_services"`
	TopErrorServices   []model.ServiceErrorCount        `json:"top_error_services"`
	LatestStatus       string                           `json:"latest_status"`
	LatestErrorRate    float64                          `json:"latest_error_rate"`
	PerServiceTimeline map[string][]model.TimelinePoint `json:"per_service_timeline"`
	ServiceDetails     *ServiceDetails                  `json:"service_details,omitempty"`
}

// ServiceDetails zooms into one service the query named explicitly.
type ServiceDetails struct {
	Service            string `json:"service"`
	ErrorCount         int    `json:"error_count"`
	LastErrorTimestamp string `json:"last_error_timestamp"`
}

// SystemHealthReport answers queries about overall pipeline health.
type SystemHealthReport struct {
	Type             string                `json:"type"`
	Timestamp        string                `json:"timestamp"`
	Query            string                `json:"query"`
	LatestStatus     string                `json:"latest_status"`
	ErrorRatePercent float64               `json:"error_rate_percent"`
	TopErrorService  string                `json:"top_error_service"`
	MTBFHours        MTBF                  `json:"mean_time_between_failures_hrs"`
	Trend            string                `json:"trend"`
	RecordsAnalyzed  int                   `json:"records_analyzed"`
	Timeline         []model.TimelinePoint `json:"timeline"`
}

// MTBF is the mean gap between CRITICAL snapshots in hours. It serializes
// as the string "N/A" when fewer than two critical snapshots exist.
type MTBF struct {
	Hours float64
	Valid bool
}

// MarshalJSON renders a valid MTBF as a number rounded to two decimals.
func (m MTBF) MarshalJSON() ([]byte, error) {
	if !m.Valid || m.Hours == 0 {
		return json.Marshal("N/A")
	}
	return json.Marshal(math.Round(m.Hours*100) / 100)
}

// SemanticReport lists the closest matches by embedding similarity.
type SemanticReport struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Query     string          `json:"query"`
	Count     int             `json:"count"`
	Matches   []SemanticMatch `json:"semantic_matches"`
}

// SemanticMatch is one scored result. Field casing mirrors the stored
// document fields so clients can correlate matches with raw log listings.
type SemanticMatch struct {
	AppName   string  `json:"AppName"`
	Level     string  `json:"Level"`
	Message   string  `json:"Message"`
	Timestamp string  `json:"Timestamp"`
	Severity  string  `json:"Severity"`
	Score     float64 `json:"score"`
}

// Notice is the degenerate answer when a strategy has no data to analyze.
type Notice struct {
	Message string `json:"message"`
}
