package model

import "time"

// LogRecord is the canonical normalized log event used across the system.
// It is the unit written to the document store and the shape served by
// the listing and search APIs. Records are immutable after write.
type LogRecord struct {
	ID              string         `json:"id"`
	AppName         string         `json:"app_name"`
	Level           string         `json:"level"`
	Message         string         `json:"message"`
	Severity        string         `json:"severity"` // Low/Medium/High, derived at write time
	UserID          string         `json:"user_id,omitempty"`
	StatusCode      int            `json:"status_code,omitempty"`
	FileName        string         `json:"file_name,omitempty"`
	Timestamp       time.Time      `json:"timestamp,omitempty"` // source-provided generation time
	IngestedAt      time.Time      `json:"ingested_at"`
	QueueMetadata   QueueMetadata  `json:"queue_metadata,omitempty"`
	OriginalPayload map[string]any `json:"original_payload,omitempty"`
}

// EventTime returns the best available event time for bucketing:
// the source-provided timestamp when present, else the ingestion time.
func (r *LogRecord) EventTime() time.Time {
	if !r.Timestamp.IsZero() {
		return r.Timestamp
	}
	return r.IngestedAt
}

// QueueMetadata carries transport-layer metadata attached at ingestion
// so a stored record can be traced back to its broker delivery.
type QueueMetadata struct {
	MessageID     string `json:"message_id,omitempty"`
	DeliveryCount int    `json:"delivery_count,omitempty"`
	Sequence      uint64 `json:"sequence,omitempty"`
}

// Health status values derived from a batch error rate.
const (
	StatusStable   = "STABLE"
	StatusWarning  = "WARNING"
	StatusCritical = "CRITICAL"
)

// InsightSnapshot is a point-in-time health summary over one batch of
// stored log records. Snapshots are immutable and append-only, ordered
// by creation time.
type InsightSnapshot struct {
	ID               string         `json:"id"`
	Timestamp        time.Time      `json:"timestamp"`
	TotalLogs        int            `json:"total_logs"`
	ProcessedDocs    int            `json:"processed_docs"`
	ErrorCount       int            `json:"error_count"`
	WarningCount     int            `json:"warning_count"`
	InfoCount        int            `json:"info_count"`
	ErrorRatePercent float64        `json:"error_rate_percent"`
	Status           string         `json:"status"`
	TopErrorService  string         `json:"top_error_service"`
	ServiceErrors    map[string]int `json:"service_error_breakdown"`
}

// ServiceErrorCount pairs a service name with its error count.
type ServiceErrorCount struct {
	Service    string `json:"service"`
	ErrorCount int    `json:"error_count"`
}

// TimelinePoint is one bucket of an hourly (or minute-bucketed) error timeline.
type TimelinePoint struct {
	Timestamp  string `json:"timestamp"`
	ErrorCount int    `json:"error_count"`
}
