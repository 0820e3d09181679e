// Package otlprecv accepts OTLP log export calls and republishes each log
// record as a JSON payload on the ingest broker, so OpenTelemetry
// collectors can feed the pipeline alongside plain JSON producers.
package otlprecv

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	"google.golang.org/protobuf/encoding/protojson"
)

// Publisher is where converted records go; the broker satisfies it.
type Publisher interface {
	Publish(body []byte)
}

// Receiver implements the OTLP logs collector service.
type Receiver struct {
	collogspb.UnimplementedLogsServiceServer
	publisher Publisher
}

// NewReceiver creates a receiver publishing into p.
func NewReceiver(p Publisher) *Receiver {
	return &Receiver{publisher: p}
}

// Export converts every log record in the request into an ingest payload.
// The call always succeeds: malformed records become raw payloads rather
// than failed exports, matching the lossless policy of the ingest path.
func (r *Receiver) Export(_ context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	count := 0
	for _, rl := range req.GetResourceLogs() {
		serviceName := resourceService(rl.GetResource().GetAttributes())
		for _, sl := range rl.GetScopeLogs() {
			for _, rec := range sl.GetLogRecords() {
				payload, err := json.Marshal(recordPayload(rec, serviceName))
				if err != nil {
					log.Printf("otlprecv: marshal record: %v", err)
					continue
				}
				r.publisher.Publish(payload)
				count++
			}
		}
	}
	if count > 0 {
		log.Printf("otlprecv: accepted %d log records", count)
	}
	return &collogspb.ExportLogsServiceResponse{}, nil
}

// DecodeJSONRequest parses an OTLP/JSON export body, as posted by
// collectors using the HTTP+JSON encoding.
func DecodeJSONRequest(body []byte) (*collogspb.ExportLogsServiceRequest, error) {
	req := &collogspb.ExportLogsServiceRequest{}
	if err := protojson.Unmarshal(body, req); err != nil {
		return nil, fmt.Errorf("otlprecv: decode otlp json: %w", err)
	}
	return req, nil
}

// recordPayload flattens one OTLP record into the loose JSON document the
// enricher understands.
func recordPayload(rec *logspb.LogRecord, serviceName string) map[string]any {
	doc := map[string]any{
		"AppName": serviceName,
		"Level":   levelOf(rec),
		"Message": anyToGo(rec.GetBody()),
	}
	if ns := rec.GetTimeUnixNano(); ns > 0 {
		doc["TimeGenerated"] = time.Unix(0, int64(ns)).UTC().Format(time.RFC3339Nano)
	}
	if tid := rec.GetTraceId(); len(tid) > 0 {
		doc["RequestId"] = hex.EncodeToString(tid)
	}
	for _, kv := range rec.GetAttributes() {
		key := kv.GetKey()
		if _, taken := doc[key]; key == "" || taken {
			continue
		}
		doc[key] = anyToGo(kv.GetValue())
	}
	return doc
}

func resourceService(attrs []*commonpb.KeyValue) string {
	for _, kv := range attrs {
		if kv.GetKey() == "service.name" {
			if name, ok := anyToGo(kv.GetValue()).(string); ok && name != "" {
				return name
			}
		}
	}
	return "Unknown"
}

// levelOf prefers the severity text and falls back to the numeric range.
func levelOf(rec *logspb.LogRecord) string {
	if text := rec.GetSeverityText(); text != "" {
		return text
	}
	switch n := rec.GetSeverityNumber(); {
	case n >= logspb.SeverityNumber_SEVERITY_NUMBER_FATAL:
		return "Critical"
	case n >= logspb.SeverityNumber_SEVERITY_NUMBER_ERROR:
		return "Error"
	case n >= logspb.SeverityNumber_SEVERITY_NUMBER_WARN:
		return "Warning"
	case n >= logspb.SeverityNumber_SEVERITY_NUMBER_INFO:
		return "Information"
	case n >= logspb.SeverityNumber_SEVERITY_NUMBER_DEBUG:
		return "Debug"
	default:
		return "Information"
	}
}

func anyToGo(v *commonpb.AnyValue) any {
	switch val := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return val.StringValue
	case *commonpb.AnyValue_BoolValue:
		return val.BoolValue
	case *commonpb.AnyValue_IntValue:
		return val.IntValue
	case *commonpb.AnyValue_DoubleValue:
		return val.DoubleValue
	case *commonpb.AnyValue_BytesValue:
		return hex.EncodeToString(val.BytesValue)
	case *commonpb.AnyValue_ArrayValue:
		out := make([]any, 0, len(val.ArrayValue.GetValues()))
		for _, item := range val.ArrayValue.GetValues() {
			out = append(out, anyToGo(item))
		}
		return out
	case *commonpb.AnyValue_KvlistValue:
		out := map[string]any{}
		for _, kv := range val.KvlistValue.GetValues() {
			out[kv.GetKey()] = anyToGo(kv.GetValue())
		}
		return out
	default:
		return ""
	}
}
