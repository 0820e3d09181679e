package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/loginsight/loginsight/internal/aggregate"
	"github.com/loginsight/loginsight/internal/cache"
	"github.com/loginsight/loginsight/internal/changefeed"
	"github.com/loginsight/loginsight/internal/docstore"
	"github.com/loginsight/loginsight/internal/embed"
	"github.com/loginsight/loginsight/internal/history"
	"github.com/loginsight/loginsight/internal/httpserver"
	"github.com/loginsight/loginsight/internal/ingest"
	"github.com/loginsight/loginsight/internal/queue"
	"github.com/loginsight/loginsight/internal/search"
)

type pipelineStack struct {
	store  *docstore.Store
	broker *queue.Broker
	poller *changefeed.Poller
	tcp    *queue.TCPSource
	api    *httpserver.Server

	cancel context.CancelFunc
}

// startPipeline boots the full ingestion path with fast intervals: queue
// workers writing to the store, the change-feed poller producing insights,
// and the HTTP API on an ephemeral port.
func startPipeline(t *testing.T) *pipelineStack {
	t.Helper()

	dir := t.TempDir()

	store, err := docstore.NewStore(filepath.Join(dir, "pipeline.duckdb"), 5*time.Second)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	lease, err := changefeed.OpenLease(filepath.Join(dir, "lease.json"))
	if err != nil {
		t.Fatalf("OpenLease: %v", err)
	}

	poller := changefeed.NewPoller(store, lease, aggregate.New(store).HandleBatch, changefeed.Config{
		Interval:  20 * time.Millisecond,
		BatchSize: 100,
	})

	broker := queue.NewBroker(ingest.NewConsumer(ingest.NewWriter(store)).Handle, queue.BrokerConfig{
		Workers: 2,
	})

	hist, err := history.Open(filepath.Join(dir, "history.json"))
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}

	engine := search.New(cache.New(store, cache.Config{TTL: 30 * time.Millisecond}), hist, embed.NewHashProvider())

	ctx, cancel := context.WithCancel(context.Background())
	broker.Start(ctx)
	poller.Start(ctx)

	tcp := queue.NewTCPSource("127.0.0.1:0", broker)
	if err := tcp.Start(); err != nil {
		cancel()
		t.Fatalf("tcp.Start: %v", err)
	}

	api := httpserver.NewServer("127.0.0.1:0", httpserver.Deps{
		Store:     store,
		Searcher:  engine,
		Publisher: broker,
	})
	if err := api.Start(); err != nil {
		cancel()
		t.Fatalf("api.Start: %v", err)
	}

	stack := &pipelineStack{store: store, broker: broker, poller: poller, tcp: tcp, api: api, cancel: cancel}
	t.Cleanup(func() {
		_ = stack.api.Stop()
		_ = stack.tcp.Stop()
		stack.cancel()
		stack.poller.Stop()
		stack.broker.Stop()
		_ = stack.store.Close()
	})
	return stack
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func postJSON(t *testing.T, url string, payload any) map[string]any {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		t.Fatalf("POST %s returned %d: %s", url, resp.StatusCode, detail)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return out
}

func TestPipelineIngestToInsight(t *testing.T) {
	stack := startPipeline(t)
	base := "http://" + stack.api.Addr()
	ctx := context.Background()

	batch := []map[string]any{
		{"RequestId": "req-1", "AppName": "Uploads", "Level": "Information", "Message": "User alice uploaded report.pdf"},
		{"RequestId": "req-2", "AppName": "Uploads", "Level": "Error", "Message": "User bob failed to upload data.csv: Request Timeout"},
		{"RequestId": "req-3", "AppName": "Billing", "Level": "Error", "Message": "invoice charge declined"},
	}
	resp := postJSON(t, base+"/log", batch)
	if resp["count"] != float64(3) {
		t.Fatalf("expected count 3, got %v", resp["count"])
	}

	waitFor(t, 5*time.Second, "logs to land in the store", func() bool {
		n, err := stack.store.TotalLogCount(ctx)
		return err == nil && n == 3
	})

	waitFor(t, 5*time.Second, "an insight snapshot", func() bool {
		insights, err := stack.store.RecentInsights(ctx, 1)
		return err == nil && len(insights) > 0
	})

	insights, err := stack.store.RecentInsights(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	snap := insights[0]
	if snap.ErrorCount != 2 {
		t.Errorf("ErrorCount = %d, want 2", snap.ErrorCount)
	}
	if snap.Status == "" {
		t.Error("insight has no status")
	}
}

func TestPipelineIngestIsIdempotent(t *testing.T) {
	stack := startPipeline(t)
	base := "http://" + stack.api.Addr()
	ctx := context.Background()

	doc := map[string]any{"RequestId": "req-dup", "AppName": "Uploads", "Level": "Error", "Message": "boom"}
	for range 3 {
		postJSON(t, base+"/log", doc)
	}

	waitFor(t, 5*time.Second, "the document to land", func() bool {
		n, err := stack.store.TotalLogCount(ctx)
		return err == nil && n >= 1
	})
	// Give redundant deliveries a moment to be processed too.
	time.Sleep(200 * time.Millisecond)

	n, err := stack.store.TotalLogCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 document after duplicate ingests, got %d", n)
	}
}

func TestPipelineTCPIngest(t *testing.T) {
	stack := startPipeline(t)
	ctx := context.Background()

	conn, err := net.Dial("tcp", stack.tcp.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	fmt.Fprintln(conn, `{"RequestId":"tcp-1","AppName":"EdgeProxy","Level":"Warning","Message":"slow upstream"}`)
	_ = conn.Close()

	waitFor(t, 5*time.Second, "the TCP line to land", func() bool {
		n, err := stack.store.TotalLogCount(ctx)
		return err == nil && n == 1
	})

	logs, err := stack.store.RecentLogs(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if logs[0].AppName != "EdgeProxy" {
		t.Errorf("AppName = %q", logs[0].AppName)
	}
}

func TestPipelineSearchOverIngestedData(t *testing.T) {
	stack := startPipeline(t)
	base := "http://" + stack.api.Addr()
	ctx := context.Background()

	batch := []map[string]any{
		{"RequestId": "s-1", "AppName": "Uploads", "Level": "Error", "Message": "upload failed with timeout"},
		{"RequestId": "s-2", "AppName": "Uploads", "Level": "Information", "Message": "upload done"},
	}
	postJSON(t, base+"/log", batch)

	waitFor(t, 5*time.Second, "logs and insights", func() bool {
		n, err := stack.store.TotalLogCount(ctx)
		if err != nil || n != 2 {
			return false
		}
		insights, err := stack.store.RecentInsights(ctx, 1)
		return err == nil && len(insights) > 0
	})

	report := postJSON(t, base+"/analytics/intelligent_search", map[string]any{"query": "which services show errors"})
	if report["type"] != "service_level" {
		t.Fatalf("report type = %v", report["type"])
	}
	if report["total_error_services"] != float64(1) {
		t.Errorf("total_error_services = %v", report["total_error_services"])
	}
}
