package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/montanaflynn/stats"
)

// loggen streams synthetic file-upload logs at a configurable rate, for
// exercising the ingestion pipeline end to end. At exit it prints request
// latency percentiles for the run.
func main() {
	var profilePath, target string
	var duration time.Duration

	flag.StringVar(&profilePath, "profile", "", "workload profile YAML (defaults to a built-in upload-service shape)")
	flag.StringVar(&target, "target", "", "ingest endpoint, overrides the profile target")
	flag.DurationVar(&duration, "duration", 0, "stream duration, overrides the profile duration")
	flag.Parse()

	profile, err := loadProfile(profilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading profile: %v\n", err)
		os.Exit(1)
	}
	if target != "" {
		profile.Target = target
	}
	if duration > 0 {
		profile.Duration = duration
	}

	if err := stream(profile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func stream(profile workloadProfile) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	client := &http.Client{Timeout: 5 * time.Second}

	log.Printf("loggen: streaming to %s for %s", profile.Target, profile.Duration)

	deadline := time.Now().Add(profile.Duration)
	totalSent := 0
	var latencies []float64

	for time.Now().Before(deadline) {
		batch := profile.generateBatch(rng, time.Now())

		elapsed, err := postBatch(client, profile.Target, batch)
		if err != nil {
			log.Printf("loggen: send failed: %v", err)
		} else {
			totalSent += len(batch)
			latencies = append(latencies, float64(elapsed.Milliseconds()))
		}

		time.Sleep(profile.Interval)
	}

	log.Printf("loggen: finished, %d logs sent", totalSent)
	printLatencySummary(latencies)
	return nil
}

func postBatch(client *http.Client, target string, batch []map[string]any) (time.Duration, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	resp, err := client.Post(target, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, detail)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return time.Since(start), nil
}

func printLatencySummary(latencies []float64) {
	if len(latencies) == 0 {
		return
	}
	p50, _ := stats.Percentile(latencies, 50)
	p95, _ := stats.Percentile(latencies, 95)
	p99, _ := stats.Percentile(latencies, 99)
	mean, _ := stats.Mean(latencies)
	log.Printf("loggen: latency ms mean=%.1f p50=%.1f p95=%.1f p99=%.1f over %d requests",
		mean, p50, p95, p99, len(latencies))
}
