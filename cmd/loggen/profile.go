package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// workloadProfile describes the synthetic traffic shape. All fields have
// defaults resembling a small file-upload service, so an empty profile
// still produces a usable stream.
type workloadProfile struct {
	Target       string        `yaml:"target"`
	Duration     time.Duration `yaml:"duration"`
	Interval     time.Duration `yaml:"interval"`
	MinBatch     int           `yaml:"min-batch"`
	MaxBatch     int           `yaml:"max-batch"`
	SuccessRatio float64       `yaml:"success-ratio"`
	AppName      string        `yaml:"app-name"`
	Users        []string      `yaml:"users"`
	Files        []string      `yaml:"files"`
	Errors       []errorShape  `yaml:"errors"`
}

type errorShape struct {
	Code    int    `yaml:"code"`
	Message string `yaml:"message"`
}

func defaultProfile() workloadProfile {
	return workloadProfile{
		Target:       "http://127.0.0.1:8000/log",
		Duration:     100 * time.Second,
		Interval:     time.Second,
		MinBatch:     3,
		MaxBatch:     6,
		SuccessRatio: 0.8,
		AppName:      "FileUploadService",
		Users:        []string{"alice", "bob", "charlie", "dave", "eve"},
		Files:        []string{"report.pdf", "data.csv", "image.png", "backup.zip", "notes.txt"},
		Errors: []errorShape{
			{Code: 500, Message: "Internal Server Error"},
			{Code: 503, Message: "Service Unavailable"},
			{Code: 408, Message: "Request Timeout"},
			{Code: 400, Message: "Bad Request"},
		},
	}
}

func loadProfile(path string) (workloadProfile, error) {
	p := defaultProfile()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("reading profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parsing profile: %w", err)
	}
	return p, p.validate()
}

func (p workloadProfile) validate() error {
	if p.MinBatch <= 0 || p.MaxBatch < p.MinBatch {
		return fmt.Errorf("invalid batch bounds: min=%d max=%d", p.MinBatch, p.MaxBatch)
	}
	if p.SuccessRatio < 0 || p.SuccessRatio > 1 {
		return fmt.Errorf("success-ratio must be within [0,1], got %v", p.SuccessRatio)
	}
	if len(p.Users) == 0 || len(p.Files) == 0 || len(p.Errors) == 0 {
		return fmt.Errorf("users, files and errors must each be non-empty")
	}
	return nil
}

// generateEntry builds one fake upload-service log document.
func (p workloadProfile) generateEntry(rng *rand.Rand, now time.Time) map[string]any {
	user := p.Users[rng.Intn(len(p.Users))]
	file := p.Files[rng.Intn(len(p.Files))]
	size := 50_000 + rng.Intn(4_950_001)
	reqID := fmt.Sprintf("req_%08x", rng.Uint32())

	entry := map[string]any{
		"TimeGenerated": now.UTC().Format(time.RFC3339Nano),
		"UserId":        user,
		"RequestId":     reqID,
		"AppName":       p.AppName,
		"FileName":      file,
		"FileSizeBytes": size,
	}

	if rng.Float64() < p.SuccessRatio {
		entry["Level"] = "Information"
		entry["StatusCode"] = 200
		entry["StatusDetail"] = "OK"
		entry["Message"] = fmt.Sprintf("User %s uploaded %s (%d bytes) successfully.", user, file, size)
	} else {
		failure := p.Errors[rng.Intn(len(p.Errors))]
		entry["Level"] = "Error"
		entry["StatusCode"] = failure.Code
		entry["StatusDetail"] = failure.Message
		entry["Message"] = fmt.Sprintf("User %s failed to upload %s: %s.", user, file, failure.Message)
	}
	return entry
}

func (p workloadProfile) generateBatch(rng *rand.Rand, now time.Time) []map[string]any {
	n := p.MinBatch + rng.Intn(p.MaxBatch-p.MinBatch+1)
	batch := make([]map[string]any, 0, n)
	for range n {
		batch = append(batch, p.generateEntry(rng, now))
	}
	return batch
}
