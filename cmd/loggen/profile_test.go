package main

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultProfileValid(t *testing.T) {
	p := defaultProfile()
	if err := p.validate(); err != nil {
		t.Fatalf("default profile invalid: %v", err)
	}
}

func TestLoadProfileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yml")
	content := "target: http://localhost:9999/log\nmin-batch: 2\nmax-batch: 4\nsuccess-ratio: 0.5\napp-name: CheckoutService\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := loadProfile(path)
	if err != nil {
		t.Fatalf("loadProfile: %v", err)
	}
	if p.Target != "http://localhost:9999/log" {
		t.Errorf("target = %q", p.Target)
	}
	if p.MinBatch != 2 || p.MaxBatch != 4 {
		t.Errorf("batch bounds = %d..%d", p.MinBatch, p.MaxBatch)
	}
	if p.AppName != "CheckoutService" {
		t.Errorf("app-name = %q", p.AppName)
	}
	// Untouched fields keep their defaults.
	if len(p.Users) != 5 {
		t.Errorf("expected default users, got %v", p.Users)
	}
}

func TestLoadProfileRejectsBadBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yml")
	if err := os.WriteFile(path, []byte("min-batch: 5\nmax-batch: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadProfile(path); err == nil {
		t.Fatal("expected error for max-batch < min-batch")
	}
}

func TestGenerateEntryShape(t *testing.T) {
	p := defaultProfile()
	rng := rand.New(rand.NewSource(1))
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	entry := p.generateEntry(rng, now)

	for _, key := range []string{"TimeGenerated", "Level", "Message", "UserId", "RequestId", "AppName", "FileName", "FileSizeBytes", "StatusCode", "StatusDetail"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("missing field %q", key)
		}
	}
	if entry["AppName"] != "FileUploadService" {
		t.Errorf("AppName = %v", entry["AppName"])
	}

	switch entry["Level"] {
	case "Information":
		if entry["StatusCode"] != 200 {
			t.Errorf("success entry has StatusCode %v", entry["StatusCode"])
		}
	case "Error":
		if entry["StatusCode"] == 200 {
			t.Error("error entry has StatusCode 200")
		}
	default:
		t.Errorf("unexpected level %v", entry["Level"])
	}
}

func TestGenerateBatchWithinBounds(t *testing.T) {
	p := defaultProfile()
	rng := rand.New(rand.NewSource(7))

	for range 50 {
		batch := p.generateBatch(rng, time.Now())
		if len(batch) < p.MinBatch || len(batch) > p.MaxBatch {
			t.Fatalf("batch size %d outside %d..%d", len(batch), p.MinBatch, p.MaxBatch)
		}
	}
}

func TestFailureRatioRespected(t *testing.T) {
	p := defaultProfile()
	p.SuccessRatio = 0
	rng := rand.New(rand.NewSource(3))

	entry := p.generateEntry(rng, time.Now())
	if entry["Level"] != "Error" {
		t.Errorf("with success-ratio 0 expected Error, got %v", entry["Level"])
	}

	p.SuccessRatio = 1
	entry = p.generateEntry(rng, time.Now())
	if entry["Level"] != "Information" {
		t.Errorf("with success-ratio 1 expected Information, got %v", entry["Level"])
	}
}
