// Package history persists a small per-strategy record of past searches.
package history

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MaxPerCategory caps how many entries each strategy keeps; the oldest
// entry is evicted when an eleventh arrives.
const MaxPerCategory = 10

// Known strategy categories.
const (
	CategoryServiceLevel = "service_level"
	CategorySystemHealth = "system_health"
	CategorySemantic     = "semantic"
)

// Entry is one recorded search.
type Entry struct {
	Query       string    `json:"query"`
	Strategy    string    `json:"strategy"`
	Timestamp   time.Time `json:"timestamp"`
	ResultCount int       `json:"result_count"`
}

// Store is a file-backed search history, grouped by strategy. All state is
// held in memory; every append rewrites the backing file wholesale through
// an atomic temp-file rename.
type Store struct {
	path string

	mu      sync.Mutex
	entries map[string][]Entry
}

// Open loads history from path. A missing file starts empty; a malformed
// file is discarded rather than blocking searches. A legacy file holding a
// bare entry list is migrated into the semantic category.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("history: create dir: %w", err)
	}

	s := &Store{path: path, entries: map[string][]Entry{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("history: unreadable %s, starting empty: %v", path, err)
		}
		return s, nil
	}

	var byCategory map[string][]Entry
	if err := json.Unmarshal(data, &byCategory); err == nil {
		for category, entries := range byCategory {
			s.entries[category] = capTail(entries)
		}
		return s, nil
	}

	// Legacy format: a bare list of entries, all from the semantic path.
	var flat []Entry
	if err := json.Unmarshal(data, &flat); err == nil {
		for i := range flat {
			if flat[i].Strategy == "" {
				flat[i].Strategy = CategorySemantic
			}
		}
		s.entries[CategorySemantic] = capTail(flat)
		return s, nil
	}

	log.Printf("history: malformed %s, starting empty", path)
	return s, nil
}

// Append records one search under its category and persists the file.
// Eviction is per-category: filling one category never displaces another.
func (s *Store) Append(category string, e Entry) error {
	if category == "" {
		category = CategorySemantic
	}
	if e.Strategy == "" {
		e.Strategy = category
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[category] = capTail(append(s.entries[category], e))
	return s.persist()
}

// Category returns a copy of the entries recorded under category,
// oldest first.
func (s *Store) Category(category string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries[category]))
	copy(out, s.entries[category])
	return out
}

// All returns a copy of the full history grouped by category.
func (s *Store) All() map[string][]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]Entry, len(s.entries))
	for category, entries := range s.entries {
		cp := make([]Entry, len(entries))
		copy(cp, entries)
		out[category] = cp
	}
	return out
}

// capTail keeps the newest MaxPerCategory entries.
func capTail(entries []Entry) []Entry {
	if len(entries) <= MaxPerCategory {
		return entries
	}
	return append([]Entry(nil), entries[len(entries)-MaxPerCategory:]...)
}

// persist writes the whole history file atomically. Caller holds s.mu.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("history: create tmp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("history: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("history: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("history: close: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("history: rename: %w", err)
	}
	return nil
}
