package changefeed

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// leaseState is the persisted cursor document.
type leaseState struct {
	Cursor    int64     `json:"cursor"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lease is a durable change-feed cursor. The cursor records the highest
// change marker whose batch the handler has fully processed; commits are
// written atomically so a crash never leaves a torn cursor file.
type Lease struct {
	path   string
	cursor int64
}

// OpenLease loads the cursor from path, starting at zero when the file is
// missing or unreadable. A zero cursor replays the whole feed, which is
// safe because downstream handling is at-least-once.
func OpenLease(path string) (*Lease, error) {
	if path == "" {
		return nil, fmt.Errorf("changefeed: lease path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("changefeed: create lease dir: %w", err)
	}

	l := &Lease{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("changefeed: unreadable lease %s, restarting from zero: %v", path, err)
		}
		return l, nil
	}

	var st leaseState
	if err := json.Unmarshal(data, &st); err != nil || st.Cursor < 0 {
		log.Printf("changefeed: malformed lease %s, restarting from zero", path)
		return l, nil
	}
	l.cursor = st.Cursor
	return l, nil
}

// Cursor returns the last committed change marker.
func (l *Lease) Cursor() int64 {
	return l.cursor
}

// Commit durably advances the cursor. The new state is written to a temp
// file, synced, then renamed over the lease file.
func (l *Lease) Commit(cursor int64) error {
	if cursor < l.cursor {
		return fmt.Errorf("changefeed: cursor moving backwards (%d < %d)", cursor, l.cursor)
	}

	data, err := json.Marshal(leaseState{Cursor: cursor, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("changefeed: marshal lease: %w", err)
	}

	tmp := l.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("changefeed: create lease tmp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("changefeed: write lease: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("changefeed: sync lease: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("changefeed: close lease: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("changefeed: commit lease: %w", err)
	}

	l.cursor = cursor
	return nil
}
