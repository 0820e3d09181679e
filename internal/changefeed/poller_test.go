package changefeed

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/loginsight/loginsight/internal/docstore"
)

type fakeSource struct {
	mu      sync.Mutex
	changes []docstore.ChangedLog
}

func (f *fakeSource) add(seq int64, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, docstore.ChangedLog{
		Seq: seq,
		Doc: map[string]any{"id": msg, "message": msg},
	})
}

func (f *fakeSource) LogsAfterSeq(_ context.Context, afterSeq int64, max int) ([]docstore.ChangedLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []docstore.ChangedLog
	for _, c := range f.changes {
		if c.Seq > afterSeq {
			out = append(out, c)
		}
		if len(out) == max {
			break
		}
	}
	return out, nil
}

func newTestLease(t *testing.T) *Lease {
	t.Helper()
	lease, err := OpenLease(filepath.Join(t.TempDir(), "feed.lease"))
	if err != nil {
		t.Fatalf("OpenLease: %v", err)
	}
	return lease
}

func TestLeaseRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.lease")

	lease, err := OpenLease(path)
	if err != nil {
		t.Fatalf("OpenLease: %v", err)
	}
	if lease.Cursor() != 0 {
		t.Errorf("fresh lease cursor = %d, want 0", lease.Cursor())
	}

	if err := lease.Commit(42); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	reopened, err := OpenLease(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Cursor() != 42 {
		t.Errorf("reopened cursor = %d, want 42", reopened.Cursor())
	}
}

func TestLeaseRejectsBackwardsCommit(t *testing.T) {
	lease := newTestLease(t)
	if err := lease.Commit(10); err != nil {
		t.Fatalf("Commit(10): %v", err)
	}
	if err := lease.Commit(5); err == nil {
		t.Error("backwards commit succeeded, want error")
	}
}

func TestPollerDeliversBatchesAndAdvancesCursor(t *testing.T) {
	src := &fakeSource{}
	src.add(1, "one")
	src.add(2, "two")
	lease := newTestLease(t)

	var mu sync.Mutex
	var got []string
	handler := func(_ context.Context, docs []map[string]any) error {
		mu.Lock()
		defer mu.Unlock()
		for _, d := range docs {
			got = append(got, d["id"].(string))
		}
		return nil
	}

	p := NewPoller(src, lease, handler, Config{Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("handler saw %d docs, want 2", n)
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Cursor commits only after the handler returns; give it a tick.
	time.Sleep(50 * time.Millisecond)
	if lease.Cursor() != 2 {
		t.Errorf("cursor = %d, want 2", lease.Cursor())
	}

	// New change after catch-up is picked up from the committed cursor.
	src.add(3, "three")
	deadline = time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("handler saw %d docs, want 3", n)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPollerRetriesFailedBatch(t *testing.T) {
	src := &fakeSource{}
	src.add(1, "one")
	lease := newTestLease(t)

	var mu sync.Mutex
	attempts := 0
	handler := func(_ context.Context, docs []map[string]any) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("transient")
		}
		return nil
	}

	p := NewPoller(src, lease, handler, Config{Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := attempts
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("handler attempts = %d, want redelivery after failure", n)
		case <-time.After(10 * time.Millisecond):
		}
	}

	time.Sleep(50 * time.Millisecond)
	if lease.Cursor() != 1 {
		t.Errorf("cursor = %d after successful retry, want 1", lease.Cursor())
	}
}
