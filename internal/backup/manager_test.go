package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeSnapshotter struct {
	dbPath string
	calls  int
}

func (f *fakeSnapshotter) DBPath() string { return f.dbPath }

func (f *fakeSnapshotter) SnapshotTo(dstPath string) error {
	f.calls++
	return os.WriteFile(dstPath, []byte("snapshot"), 0644)
}

func TestNewManagerDisabled(t *testing.T) {
	m, err := NewManager(&fakeSnapshotter{dbPath: "/tmp/x.duckdb"}, Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewManager disabled: %v", err)
	}
	if m != nil {
		t.Error("disabled config returned a manager, want nil")
	}
}

func TestNewManagerRejectsInMemoryStore(t *testing.T) {
	_, err := NewManager(&fakeSnapshotter{dbPath: ""}, Config{
		Enabled:  true,
		LocalDir: t.TempDir(),
	})
	if err == nil {
		t.Error("in-memory store accepted, want error")
	}
}

func TestRunOnceCreatesSnapshot(t *testing.T) {
	dir := t.TempDir()
	snap := &fakeSnapshotter{dbPath: "/tmp/x.duckdb"}
	m, err := NewManager(snap, Config{
		Enabled:  true,
		Interval: time.Hour,
		LocalDir: dir,
		KeepLast: 3,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Stop()

	// NewManager performs a startup snapshot.
	matches, err := filepath.Glob(filepath.Join(dir, "loginsight-*.duckdb"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("found %d snapshots after startup, want 1", len(matches))
	}
	if snap.calls != 1 {
		t.Errorf("snapshotter called %d times, want 1", snap.calls)
	}
}

func TestPruneLocalBackupsKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"loginsight-20260101-000000.duckdb",
		"loginsight-20260102-000000.duckdb",
		"loginsight-20260103-000000.duckdb",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0644); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}

	if err := pruneLocalBackups(dir, 2); err != nil {
		t.Fatalf("pruneLocalBackups: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "loginsight-*.duckdb"))
	if len(matches) != 2 {
		t.Fatalf("kept %d backups, want 2", len(matches))
	}
	for _, m := range matches {
		if filepath.Base(m) == names[0] {
			t.Error("oldest backup survived pruning")
		}
	}
}
