package recovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jitdev/jit/internal/claims"
)

// Scenario S7: a crashed write leaves a stray .tmp file; recovery removes
// it once it is older than the orphan threshold, leaving the real file
// intact.
func TestRunRemovesOrphanTempFiles(t *testing.T) {
	root := t.TempDir()
	privateDir := filepath.Join(root, ".jit")
	controlDir := filepath.Join(root, "common", "jit")
	if err := os.MkdirAll(privateDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.MkdirAll(controlDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	orphan := filepath.Join(privateDir, "issues", "abc.json.tmp")
	if err := os.MkdirAll(filepath.Dir(orphan), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(orphan, []byte("partial"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(orphan, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	coord := claims.New(controlDir, time.Hour, nil)
	engine := New(privateDir, controlDir, coord, nil)

	summary, err := engine.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.OrphanTempFilesRemoved) != 1 {
		t.Errorf("OrphanTempFilesRemoved = %v, want 1 entry", summary.OrphanTempFilesRemoved)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Error("expected orphan .tmp file to be removed")
	}
}

func TestRunRebuildsMissingIndex(t *testing.T) {
	root := t.TempDir()
	privateDir := filepath.Join(root, ".jit")
	controlDir := filepath.Join(root, "common", "jit")

	coord := claims.New(controlDir, time.Hour, nil)
	if _, err := coord.Acquire("issue-1", 600, "agent:alpha", "wt:1", "main"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if err := os.Remove(filepath.Join(controlDir, claims.IndexFileName)); err != nil {
		t.Fatalf("removing index: %v", err)
	}

	engine := New(privateDir, controlDir, coord, nil)
	summary, err := engine.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.IndexRebuilt {
		t.Error("expected IndexRebuilt to be true when the index file is missing")
	}

	idx, err := claims.LoadIndex(controlDir)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if idx == nil || len(idx.Leases) != 1 {
		t.Errorf("expected the rebuilt index to contain one lease, got %+v", idx)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	root := t.TempDir()
	privateDir := filepath.Join(root, ".jit")
	controlDir := filepath.Join(root, "common", "jit")
	coord := claims.New(controlDir, time.Hour, nil)
	engine := New(privateDir, controlDir, coord, nil)

	if _, err := engine.Run(); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := engine.Run(); err != nil {
		t.Fatalf("second Run: %v", err)
	}
}
