package atomicio

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteFileNeverLeavesPartialData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if err := WriteFile(path, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("got %q", data)
	}

	if _, err := os.Stat(path + TmpSuffix); !os.IsNotExist(err) {
		t.Errorf("expected no leftover .tmp file, stat err = %v", err)
	}
}

func TestWriteFileOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if err := WriteFile(path, []byte("first")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := WriteFile(path, []byte("second")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("got %q, want %q", data, "second")
	}
}

func TestAppendLineAndReadLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.jsonl")

	lines := []string{`{"seq":1}`, `{"seq":2}`, `{"seq":3}`}
	for _, l := range lines {
		if err := AppendLine(path, []byte(l)); err != nil {
			t.Fatalf("AppendLine: %v", err)
		}
	}

	var got []string
	err := ReadLines(path, func(line []byte) error {
		got = append(got, string(line))
		return nil
	})
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if len(got) != len(lines) {
		t.Fatalf("got %d lines, want %d", len(got), len(lines))
	}
	for i, l := range lines {
		if got[i] != l {
			t.Errorf("line %d = %q, want %q", i, got[i], l)
		}
	}
}

func TestReadLinesMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	var got []string
	err := ReadLines(filepath.Join(dir, "missing.jsonl"), func(line []byte) error {
		got = append(got, string(line))
		return nil
	})
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d lines, want 0", len(got))
	}
}

func TestSweepOrphansRemovesOldTmpOnly(t *testing.T) {
	dir := t.TempDir()

	oldTmp := filepath.Join(dir, "old.json.tmp")
	freshTmp := filepath.Join(dir, "fresh.json.tmp")
	realFile := filepath.Join(dir, "keep.json")

	for _, p := range []string{oldTmp, freshTmp, realFile} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("seed %s: %v", p, err)
		}
	}

	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldTmp, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	removed, err := sweepOrphans(dir, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sweepOrphans: %v", err)
	}
	if len(removed) != 1 || removed[0] != oldTmp {
		t.Errorf("removed = %v, want [%s]", removed, oldTmp)
	}

	if _, err := os.Stat(freshTmp); err != nil {
		t.Errorf("fresh tmp should survive: %v", err)
	}
	if _, err := os.Stat(realFile); err != nil {
		t.Errorf("real file should survive: %v", err)
	}
}
