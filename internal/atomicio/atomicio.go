// Package atomicio implements the write-temp-then-rename discipline every
// durable state file in the repository uses, plus the orphan .tmp cleanup
// sweep the recovery engine runs on startup.
package atomicio

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jitdev/jit/internal/jiterr"
)

// TmpSuffix marks a file as an in-progress write. A crash between the
// write and the rename leaves one of these behind.
const TmpSuffix = ".tmp"

// OrphanThreshold is how old a .tmp file must be before the recovery
// sweep considers it abandoned rather than in flight.
const OrphanThreshold = time.Hour

// WriteFile writes data to path by first writing to "<path>.tmp" in the
// same directory, then renaming it into place. Because rename is atomic on
// the same filesystem, readers never observe a partially written file.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, jiterr.ErrIO)
	}

	tmp := path + TmpSuffix
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644) //nolint:gosec // G304: path is caller-controlled repo-internal state
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, jiterr.ErrIO)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", tmp, jiterr.ErrIO)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("syncing %s: %w", tmp, jiterr.ErrIO)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", tmp, jiterr.ErrIO)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming %s to %s: %w", tmp, path, jiterr.ErrIO)
	}
	return nil
}

// AppendLine opens path for append, creating it if necessary, and writes
// line followed by a newline in a single write(2) call. This is used for
// the claims log and event log, where each record must land as one
// complete line even under concurrent appenders; it is not the
// write-temp-then-rename pattern because the file itself is append-only
// and never rewritten wholesale.
func AppendLine(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, jiterr.ErrIO)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec // G304: path is caller-controlled repo-internal state
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, jiterr.ErrIO)
	}
	defer f.Close()

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("appending to %s: %w", path, jiterr.ErrIO)
	}
	return f.Sync()
}

// ReadLines reads path as a sequence of newline-delimited records, calling
// fn with each non-empty line. A missing file is treated as empty.
func ReadLines(path string, fn func(line []byte) error) error {
	f, err := os.Open(path) //nolint:gosec // G304: path is caller-controlled repo-internal state
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening %s: %w", path, jiterr.ErrIO)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := fn([]byte(line)); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, jiterr.ErrIO)
	}
	return nil
}

// SweepOrphans removes *.tmp files under root whose mtime is older than
// OrphanThreshold, implementing the cleanup the recovery engine calls at
// startup. Returns the paths removed.
func SweepOrphans(root string) ([]string, error) {
	return sweepOrphans(root, OrphanThreshold, time.Now())
}

func sweepOrphans(root string, threshold time.Duration, now time.Time) ([]string, error) {
	var removed []string

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, TmpSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if now.Sub(info.ModTime()) > threshold {
			if err := os.Remove(path); err == nil {
				removed = append(removed, path)
			}
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("sweeping orphan temp files under %s: %w", root, jiterr.ErrIO)
	}
	return removed, nil
}
