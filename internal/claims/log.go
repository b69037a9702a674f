package claims

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jitdev/jit/internal/atomicio"
	"github.com/jitdev/jit/internal/jiterr"
)

// Op is the tag of one claims.jsonl entry.
type Op string

const (
	OpAcquire Op = "acquire"
	OpRenew   Op = "renew"
	OpRelease Op = "release"
	OpEvict   Op = "evict"
)

// LogEntry is one line of claims.jsonl. Sequence is strictly monotonic
// starting at 1 with no gaps; every renew/release/evict references a
// lease_id that appeared in a prior acquire.
type LogEntry struct {
	Sequence  int64     `json:"sequence"`
	Op        Op        `json:"op"`
	Lease     Lease     `json:"lease"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// LogFileName is the claims log's name under the shared control plane.
const LogFileName = "claims.jsonl"

func logPath(controlDir string) string { return filepath.Join(controlDir, LogFileName) }

// AppendLog appends one entry to claims.jsonl. Callers must hold the
// claims lock; this function does not take it.
func AppendLog(controlDir string, entry LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding claims log entry: %w", jiterr.ErrIO)
	}
	return atomicio.AppendLine(logPath(controlDir), data)
}

// ReadLog reads every entry in claims.jsonl in file order (which is
// sequence order, since entries are only ever appended under the claims
// lock).
func ReadLog(controlDir string) ([]LogEntry, error) {
	var entries []LogEntry
	err := atomicio.ReadLines(logPath(controlDir), func(line []byte) error {
		var entry LogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("parsing claims log: %w", jiterr.ErrCorruptData)
		}
		entries = append(entries, entry)
		return nil
	})
	return entries, err
}

// LastSequence returns the highest sequence number in entries, or 0 if
// entries is empty.
func LastSequence(entries []LogEntry) int64 {
	var max int64
	for _, e := range entries {
		if e.Sequence > max {
			max = e.Sequence
		}
	}
	return max
}
