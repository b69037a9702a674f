// Package recovery is the idempotent sweep run by `jit recover`: stale
// lock removal, orphan .tmp removal, and claims index rebuild when
// needed. Constructing a coordinator or an Engine does not run it; the
// coordinator on its own only rebuilds a missing or out-of-date claims
// index when it takes the claims lock.
package recovery

import (
	"log"
	"path/filepath"

	"github.com/jitdev/jit/internal/atomicio"
	"github.com/jitdev/jit/internal/claims"
	"github.com/jitdev/jit/internal/filelock"
)

// Summary reports what one recovery pass found and fixed.
type Summary struct {
	OrphanTempFilesRemoved []string
	StaleLocksRemoved      []string
	AgeStaleLocks          []string
	IndexRebuilt           bool
}

// Engine runs the recovery sweep against one worktree's private directory
// and the shared control plane directory.
type Engine struct {
	privateDir string
	controlDir string
	coord      *claims.Coordinator
	logger     *log.Logger
}

// New returns an Engine. A nil logger defaults to log.Default().
func New(privateDir, controlDir string, coord *claims.Coordinator, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{privateDir: privateDir, controlDir: controlDir, coord: coord, logger: logger}
}

// Run executes the four-step sweep. It is safe to call on every
// coordinator initialization.
func (e *Engine) Run() (Summary, error) {
	var summary Summary

	for _, dir := range []string{e.privateDir, e.controlDir} {
		removed, err := atomicio.SweepOrphans(dir)
		if err != nil {
			return summary, err
		}
		summary.OrphanTempFilesRemoved = append(summary.OrphanTempFilesRemoved, removed...)
	}

	claimsLock := filepath.Join(e.controlDir, "locks", "claims.lock")
	removed, ageStale, err := filelock.SweepStale(claimsLock)
	if err != nil {
		return summary, err
	}
	if removed {
		summary.StaleLocksRemoved = append(summary.StaleLocksRemoved, claimsLock)
	} else if ageStale {
		summary.AgeStaleLocks = append(summary.AgeStaleLocks, claimsLock)
		e.logger.Printf("recovery: lock %s is older than the stale-age threshold but its owner is still alive; left in place", claimsLock)
	}

	entries, err := claims.ReadLog(e.controlDir)
	if err != nil {
		return summary, err
	}
	idx, err := claims.LoadIndex(e.controlDir)
	if err != nil {
		return summary, err
	}
	if idx == nil || idx.LastSeq != claims.LastSequence(entries) {
		if err := e.coord.Rebuild(); err != nil {
			return summary, err
		}
		summary.IndexRebuilt = true
	}

	e.logger.Printf(
		"recovery: removed %d orphan temp file(s), removed %d stale lock(s), %d lock(s) flagged age-stale, index rebuilt=%v",
		len(summary.OrphanTempFilesRemoved), len(summary.StaleLocksRemoved), len(summary.AgeStaleLocks), summary.IndexRebuilt,
	)

	return summary, nil
}
