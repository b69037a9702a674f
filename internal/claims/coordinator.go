package claims

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/jitdev/jit/internal/filelock"
	"github.com/jitdev/jit/internal/jiterr"
	"github.com/jitdev/jit/internal/leaseid"
)

// LockTimeout is the claims.lock acquisition budget.
const LockTimeout = 5 * time.Second

// Coordinator is the claim coordinator, rooted at a shared control plane
// directory (pathresolver.Paths.ControlDir).
type Coordinator struct {
	controlDir     string
	staleThreshold time.Duration
	logger         *log.Logger
}

// New returns a Coordinator. A nil logger defaults to log.Default().
func New(controlDir string, staleThreshold time.Duration, logger *log.Logger) *Coordinator {
	if staleThreshold <= 0 {
		staleThreshold = DefaultStaleThreshold
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{controlDir: controlDir, staleThreshold: staleThreshold, logger: logger}
}

func (c *Coordinator) lockPath() string {
	return filepath.Join(c.controlDir, "locks", "claims.lock")
}

// AlreadyClaimedError carries the structured payload a caller needs to
// report a conflicting lease: issue_id, agent_id, and its expires_at.
type AlreadyClaimedError struct {
	IssueID   string
	AgentID   string
	ExpiresAt *time.Time
}

func (e *AlreadyClaimedError) Error() string {
	if e.ExpiresAt != nil {
		return fmt.Sprintf("issue %s already claimed by %s (expires %s)", e.IssueID, e.AgentID, e.ExpiresAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("issue %s already claimed by %s (indefinite)", e.IssueID, e.AgentID)
}

func (e *AlreadyClaimedError) Unwrap() error { return jiterr.ErrAlreadyClaimed }

// withLock acquires claims.lock for the duration of fn, loading (and
// rebuilding if necessary) the index before calling fn and saving whatever
// fn returns, unless fn returns a nil index meaning "no change".
func (c *Coordinator) withLock(agentID string, fn func(entries []LogEntry, idx *Index) (*Index, error)) error {
	guard, err := filelock.LockExclusive(c.lockPath(), agentID, LockTimeout)
	if err != nil {
		return err
	}
	defer func() {
		if unlockErr := guard.Unlock(); unlockErr != nil {
			c.logger.Printf("claims: releasing lock: %v", unlockErr)
		}
	}()

	entries, err := ReadLog(c.controlDir)
	if err != nil {
		return err
	}

	idx, err := c.loadOrRebuildLocked(entries)
	if err != nil {
		return err
	}

	newIdx, err := fn(entries, idx)
	if err != nil {
		return err
	}
	if newIdx == nil {
		return nil
	}
	return SaveIndex(c.controlDir, *newIdx)
}

func (c *Coordinator) loadOrRebuildLocked(entries []LogEntry) (*Index, error) {
	idx, err := LoadIndex(c.controlDir)
	if err != nil {
		return nil, err
	}
	lastLogSeq := LastSequence(entries)
	if idx != nil && idx.LastSeq == lastLogSeq {
		return idx, nil
	}

	c.logger.Printf("claims: rebuilding index (stored last_seq=%v, log last_seq=%d)", seqOf(idx), lastLogSeq)
	rebuilt, err := c.rebuildLocked(entries)
	if err != nil {
		return nil, err
	}
	if err := SaveIndex(c.controlDir, rebuilt); err != nil {
		return nil, err
	}
	return &rebuilt, nil
}

func seqOf(idx *Index) any {
	if idx == nil {
		return "none"
	}
	return idx.LastSeq
}

func (c *Coordinator) rebuildLocked(entries []LogEntry) (Index, error) {
	heartbeats := make(map[string]time.Time)
	for _, e := range entries {
		if e.Op != OpAcquire && e.Op != OpRenew {
			continue
		}
		hb, err := ReadHeartbeat(c.controlDir, e.Lease.LeaseID)
		if err != nil {
			return Index{}, err
		}
		if hb != nil {
			heartbeats[e.Lease.LeaseID] = *hb
		}
	}
	return RebuildIndexFromLog(entries, time.Now().UTC(), c.staleThreshold, heartbeats), nil
}

// Rebuild forces an index rebuild from the log, for use by the recovery
// engine and the validator.
func (c *Coordinator) Rebuild() error {
	return c.withLock("", func(entries []LogEntry, _ *Index) (*Index, error) {
		rebuilt, err := c.rebuildLocked(entries)
		if err != nil {
			return nil, err
		}
		return &rebuilt, nil
	})
}

// Acquire grants an exclusive lease on issueID to agentID, rejecting the
// request if another agent already holds an active lease on it.
func (c *Coordinator) Acquire(issueID string, ttlSecs int64, agentID, worktreeID, branch string) (*Lease, error) {
	var acquired *Lease

	err := c.withLock(agentID, func(entries []LogEntry, idx *Index) (*Index, error) {
		now := time.Now().UTC()

		if existing := idx.FindLease(issueID); existing != nil {
			hb, err := ReadHeartbeat(c.controlDir, existing.LeaseID)
			if err != nil {
				return nil, err
			}
			status := existing.EffectiveStatus(now, hb, c.staleThreshold)
			if status == StatusActive {
				return nil, &AlreadyClaimedError{IssueID: issueID, AgentID: existing.AgentID, ExpiresAt: existing.ExpiresAt}
			}
		}

		lease := Lease{
			LeaseID:    leaseid.New(now),
			IssueID:    issueID,
			AgentID:    agentID,
			WorktreeID: worktreeID,
			Branch:     branch,
			TTLSecs:    ttlSecs,
			AcquiredAt: now,
			LastBeat:   now,
		}
		if ttlSecs > 0 {
			expires := now.Add(time.Duration(ttlSecs) * time.Second)
			lease.ExpiresAt = &expires
		}

		entry := LogEntry{
			Sequence:  LastSequence(entries) + 1,
			Op:        OpAcquire,
			Lease:     lease,
			Timestamp: now,
		}
		if err := AppendLog(c.controlDir, entry); err != nil {
			return nil, err
		}

		rebuilt, err := c.rebuildLocked(append(entries, entry))
		if err != nil {
			return nil, err
		}
		if err := WriteHeartbeat(c.controlDir, lease.LeaseID, now); err != nil {
			return nil, err
		}

		acquired = &lease
		return &rebuilt, nil
	})
	if err != nil {
		return nil, err
	}
	return acquired, nil
}

// Renew heartbeats or extends a held lease. When newTTLSecs is nil, only
// the heartbeat is touched (no log entry, no index rebuild). When
// non-nil, a renew entry is appended and the index is rebuilt.
func (c *Coordinator) Renew(leaseID, agentID string, newTTLSecs *int64) error {
	if newTTLSecs == nil {
		return WriteHeartbeat(c.controlDir, leaseID, time.Now().UTC())
	}

	return c.withLock(agentID, func(entries []LogEntry, idx *Index) (*Index, error) {
		existing := idx.FindByID(leaseID)
		if existing == nil {
			return nil, fmt.Errorf("lease %s: %w", leaseID, jiterr.ErrNotFound)
		}
		if existing.AgentID != agentID {
			return nil, fmt.Errorf("lease %s is owned by %s, not %s: %w", leaseID, existing.AgentID, agentID, jiterr.ErrLeaseMismatch)
		}

		now := time.Now().UTC()
		renewed := *existing
		renewed.TTLSecs = *newTTLSecs
		renewed.LastBeat = now
		if *newTTLSecs > 0 {
			expires := now.Add(time.Duration(*newTTLSecs) * time.Second)
			renewed.ExpiresAt = &expires
		} else {
			renewed.ExpiresAt = nil
		}

		entry := LogEntry{Sequence: LastSequence(entries) + 1, Op: OpRenew, Lease: renewed, Timestamp: now}
		if err := AppendLog(c.controlDir, entry); err != nil {
			return nil, err
		}
		if err := WriteHeartbeat(c.controlDir, leaseID, now); err != nil {
			return nil, err
		}

		rebuilt, err := c.rebuildLocked(append(entries, entry))
		if err != nil {
			return nil, err
		}
		return &rebuilt, nil
	})
}

// Release gives up a held lease. Only the owning agent may release unless
// force is set.
func (c *Coordinator) Release(leaseID, agentID string, force bool) error {
	return c.withLock(agentID, func(entries []LogEntry, idx *Index) (*Index, error) {
		existing := idx.FindByID(leaseID)
		if existing == nil {
			return nil, fmt.Errorf("lease %s: %w", leaseID, jiterr.ErrNotFound)
		}
		if !force && existing.AgentID != agentID {
			return nil, fmt.Errorf("lease %s is owned by %s, not %s: %w", leaseID, existing.AgentID, agentID, jiterr.ErrLeaseMismatch)
		}

		now := time.Now().UTC()
		entry := LogEntry{Sequence: LastSequence(entries) + 1, Op: OpRelease, Lease: *existing, Timestamp: now}
		if err := AppendLog(c.controlDir, entry); err != nil {
			return nil, err
		}
		if err := DeleteHeartbeat(c.controlDir, leaseID); err != nil {
			return nil, err
		}

		rebuilt, err := c.rebuildLocked(append(entries, entry))
		if err != nil {
			return nil, err
		}
		return &rebuilt, nil
	})
}

// Evict forcibly revokes a lease regardless of its owner, requiring a
// non-empty operator-supplied reason.
func (c *Coordinator) Evict(leaseID, reason string) error {
	if reason == "" {
		return fmt.Errorf("evict requires a non-empty reason: %w", jiterr.ErrInvalidArgument)
	}

	return c.withLock("", func(entries []LogEntry, idx *Index) (*Index, error) {
		existing := idx.FindByID(leaseID)
		if existing == nil {
			return nil, fmt.Errorf("lease %s: %w", leaseID, jiterr.ErrNotFound)
		}

		now := time.Now().UTC()
		entry := LogEntry{Sequence: LastSequence(entries) + 1, Op: OpEvict, Lease: *existing, Reason: reason, Timestamp: now}
		if err := AppendLog(c.controlDir, entry); err != nil {
			return nil, err
		}
		if err := DeleteHeartbeat(c.controlDir, leaseID); err != nil {
			return nil, err
		}

		rebuilt, err := c.rebuildLocked(append(entries, entry))
		if err != nil {
			return nil, err
		}
		return &rebuilt, nil
	})
}

// HasActiveLease reports whether issueID has an active lease held by
// agentID, for enforcement-mode checks. If agentID is empty (single-user
// mode), any active lease on the issue suffices.
func (c *Coordinator) HasActiveLease(issueID, agentID string) (bool, error) {
	idx, err := c.currentIndex()
	if err != nil {
		return false, err
	}
	lease := idx.FindLease(issueID)
	if lease == nil {
		return false, nil
	}
	hb, err := ReadHeartbeat(c.controlDir, lease.LeaseID)
	if err != nil {
		return false, err
	}
	status := lease.EffectiveStatus(time.Now().UTC(), hb, c.staleThreshold)
	if status != StatusActive {
		return false, nil
	}
	if agentID == "" {
		return true, nil
	}
	return lease.AgentID == agentID, nil
}

// ActiveLeases enumerates every lease presently in the index together with
// its resolved status, for the validator's lease-reference check: the
// coordinator otherwise only exposes per-issue or per-lease-ID lookups.
func (c *Coordinator) ActiveLeases() ([]LeaseStatus, error) {
	idx, err := c.currentIndex()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := make([]LeaseStatus, 0, len(idx.Leases))
	for _, lease := range idx.Leases {
		hb, err := ReadHeartbeat(c.controlDir, lease.LeaseID)
		if err != nil {
			return nil, err
		}
		out = append(out, LeaseStatus{Lease: lease, Status: lease.EffectiveStatus(now, hb, c.staleThreshold)})
	}
	return out, nil
}

// currentIndex loads the index without taking the claims lock. Callers
// that only read tolerate a marginally stale view.
func (c *Coordinator) currentIndex() (*Index, error) {
	entries, err := ReadLog(c.controlDir)
	if err != nil {
		return nil, err
	}
	idx, err := LoadIndex(c.controlDir)
	if err != nil {
		return nil, err
	}
	if idx != nil && idx.LastSeq == LastSequence(entries) {
		return idx, nil
	}
	rebuilt, err := c.rebuildLocked(entries)
	if err != nil {
		return nil, err
	}
	return &rebuilt, nil
}

// Status reports the fully resolved status of one lease, for use by
// "claim status" style facade operations.
func (c *Coordinator) Status(leaseID string) (*Lease, Status, error) {
	idx, err := c.currentIndex()
	if err != nil {
		return nil, "", err
	}
	lease := idx.FindByID(leaseID)
	if lease == nil {
		return nil, "", fmt.Errorf("lease %s: %w", leaseID, jiterr.ErrNotFound)
	}
	hb, err := ReadHeartbeat(c.controlDir, lease.LeaseID)
	if err != nil {
		return nil, "", err
	}
	return lease, lease.EffectiveStatus(time.Now().UTC(), hb, c.staleThreshold), nil
}
