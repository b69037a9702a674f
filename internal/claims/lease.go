// Package claims implements the claim coordinator: the lease protocol
// (acquire/renew/release/force-evict), the append-only claims log, and
// the rebuildable claims index.
package claims

import "time"

// DefaultStaleThreshold is the heartbeat staleness window used when New
// is given a non-positive threshold.
const DefaultStaleThreshold = 3600 * time.Second

// Lease is the record asserting one agent's right to mutate an issue for
// a bounded time.
type Lease struct {
	LeaseID    string     `json:"lease_id"`
	IssueID    string     `json:"issue_id"`
	AgentID    string     `json:"agent_id"`
	WorktreeID string     `json:"worktree_id"`
	Branch     string     `json:"branch,omitempty"`
	TTLSecs    int64      `json:"ttl_secs"`
	AcquiredAt time.Time  `json:"acquired_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastBeat   time.Time  `json:"last_beat"`
}

// Status is the effective state of a lease at a point in time, computed
// from the log/index plus the heartbeat directory, never stored directly.
type Status string

const (
	StatusActive   Status = "active"
	StatusExpired  Status = "expired"
	StatusStale    Status = "stale"
	StatusReleased Status = "released"
	StatusEvicted  Status = "evicted"
)

// EffectiveStatus resolves expired, stale, and active precedence: expired
// takes priority over stale, both take priority over active.
// Released/evicted are decided by log replay before this is ever called
// on a surviving lease.
func (l *Lease) EffectiveStatus(now time.Time, heartbeatAt *time.Time, staleThreshold time.Duration) Status {
	if l.ExpiresAt != nil && !l.ExpiresAt.After(now) {
		return StatusExpired
	}
	if heartbeatAt == nil {
		return StatusStale
	}
	if now.Sub(*heartbeatAt) > staleThreshold {
		return StatusStale
	}
	return StatusActive
}

// LeaseStatus pairs a lease from the index with its resolved status, for
// callers (the validator's lease-reference check) that need to enumerate
// every lease rather than look one up by issue or lease ID.
type LeaseStatus struct {
	Lease  Lease
	Status Status
}
