package claims

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jitdev/jit/internal/atomicio"
	"github.com/jitdev/jit/internal/jiterr"
)

// IndexFileName is the claims index's name under the shared control
// plane.
const IndexFileName = "claims.index.json"

// HeartbeatDirName is the subdirectory holding "<lease_id>.beat" files.
const HeartbeatDirName = "heartbeat"

const indexSchemaVersion = 1

// Index is the derived, rebuildable state: the set of currently active
// leases as of generation time.
type Index struct {
	SchemaVersion      int       `json:"schema_version"`
	GeneratedAt        time.Time `json:"generated_at"`
	LastSeq            int64     `json:"last_seq"`
	StaleThresholdSecs int64     `json:"stale_threshold_secs"`
	Leases             []Lease   `json:"leases"`
}

func indexPath(controlDir string) string { return filepath.Join(controlDir, IndexFileName) }

func heartbeatPath(controlDir, leaseID string) string {
	return filepath.Join(controlDir, HeartbeatDirName, leaseID+".beat")
}

// WriteHeartbeat creates or refreshes the heartbeat file for leaseID.
func WriteHeartbeat(controlDir, leaseID string, at time.Time) error {
	return atomicio.WriteFile(heartbeatPath(controlDir, leaseID), []byte(at.UTC().Format(time.RFC3339Nano)))
}

// DeleteHeartbeat removes the heartbeat file for leaseID. Missing files
// are not an error.
func DeleteHeartbeat(controlDir, leaseID string) error {
	if err := os.Remove(heartbeatPath(controlDir, leaseID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing heartbeat for %s: %w", leaseID, jiterr.ErrIO)
	}
	return nil
}

// ReadHeartbeat returns the last heartbeat time for leaseID, or nil if no
// heartbeat file exists. Readers are lock-free and tolerate missing or
// stale files.
func ReadHeartbeat(controlDir, leaseID string) (*time.Time, error) {
	data, err := os.ReadFile(heartbeatPath(controlDir, leaseID)) //nolint:gosec // G304: leaseID is our own generated identifier
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading heartbeat for %s: %w", leaseID, jiterr.ErrIO)
	}
	t, err := time.Parse(time.RFC3339Nano, string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing heartbeat for %s: %w", leaseID, jiterr.ErrCorruptData)
	}
	return &t, nil
}

// RebuildIndexFromLog replays log entries in sequence order, dropping
// anything expired or stale as of now.
// heartbeats supplies each live lease's last-known heartbeat time (the
// caller reads the heartbeat directory once up front so this function
// stays pure and easy to test).
func RebuildIndexFromLog(entries []LogEntry, now time.Time, staleThreshold time.Duration, heartbeats map[string]time.Time) Index {
	sorted := append([]LogEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	live := make(map[string]Lease)
	for _, entry := range sorted {
		switch entry.Op {
		case OpAcquire:
			live[entry.Lease.LeaseID] = entry.Lease
		case OpRenew:
			live[entry.Lease.LeaseID] = entry.Lease
		case OpRelease, OpEvict:
			delete(live, entry.Lease.LeaseID)
		}
	}

	result := Index{
		SchemaVersion:      indexSchemaVersion,
		GeneratedAt:        now,
		LastSeq:            LastSequence(sorted),
		StaleThresholdSecs: int64(staleThreshold / time.Second),
	}

	ids := make([]string, 0, len(live))
	for id := range live {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		lease := live[id]
		if lease.ExpiresAt != nil && !lease.ExpiresAt.After(now) {
			continue
		}
		hb, ok := heartbeats[id]
		if !ok {
			hb = lease.LastBeat
		}
		if now.Sub(hb) > staleThreshold {
			continue
		}
		result.Leases = append(result.Leases, lease)
	}

	return result
}

// LoadIndex reads claims.index.json, returning (nil, nil) if it does not
// exist; callers treat that the same as "needs rebuild".
func LoadIndex(controlDir string) (*Index, error) {
	data, err := os.ReadFile(indexPath(controlDir)) //nolint:gosec // G304: path is fixed relative to the resolved control directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading claims index: %w", jiterr.ErrIO)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parsing claims index: %w", jiterr.ErrCorruptData)
	}
	return &idx, nil
}

// SaveIndex writes the index atomically.
func SaveIndex(controlDir string, idx Index) error {
	data, err := json.MarshalIndent(&idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding claims index: %w", jiterr.ErrIO)
	}
	return atomicio.WriteFile(indexPath(controlDir), data)
}

// FindLease returns the lease on issueID from idx, if any.
func (idx *Index) FindLease(issueID string) *Lease {
	for i := range idx.Leases {
		if idx.Leases[i].IssueID == issueID {
			return &idx.Leases[i]
		}
	}
	return nil
}

// FindByID returns the lease with the given lease ID from idx, if any.
func (idx *Index) FindByID(leaseID string) *Lease {
	for i := range idx.Leases {
		if idx.Leases[i].LeaseID == leaseID {
			return &idx.Leases[i]
		}
	}
	return nil
}
