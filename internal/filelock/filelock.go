// Package filelock provides advisory file locks with a PID+agent metadata
// sidecar for stale-lock detection, on top of github.com/gofrs/flock.
package filelock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/jitdev/jit/internal/atomicio"
	"github.com/jitdev/jit/internal/jiterr"
)

// StaleAge is the age beyond which a held lock is reported to the operator
// even though its owning process is still alive.
const StaleAge = time.Hour

// Meta is the sidecar written beside a held lock, named "<path>.meta".
type Meta struct {
	PID         int       `json:"pid"`
	AgentID     string    `json:"agent_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// Guard holds an acquired lock. Releasing it (Unlock) removes the metadata
// sidecar and releases the OS lock. There is no re-entry: a second
// Lock/TryLock call by the same process on the same path blocks or fails
// like any other contender.
type Guard struct {
	path     string
	fileLock *flock.Flock
}

func metaPath(path string) string { return path + ".meta" }

// LockExclusive blocks until the lock at path is acquired or timeout
// elapses, returning ErrLockTimeout in the latter case.
func LockExclusive(path, agentID string, timeout time.Duration) (*Guard, error) {
	return lock(path, agentID, timeout, true)
}

// LockShared is the shared-mode counterpart of LockExclusive.
func LockShared(path, agentID string, timeout time.Duration) (*Guard, error) {
	return lock(path, agentID, timeout, false)
}

func lock(path, agentID string, timeout time.Duration, exclusive bool) (*Guard, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", jiterr.ErrIO)
	}

	fl := flock.New(path)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var err error
	if exclusive {
		err = fl.LockContext(ctx, 200*time.Millisecond)
	} else {
		err = fl.RLockContext(ctx, 200*time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", path, jiterr.ErrLockTimeout)
	}

	g := &Guard{path: path, fileLock: fl}
	if exclusive {
		if err := g.writeMeta(agentID); err != nil {
			_ = fl.Unlock()
			return nil, err
		}
	}
	return g, nil
}

// TryLockExclusive attempts a non-blocking exclusive lock. Returns (nil,
// nil) if the lock is currently held by someone else.
func TryLockExclusive(path, agentID string) (*Guard, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", jiterr.ErrIO)
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", path, jiterr.ErrIO)
	}
	if !locked {
		return nil, nil
	}

	g := &Guard{path: path, fileLock: fl}
	if err := g.writeMeta(agentID); err != nil {
		_ = fl.Unlock()
		return nil, err
	}
	return g, nil
}

func (g *Guard) writeMeta(agentID string) error {
	now := time.Now().UTC()
	meta := Meta{PID: os.Getpid(), AgentID: agentID, CreatedAt: now, LastUpdated: now}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding lock metadata: %w", jiterr.ErrIO)
	}
	return atomicio.WriteFile(metaPath(g.path), data)
}

// Touch refreshes the sidecar's LastUpdated timestamp without releasing
// the lock.
func (g *Guard) Touch() error {
	data, err := os.ReadFile(metaPath(g.path)) //nolint:gosec // G304: path derived from our own lock path
	if err != nil {
		return fmt.Errorf("reading lock metadata: %w", jiterr.ErrIO)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("parsing lock metadata: %w", jiterr.ErrCorruptData)
	}
	meta.LastUpdated = time.Now().UTC()
	out, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding lock metadata: %w", jiterr.ErrIO)
	}
	return atomicio.WriteFile(metaPath(g.path), out)
}

// Unlock releases the lock and removes the metadata sidecar.
func (g *Guard) Unlock() error {
	_ = os.Remove(metaPath(g.path))
	if err := g.fileLock.Unlock(); err != nil {
		return fmt.Errorf("releasing lock %s: %w", g.path, jiterr.ErrIO)
	}
	return nil
}

// ReadMeta loads the sidecar for path, if any.
func ReadMeta(path string) (*Meta, error) {
	data, err := os.ReadFile(metaPath(path)) //nolint:gosec // G304: path is the lock path passed in by the caller
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading lock metadata: %w", jiterr.ErrIO)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing lock metadata: %w", jiterr.ErrCorruptData)
	}
	return &meta, nil
}

// IsStaleAge reports whether meta is older than StaleAge. This condition
// is logged for operator attention but is never auto-removed.
func (m *Meta) IsStaleAge(now time.Time) bool {
	return now.Sub(m.CreatedAt) > StaleAge
}

// ProcessAlive reports whether pid names a live process on this host,
// using signal 0 the same way Unix tools probe liveness without affecting
// the target process.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// SweepStale applies the stale-detection rule for the lock at path: if the
// OS lock can be acquired non-blocking, or the sidecar's pid is not alive,
// the lock and its sidecar are removed and true is returned. An age-only
// stale lock is left in place; the caller should log it for operator
// attention.
func SweepStale(path string) (removed bool, ageStale bool, err error) {
	meta, err := ReadMeta(path)
	if err != nil {
		return false, false, err
	}
	if meta == nil {
		return false, false, nil
	}

	fl := flock.New(path)
	locked, lockErr := fl.TryLock()
	if lockErr == nil && locked {
		_ = fl.Unlock()
		_ = os.Remove(metaPath(path))
		_ = os.Remove(path)
		return true, false, nil
	}

	if !ProcessAlive(meta.PID) {
		_ = os.Remove(metaPath(path))
		_ = os.Remove(path)
		return true, false, nil
	}

	return false, meta.IsStaleAge(time.Now().UTC()), nil
}
