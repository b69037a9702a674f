// Package identity manages the per-worktree identity file: a stable ID
// that survives the worktree directory being moved, created on first use
// and preserved (with root_path updated) on relocation.
package identity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jitdev/jit/internal/atomicio"
	"github.com/jitdev/jit/internal/jiterr"
)

// FileName is the identity file's name within the per-worktree private
// directory.
const FileName = "worktree.json"

const schemaVersion = 1

// Identity is the persisted worktree identity record.
type Identity struct {
	SchemaVersion int        `json:"schema_version"`
	WorktreeID    string     `json:"worktree_id"`
	Branch        string     `json:"branch,omitempty"`
	RootPath      string     `json:"root_path"`
	CreatedAt     time.Time  `json:"created_at"`
	RelocatedAt   *time.Time `json:"relocated_at,omitempty"`
}

// LoadOrCreate reads privateDir/worktree.json and reconciles it against
// the current root path and branch. On first use it creates a new
// identity. On relocation (root_path no longer matches currentRoot) it
// preserves the ID and records RelocatedAt. If the stored root_path
// points at a directory that no longer exists at all, the file is treated
// as copied from elsewhere and a fresh identity is generated instead of
// being preserved as a relocation.
func LoadOrCreate(privateDir, currentRoot, branch string) (*Identity, error) {
	path := filepath.Join(privateDir, FileName)

	existing, err := load(path)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if existing == nil {
		id := &Identity{
			SchemaVersion: schemaVersion,
			WorktreeID:    newWorktreeID(currentRoot, now),
			Branch:        branch,
			RootPath:      currentRoot,
			CreatedAt:     now,
		}
		if err := save(path, id); err != nil {
			return nil, err
		}
		return id, nil
	}

	if existing.RootPath == currentRoot {
		if existing.Branch != branch {
			existing.Branch = branch
			if err := save(path, existing); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}

	if _, statErr := os.Stat(existing.RootPath); os.IsNotExist(statErr) {
		// The recorded root is gone; this file was either copied from
		// another worktree or the recorded path is stale beyond repair.
		// Treat it as absent and regenerate.
		id := &Identity{
			SchemaVersion: schemaVersion,
			WorktreeID:    newWorktreeID(currentRoot, now),
			Branch:        branch,
			RootPath:      currentRoot,
			CreatedAt:     now,
		}
		if err := save(path, id); err != nil {
			return nil, err
		}
		return id, nil
	}

	existing.RootPath = currentRoot
	existing.Branch = branch
	existing.RelocatedAt = &now
	if err := save(path, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func load(path string) (*Identity, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is under the resolved per-worktree private directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading worktree identity: %w", jiterr.ErrIO)
	}
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("parsing worktree identity: %w", jiterr.ErrCorruptData)
	}
	return &id, nil
}

func save(path string, id *Identity) error {
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding worktree identity: %w", jiterr.ErrIO)
	}
	return atomicio.WriteFile(path, data)
}

// newWorktreeID derives "wt:" + 8 hex digits from (rootPath, createdAt)
// without depending on any particular hash algorithm being stable across
// versions of this package. The value is computed once and persisted,
// never recomputed for comparison.
func newWorktreeID(rootPath string, createdAt time.Time) string {
	h := sha256.New()
	h.Write([]byte(rootPath))
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(createdAt.UnixNano()))
	h.Write(tsBuf[:])
	sum := h.Sum(nil)
	return fmt.Sprintf("wt:%x", sum[:4])
}
