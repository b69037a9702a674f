package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jitdev/jit/internal/atomicio"
	"github.com/jitdev/jit/internal/domain"
	"github.com/jitdev/jit/internal/jiterr"
)

// JSONStore is the on-disk implementation rooted at a worktree's private
// directory (<worktree>/.jit). Every write goes through atomicio, and
// ResolveID only ever reads the index, never the full issue set.
type JSONStore struct {
	root string

	// mu serializes writers within one process. Cross-process safety for
	// the claims subsystem is filelock's job; the issue store itself
	// tolerates last-writer-wins at the file level.
	mu sync.Mutex
}

// NewJSONStore returns a store rooted at root (typically
// pathresolver.Paths.PrivateDir).
func NewJSONStore(root string) *JSONStore {
	return &JSONStore{root: root}
}

type issueIndex struct {
	IssueIDs []string `json:"issue_ids"`
}

func (s *JSONStore) indexPath() string        { return filepath.Join(s.root, "index.json") }
func (s *JSONStore) gatesPath() string         { return filepath.Join(s.root, "gates.json") }
func (s *JSONStore) eventsPath() string        { return filepath.Join(s.root, "events.jsonl") }
func (s *JSONStore) namespacesPath() string    { return filepath.Join(s.root, "namespaces.json") }
func (s *JSONStore) issuesDir() string         { return filepath.Join(s.root, "issues") }
func (s *JSONStore) issuePath(id string) string {
	return filepath.Join(s.issuesDir(), id+".json")
}
func (s *JSONStore) gateRunsDir() string { return filepath.Join(s.root, "gate_runs") }
func (s *JSONStore) gateRunPath(runID string) string {
	return filepath.Join(s.gateRunsDir(), runID+".json")
}

// Init creates the directory structure and an empty index if absent. Safe
// to call repeatedly.
func (s *JSONStore) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.issuesDir(), 0o755); err != nil {
		return fmt.Errorf("creating issues directory: %w", jiterr.ErrIO)
	}
	if err := os.MkdirAll(s.gateRunsDir(), 0o755); err != nil {
		return fmt.Errorf("creating gate runs directory: %w", jiterr.ErrIO)
	}

	if _, err := os.Stat(s.indexPath()); os.IsNotExist(err) {
		if err := s.writeIndexLocked(issueIndex{IssueIDs: []string{}}); err != nil {
			return err
		}
	}
	return nil
}

func (s *JSONStore) readIndexLocked() (issueIndex, error) {
	data, err := os.ReadFile(s.indexPath()) //nolint:gosec // G304: path is derived from the resolved private directory
	if err != nil {
		if os.IsNotExist(err) {
			return issueIndex{IssueIDs: []string{}}, nil
		}
		return issueIndex{}, fmt.Errorf("reading issue index: %w", jiterr.ErrIO)
	}
	var idx issueIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return issueIndex{}, fmt.Errorf("parsing issue index: %w", jiterr.ErrCorruptData)
	}
	return idx, nil
}

func (s *JSONStore) writeIndexLocked(idx issueIndex) error {
	sort.Strings(idx.IssueIDs)
	data, err := json.MarshalIndent(&idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding issue index: %w", jiterr.ErrIO)
	}
	return atomicio.WriteFile(s.indexPath(), data)
}

// SaveIssue writes the issue file and updates the enumeration index.
func (s *JSONStore) SaveIssue(issue *domain.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(issue, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding issue: %w", jiterr.ErrIO)
	}
	if err := atomicio.WriteFile(s.issuePath(issue.ID), data); err != nil {
		return err
	}

	idx, err := s.readIndexLocked()
	if err != nil {
		return err
	}
	for _, id := range idx.IssueIDs {
		if id == issue.ID {
			return nil
		}
	}
	idx.IssueIDs = append(idx.IssueIDs, issue.ID)
	return s.writeIndexLocked(idx)
}

// LoadIssue reads a single issue by its full ID.
func (s *JSONStore) LoadIssue(id string) (*domain.Issue, error) {
	data, err := os.ReadFile(s.issuePath(id)) //nolint:gosec // G304: id is resolved/validated by the caller
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("issue %s: %w", id, jiterr.ErrNotFound)
		}
		return nil, fmt.Errorf("reading issue %s: %w", id, jiterr.ErrIO)
	}
	var issue domain.Issue
	if err := json.Unmarshal(data, &issue); err != nil {
		return nil, fmt.Errorf("parsing issue %s: %w", id, jiterr.ErrCorruptData)
	}
	return &issue, nil
}

// DeleteIssue removes the issue file and its index entry.
func (s *JSONStore) DeleteIssue(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.issuePath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting issue %s: %w", id, jiterr.ErrIO)
	}

	idx, err := s.readIndexLocked()
	if err != nil {
		return err
	}
	filtered := idx.IssueIDs[:0]
	for _, existing := range idx.IssueIDs {
		if existing != id {
			filtered = append(filtered, existing)
		}
	}
	idx.IssueIDs = filtered
	return s.writeIndexLocked(idx)
}

// ListIssues loads every issue named by the index.
func (s *JSONStore) ListIssues() ([]*domain.Issue, error) {
	s.mu.Lock()
	idx, err := s.readIndexLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	issues := make([]*domain.Issue, 0, len(idx.IssueIDs))
	for _, id := range idx.IssueIDs {
		issue, err := s.LoadIssue(id)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// ResolveID accepts a full ID or an unambiguous prefix.
func (s *JSONStore) ResolveID(prefix string) (string, error) {
	s.mu.Lock()
	idx, err := s.readIndexLocked()
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	var matches []string
	for _, id := range idx.IssueIDs {
		if id == prefix {
			return id, nil
		}
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no issue matches %q: %w", prefix, jiterr.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", fmt.Errorf("%q matches %d issues (%s): %w", prefix, len(matches), strings.Join(matches, ", "), jiterr.ErrAmbiguousID)
	}
}

// LoadGateRegistry reads the gate registry, returning an empty slice if it
// does not exist yet.
func (s *JSONStore) LoadGateRegistry() ([]*domain.GateDefinition, error) {
	data, err := os.ReadFile(s.gatesPath()) //nolint:gosec // G304: path is fixed relative to the resolved private directory
	if err != nil {
		if os.IsNotExist(err) {
			return []*domain.GateDefinition{}, nil
		}
		return nil, fmt.Errorf("reading gate registry: %w", jiterr.ErrIO)
	}
	var gates []*domain.GateDefinition
	if err := json.Unmarshal(data, &gates); err != nil {
		return nil, fmt.Errorf("parsing gate registry: %w", jiterr.ErrCorruptData)
	}
	return gates, nil
}

// SaveGateRegistry overwrites the gate registry atomically.
func (s *JSONStore) SaveGateRegistry(gates []*domain.GateDefinition) error {
	data, err := json.MarshalIndent(gates, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding gate registry: %w", jiterr.ErrIO)
	}
	return atomicio.WriteFile(s.gatesPath(), data)
}

// AppendEvent appends one record to the append-only event log.
func (s *JSONStore) AppendEvent(event *domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", jiterr.ErrIO)
	}
	return atomicio.AppendLine(s.eventsPath(), data)
}

// ReadEvents returns every event in log order.
func (s *JSONStore) ReadEvents() ([]*domain.Event, error) {
	var events []*domain.Event
	err := atomicio.ReadLines(s.eventsPath(), func(line []byte) error {
		var event domain.Event
		if err := json.Unmarshal(line, &event); err != nil {
			return fmt.Errorf("parsing event log: %w", jiterr.ErrCorruptData)
		}
		events = append(events, &event)
		return nil
	})
	return events, err
}

// LoadLabelNamespaces reads the namespace registry, returning an empty one
// if it does not exist yet.
func (s *JSONStore) LoadLabelNamespaces() (*domain.LabelNamespaces, error) {
	data, err := os.ReadFile(s.namespacesPath()) //nolint:gosec // G304: path is fixed relative to the resolved private directory
	if err != nil {
		if os.IsNotExist(err) {
			return &domain.LabelNamespaces{Namespaces: map[string]domain.NamespaceConfig{}}, nil
		}
		return nil, fmt.Errorf("reading label namespaces: %w", jiterr.ErrIO)
	}
	var ns domain.LabelNamespaces
	if err := json.Unmarshal(data, &ns); err != nil {
		return nil, fmt.Errorf("parsing label namespaces: %w", jiterr.ErrCorruptData)
	}
	return &ns, nil
}

// SaveLabelNamespaces overwrites the namespace registry atomically.
func (s *JSONStore) SaveLabelNamespaces(ns *domain.LabelNamespaces) error {
	data, err := json.MarshalIndent(ns, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding label namespaces: %w", jiterr.ErrIO)
	}
	return atomicio.WriteFile(s.namespacesPath(), data)
}

// SaveGateRunResult persists one checker invocation record.
func (s *JSONStore) SaveGateRunResult(result *domain.GateRunResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding gate run result: %w", jiterr.ErrIO)
	}
	return atomicio.WriteFile(s.gateRunPath(result.RunID), data)
}

// LoadGateRunResult reads one gate run record by its run ID.
func (s *JSONStore) LoadGateRunResult(runID string) (*domain.GateRunResult, error) {
	data, err := os.ReadFile(s.gateRunPath(runID)) //nolint:gosec // G304: runID is caller-controlled, not external input
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("gate run %s: %w", runID, jiterr.ErrNotFound)
		}
		return nil, fmt.Errorf("reading gate run %s: %w", runID, jiterr.ErrIO)
	}
	var result domain.GateRunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing gate run %s: %w", runID, jiterr.ErrCorruptData)
	}
	return &result, nil
}

// ListGateRunsForIssue scans the gate runs directory for records matching
// issueID. The store is expected to hold thousands of issues at most, so a
// directory scan is adequate (mirrors the ID-prefix resolution's scan
// approach).
func (s *JSONStore) ListGateRunsForIssue(issueID string) ([]*domain.GateRunResult, error) {
	entries, err := os.ReadDir(s.gateRunsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing gate runs: %w", jiterr.ErrIO)
	}

	var results []*domain.GateRunResult
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		runID := strings.TrimSuffix(entry.Name(), ".json")
		result, err := s.LoadGateRunResult(runID)
		if err != nil {
			return nil, err
		}
		if result.IssueID == issueID {
			results = append(results, result)
		}
	}
	return results, nil
}

var _ Store = (*JSONStore)(nil)
