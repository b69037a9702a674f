package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jitdev/jit/internal/domain"
	"github.com/jitdev/jit/internal/jiterr"
)

// MemStore is an in-memory Store implementation for tests, satisfying the
// same method set as JSONStore.
type MemStore struct {
	mu         sync.Mutex
	issues     map[string]*domain.Issue
	gates      []*domain.GateDefinition
	events     []*domain.Event
	namespaces *domain.LabelNamespaces
	gateRuns   map[string]*domain.GateRunResult
}

// NewMemStore returns an initialized, empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		issues:     make(map[string]*domain.Issue),
		namespaces: &domain.LabelNamespaces{Namespaces: map[string]domain.NamespaceConfig{}},
		gateRuns:   make(map[string]*domain.GateRunResult),
	}
}

func cloneIssue(issue *domain.Issue) *domain.Issue {
	c := *issue
	c.Dependencies = append([]string(nil), issue.Dependencies...)
	c.RequiredGates = append([]string(nil), issue.RequiredGates...)
	c.Documents = append([]string(nil), issue.Documents...)
	c.Labels = append([]string(nil), issue.Labels...)
	if issue.GateStates != nil {
		c.GateStates = make(map[string]domain.GateState, len(issue.GateStates))
		for k, v := range issue.GateStates {
			c.GateStates[k] = v
		}
	}
	if issue.Context != nil {
		c.Context = make(map[string]string, len(issue.Context))
		for k, v := range issue.Context {
			c.Context[k] = v
		}
	}
	return &c
}

func (s *MemStore) Init() error { return nil }

func (s *MemStore) SaveIssue(issue *domain.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues[issue.ID] = cloneIssue(issue)
	return nil
}

func (s *MemStore) LoadIssue(id string) (*domain.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok {
		return nil, fmt.Errorf("issue %s: %w", id, jiterr.ErrNotFound)
	}
	return cloneIssue(issue), nil
}

func (s *MemStore) DeleteIssue(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.issues, id)
	return nil
}

func (s *MemStore) ListIssues() ([]*domain.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Issue, 0, len(s.issues))
	for _, issue := range s.issues {
		out = append(out, cloneIssue(issue))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) ResolveID(prefix string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.issues[prefix]; ok {
		return prefix, nil
	}

	var matches []string
	for id := range s.issues {
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

func (s *MemStore) LoadGateRegistry() ([]*domain.GateDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.GateDefinition(nil), s.gates...), nil
}

func (s *MemStore) SaveGateRegistry(gates []*domain.GateDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gates = append([]*domain.GateDefinition(nil), gates...)
	return nil
}

func (s *MemStore) AppendEvent(event *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *event
	s.events = append(s.events, &e)
	return nil
}

func (s *MemStore) ReadEvents() ([]*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Event(nil), s.events...), nil
}

func (s *MemStore) LoadLabelNamespaces() (*domain.LabelNamespaces, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := &domain.LabelNamespaces{Namespaces: make(map[string]domain.NamespaceConfig, len(s.namespaces.Namespaces))}
	for k, v := range s.namespaces.Namespaces {
		out.Namespaces[k] = v
	}
	return out, nil
}

func (s *MemStore) SaveLabelNamespaces(ns *domain.LabelNamespaces) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.namespaces = &domain.LabelNamespaces{Namespaces: make(map[string]domain.NamespaceConfig, len(ns.Namespaces))}
	for k, v := range ns.Namespaces {
		s.namespaces.Namespaces[k] = v
	}
	return nil
}

func (s *MemStore) SaveGateRunResult(result *domain.GateRunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *result
	s.gateRuns[result.RunID] = &r
	return nil
}

func (s *MemStore) LoadGateRunResult(runID string) (*domain.GateRunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.gateRuns[runID]
	if !ok {
		return nil, fmt.Errorf("gate run %s: %w", runID, jiterr.ErrNotFound)
	}
	r := *result
	return &r, nil
}

func (s *MemStore) ListGateRunsForIssue(issueID string) ([]*domain.GateRunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.GateRunResult
	for _, result := range s.gateRuns {
		if result.IssueID == issueID {
			r := *result
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out, nil
}

var _ Store = (*MemStore)(nil)
