// Package store implements the issue store: content-addressed
// persistence for issues, the gate registry, the event log, label
// namespaces, and gate-run results. Two implementations satisfy the same
// Store interface: JSON-on-disk (production) and in-memory (tests).
package store

import (
	"github.com/jitdev/jit/internal/domain"
)

// Store is the backend-agnostic persistence contract every backend
// implements.
type Store interface {
	// Init is idempotent: it creates whatever on-disk structure the
	// backend needs and is safe to call on every startup.
	Init() error

	SaveIssue(issue *domain.Issue) error
	LoadIssue(id string) (*domain.Issue, error)
	DeleteIssue(id string) error
	ListIssues() ([]*domain.Issue, error)

	LoadGateRegistry() ([]*domain.GateDefinition, error)
	SaveGateRegistry(gates []*domain.GateDefinition) error

	AppendEvent(event *domain.Event) error
	ReadEvents() ([]*domain.Event, error)

	LoadLabelNamespaces() (*domain.LabelNamespaces, error)
	SaveLabelNamespaces(ns *domain.LabelNamespaces) error

	SaveGateRunResult(result *domain.GateRunResult) error
	LoadGateRunResult(runID string) (*domain.GateRunResult, error)
	ListGateRunsForIssue(issueID string) ([]*domain.GateRunResult, error)

	// ResolveID accepts a full ID or an unambiguous prefix. Returns
	// jiterr.ErrAmbiguousID on multiple matches, jiterr.ErrNotFound on
	// zero matches.
	ResolveID(prefix string) (string, error)
}
