// Package facade is the only business-logic layer the CLI (or any other
// caller) is meant to invoke. Every operation resolves ID prefixes,
// validates structural edits against the dependency graph, enforces
// lease policy before mutating, applies the mutation atomically through
// the store, and appends an event describing what happened.
package facade

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jitdev/jit/internal/claims"
	"github.com/jitdev/jit/internal/depgraph"
	"github.com/jitdev/jit/internal/domain"
	"github.com/jitdev/jit/internal/gateexec"
	"github.com/jitdev/jit/internal/jitconfig"
	"github.com/jitdev/jit/internal/jiterr"
	"github.com/jitdev/jit/internal/store"
)

// Facade wires the store, the claim coordinator, and configuration behind
// every business operation this tool exposes.
type Facade struct {
	st      store.Store
	coord   *claims.Coordinator
	cfg     *jitconfig.Config
	checker gateexec.Checker
}

// New returns a Facade. coord may be nil, which behaves as EnforceOff
// regardless of cfg (there is nothing to check a lease against). The
// checker defaults to &gateexec.ManualChecker{}; override with SetChecker
// once a process-spawning implementation exists.
func New(st store.Store, coord *claims.Coordinator, cfg *jitconfig.Config) *Facade {
	if cfg == nil {
		cfg = jitconfig.Default()
	}
	return &Facade{st: st, coord: coord, cfg: cfg, checker: &gateexec.ManualChecker{}}
}

// SetChecker overrides the gateexec.Checker RunGate invokes for Auto gates.
func (f *Facade) SetChecker(checker gateexec.Checker) {
	f.checker = checker
}

// requireActiveLease checks the enforcement mode and the issue's active
// lease before any structural mutation.
func (f *Facade) requireActiveLease(issueID, agentID string) error {
	mode := f.cfg.Worktree.EnforceLeases
	if mode == "" {
		mode = jitconfig.EnforceOff
	}
	if mode == jitconfig.EnforceOff || f.coord == nil {
		return nil
	}

	active, err := f.coord.HasActiveLease(issueID, agentID)
	if err != nil {
		return err
	}
	if active {
		return nil
	}

	switch mode {
	case jitconfig.EnforceWarn:
		return nil
	case jitconfig.EnforceStrict:
		return fmt.Errorf("issue %s has no active lease held by %s: %w", issueID, agentID, jiterr.ErrPermissionDenied)
	default:
		return nil
	}
}

func (f *Facade) resolve(idOrPrefix string) (string, error) {
	return f.st.ResolveID(idOrPrefix)
}

func (f *Facade) loadIssue(idOrPrefix string) (*domain.Issue, error) {
	id, err := f.resolve(idOrPrefix)
	if err != nil {
		return nil, err
	}
	return f.st.LoadIssue(id)
}

func (f *Facade) appendEvent(kind domain.EventKind, issueID string, payload map[string]string) error {
	return f.st.AppendEvent(&domain.Event{
		EventID:   uuid.NewString(),
		Kind:      kind,
		IssueID:   issueID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

// allIssuesByID snapshots the whole store, keyed by ID, for graph
// operations and the Backlog->Ready cascade.
func (f *Facade) allIssuesByID() (map[string]*domain.Issue, error) {
	issues, err := f.st.ListIssues()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Issue, len(issues))
	for _, issue := range issues {
		byID[issue.ID] = issue
	}
	return byID, nil
}

// CreateIssueParams is the set of fields a caller may supply when creating
// an issue; ID, State, CreatedAt, and UpdatedAt are assigned here.
type CreateIssueParams struct {
	Title         string
	Description   string
	Priority      domain.Priority
	Dependencies  []string
	RequiredGates []string
	Labels        []string
	Context       map[string]string
}

// CreateIssue creates a new issue in Backlog, validating that every
// declared dependency already exists.
func (f *Facade) CreateIssue(params CreateIssueParams) (*domain.Issue, error) {
	byID, err := f.allIssuesByID()
	if err != nil {
		return nil, err
	}
	for _, dep := range params.Dependencies {
		if _, ok := byID[dep]; !ok {
			return nil, fmt.Errorf("dependency %s: %w", dep, jiterr.ErrNotFound)
		}
	}

	now := time.Now().UTC()
	issue := &domain.Issue{
		ID:            strings.ReplaceAll(uuid.New().String(), "-", ""),
		Title:         params.Title,
		Description:   params.Description,
		State:         domain.StateBacklog,
		Priority:      params.Priority,
		Dependencies:  params.Dependencies,
		RequiredGates: params.RequiredGates,
		Labels:        params.Labels,
		Context:       params.Context,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := f.st.SaveIssue(issue); err != nil {
		return nil, err
	}
	if err := f.appendEvent(domain.EventIssueCreated, issue.ID, nil); err != nil {
		return nil, err
	}
	return issue, nil
}

// UpdateIssueParams carries the mutable fields update_issue may change.
// A nil pointer field means "leave unchanged".
type UpdateIssueParams struct {
	Title       *string
	Description *string
	State       *domain.State
	Priority    *domain.Priority
	Assignee    *string
}

// UpdateIssue applies a partial update, enforcing lease policy when State
// changes (a structural edit), and runs the Backlog->Ready cascade for
// every direct dependent when the edited issue transitions to Done.
func (f *Facade) UpdateIssue(idOrPrefix, agentID string, params UpdateIssueParams) (*domain.Issue, error) {
	issue, err := f.loadIssue(idOrPrefix)
	if err != nil {
		return nil, err
	}

	stateChanging := params.State != nil && *params.State != issue.State
	if stateChanging {
		if err := f.requireActiveLease(issue.ID, agentID); err != nil {
			return nil, err
		}
	}

	if params.Title != nil {
		issue.Title = *params.Title
	}
	if params.Description != nil {
		issue.Description = *params.Description
	}
	if params.Priority != nil {
		issue.Priority = *params.Priority
	}
	if params.Assignee != nil {
		issue.Assignee = *params.Assignee
	}
	if stateChanging {
		issue.State = *params.State
	}
	issue.UpdatedAt = time.Now().UTC()

	if err := f.st.SaveIssue(issue); err != nil {
		return nil, err
	}
	if err := f.appendEvent(domain.EventIssueStateChanged, issue.ID, nil); err != nil {
		return nil, err
	}

	if stateChanging && issue.State == domain.StateDone {
		if err := f.cascadeReady(issue.ID); err != nil {
			return nil, err
		}
	}
	return issue, nil
}

// cascadeReady handles the Backlog-to-Ready cascade: when id transitions
// to Done, every direct dependent whose dependencies are now all Done
// moves from Backlog to Ready.
func (f *Facade) cascadeReady(id string) error {
	byID, err := f.allIssuesByID()
	if err != nil {
		return err
	}
	graph := depgraph.Build(valuesOf(byID))

	for _, dependentID := range graph.GetDependents(id) {
		dependent := byID[dependentID]
		if dependent.State != domain.StateBacklog {
			continue
		}
		allDone := true
		for _, dep := range dependent.Dependencies {
			d, ok := byID[dep]
			if !ok || d.State != domain.StateDone {
				allDone = false
				break
			}
		}
		if !allDone {
			continue
		}
		dependent.State = domain.StateReady
		dependent.UpdatedAt = time.Now().UTC()
		if err := f.st.SaveIssue(dependent); err != nil {
			return err
		}
		if err := f.appendEvent(domain.EventIssueStateChanged, dependent.ID, map[string]string{"reason": "dependency_completed"}); err != nil {
			return err
		}
	}
	return nil
}

func valuesOf(byID map[string]*domain.Issue) []*domain.Issue {
	out := make([]*domain.Issue, 0, len(byID))
	for _, issue := range byID {
		out = append(out, issue)
	}
	return out
}

// AddDependency validates and records from depending on to.
func (f *Facade) AddDependency(fromPrefix, toPrefix, agentID string) error {
	from, err := f.resolve(fromPrefix)
	if err != nil {
		return err
	}
	to, err := f.resolve(toPrefix)
	if err != nil {
		return err
	}

	byID, err := f.allIssuesByID()
	if err != nil {
		return err
	}
	graph := depgraph.Build(valuesOf(byID))
	if err := graph.ValidateAddDependency(from, to); err != nil {
		return err
	}

	if err := f.requireActiveLease(from, agentID); err != nil {
		return err
	}

	issue := byID[from]
	issue.Dependencies = append(issue.Dependencies, to)
	issue.UpdatedAt = time.Now().UTC()
	if err := f.st.SaveIssue(issue); err != nil {
		return err
	}
	return f.appendEvent(domain.EventDependencyAdded, from, map[string]string{"depends_on": to})
}

// RemoveDependency removes the from->to dependency edge if present.
func (f *Facade) RemoveDependency(fromPrefix, toPrefix, agentID string) error {
	from, err := f.resolve(fromPrefix)
	if err != nil {
		return err
	}
	to, err := f.resolve(toPrefix)
	if err != nil {
		return err
	}

	issue, err := f.st.LoadIssue(from)
	if err != nil {
		return err
	}

	if err := f.requireActiveLease(from, agentID); err != nil {
		return err
	}

	kept := issue.Dependencies[:0]
	found := false
	for _, dep := range issue.Dependencies {
		if dep == to {
			found = true
			continue
		}
		kept = append(kept, dep)
	}
	if !found {
		return fmt.Errorf("%s does not depend on %s: %w", from, to, jiterr.ErrNotFound)
	}
	issue.Dependencies = kept
	issue.UpdatedAt = time.Now().UTC()
	if err := f.st.SaveIssue(issue); err != nil {
		return err
	}
	return f.appendEvent(domain.EventDependencyRemoved, from, map[string]string{"depends_on": to})
}

// DefineGate registers or replaces a gate definition in the registry.
func (f *Facade) DefineGate(gate *domain.GateDefinition) error {
	if err := gate.Validate(); err != nil {
		return err
	}
	gates, err := f.st.LoadGateRegistry()
	if err != nil {
		return err
	}
	replaced := false
	for i, g := range gates {
		if g.Key == gate.Key {
			gates[i] = gate
			replaced = true
			break
		}
	}
	if !replaced {
		gates = append(gates, gate)
	}
	return f.st.SaveGateRegistry(gates)
}

// PassGate records a gate as passed on issue, clearing GatedIncomplete
// when it was the last one required, and transitions the issue out of
// Gated if it was waiting solely on gates.
func (f *Facade) PassGate(idOrPrefix, gateKey, agentID string) (*domain.Issue, error) {
	return f.setGateStatus(idOrPrefix, gateKey, agentID, domain.GateStatusPassed)
}

// FailGate records a gate as failed on issue.
func (f *Facade) FailGate(idOrPrefix, gateKey, agentID string) (*domain.Issue, error) {
	return f.setGateStatus(idOrPrefix, gateKey, agentID, domain.GateStatusFailed)
}

// RunGate executes an Auto gate's checker against issue, persists the
// resulting GateRunResult, and records the issue's gate status from the
// outcome. Manual gates are rejected; callers use PassGate/FailGate for
// those.
func (f *Facade) RunGate(idOrPrefix, gateKey, agentID string) (*domain.Issue, *domain.GateRunResult, error) {
	issue, err := f.loadIssue(idOrPrefix)
	if err != nil {
		return nil, nil, err
	}

	found := false
	for _, key := range issue.RequiredGates {
		if key == gateKey {
			found = true
			break
		}
	}
	if !found {
		return nil, nil, fmt.Errorf("issue %s does not require gate %s: %w", issue.ID, gateKey, jiterr.ErrInvalidArgument)
	}

	gates, err := f.st.LoadGateRegistry()
	if err != nil {
		return nil, nil, err
	}
	var gate *domain.GateDefinition
	for _, g := range gates {
		if g.Key == gateKey {
			gate = g
			break
		}
	}
	if gate == nil {
		return nil, nil, fmt.Errorf("gate %s: %w", gateKey, jiterr.ErrNotFound)
	}
	if gate.Mode != domain.GateModeAuto {
		return nil, nil, fmt.Errorf("gate %s is not an auto gate, use PassGate/FailGate: %w", gateKey, jiterr.ErrInvalidArgument)
	}

	result, err := f.checker.Run(gate, issue.ID)
	if err != nil {
		return nil, nil, err
	}
	if result.RunID == "" {
		result.RunID = uuid.NewString()
	}
	if err := f.st.SaveGateRunResult(result); err != nil {
		return nil, nil, err
	}

	status := domain.GateStatusPassed
	if result.Status != domain.GateRunSucceeded {
		status = domain.GateStatusFailed
	}
	updated, err := f.setGateStatus(issue.ID, gateKey, agentID, status)
	return updated, result, err
}

func (f *Facade) setGateStatus(idOrPrefix, gateKey, agentID string, status domain.GateStatus) (*domain.Issue, error) {
	issue, err := f.loadIssue(idOrPrefix)
	if err != nil {
		return nil, err
	}

	found := false
	for _, key := range issue.RequiredGates {
		if key == gateKey {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("issue %s does not require gate %s: %w", issue.ID, gateKey, jiterr.ErrInvalidArgument)
	}

	if err := f.requireActiveLease(issue.ID, agentID); err != nil {
		return nil, err
	}

	if issue.GateStates == nil {
		issue.GateStates = make(map[string]domain.GateState)
	}
	now := time.Now().UTC()
	issue.GateStates[gateKey] = domain.GateState{Status: status, UpdatedBy: agentID, UpdatedAt: now}
	issue.UpdatedAt = now

	kind := domain.EventGatePassed
	if status == domain.GateStatusFailed {
		kind = domain.EventGateFailed
	} else if !issue.GatedIncomplete() && issue.State == domain.StateGated {
		issue.State = domain.StateInProgress
	}

	if err := f.st.SaveIssue(issue); err != nil {
		return nil, err
	}
	if err := f.appendEvent(kind, issue.ID, map[string]string{"gate": gateKey}); err != nil {
		return nil, err
	}
	return issue, nil
}

// ChildSpec describes one child issue to create as part of a breakdown.
type ChildSpec struct {
	Title         string
	Description   string
	Priority      domain.Priority
	RequiredGates []string
}

// BreakdownIssue splits parentID into several smaller issues: each child
// is created fresh, inherits the parent's dependencies (so nothing the
// parent was blocked on stops blocking the children), and is linked back
// to the parent via a part_of:<parent-id> label, a membership relation,
// not a dependency edge, so children are not automatically blocking
// unless the caller separately adds a dependency. Requires an active
// lease on the parent under enforcement mode, since it structurally
// changes the parent's role in the graph.
func (f *Facade) BreakdownIssue(parentIDOrPrefix, agentID string, children []ChildSpec) ([]*domain.Issue, error) {
	parent, err := f.loadIssue(parentIDOrPrefix)
	if err != nil {
		return nil, err
	}
	if err := f.requireActiveLease(parent.ID, agentID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	membership := "part_of:" + parent.ID

	created := make([]*domain.Issue, 0, len(children))
	for _, spec := range children {
		child := &domain.Issue{
			ID:            strings.ReplaceAll(uuid.New().String(), "-", ""),
			Title:         spec.Title,
			Description:   spec.Description,
			State:         domain.StateBacklog,
			Priority:      spec.Priority,
			Dependencies:  append([]string(nil), parent.Dependencies...),
			RequiredGates: spec.RequiredGates,
			Labels:        []string{membership},
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := f.st.SaveIssue(child); err != nil {
			return nil, err
		}
		if err := f.appendEvent(domain.EventIssueCreated, child.ID, map[string]string{"part_of": parent.ID}); err != nil {
			return nil, err
		}
		created = append(created, child)
	}

	// The domain has no distinct "blocked" state; a parent with open
	// part_of children is already reported by QueryBlocked once its own
	// dependencies say so, so breakdown only needs to touch the parent's
	// bookkeeping, not force a state transition that doesn't exist here.
	parent.UpdatedAt = now
	if err := f.st.SaveIssue(parent); err != nil {
		return nil, err
	}
	if err := f.appendEvent(domain.EventIssueBrokenDown, parent.ID, map[string]string{"child_count": fmt.Sprint(len(created))}); err != nil {
		return nil, err
	}

	return created, nil
}

// QueryReady returns every issue in Ready state.
func (f *Facade) QueryReady() ([]*domain.Issue, error) {
	issues, err := f.st.ListIssues()
	if err != nil {
		return nil, err
	}
	var out []*domain.Issue
	for _, issue := range issues {
		if issue.State == domain.StateReady {
			out = append(out, issue)
		}
	}
	return out, nil
}

// QueryBlocked returns every issue the dependency graph and gate state
// together consider blocked.
func (f *Facade) QueryBlocked() ([]*domain.Issue, error) {
	byID, err := f.allIssuesByID()
	if err != nil {
		return nil, err
	}
	graph := depgraph.Build(valuesOf(byID))

	var out []*domain.Issue
	for _, id := range sortedKeys(byID) {
		issue := byID[id]
		if issue.State.Closed() {
			continue
		}
		if graph.Blocked(id) {
			out = append(out, issue)
		}
	}
	return out, nil
}

// QueryByLabel returns every issue carrying the exact label.
func (f *Facade) QueryByLabel(label string) ([]*domain.Issue, error) {
	issues, err := f.st.ListIssues()
	if err != nil {
		return nil, err
	}
	var out []*domain.Issue
	for _, issue := range issues {
		if issue.HasLabel(label) {
			out = append(out, issue)
		}
	}
	return out, nil
}

func sortedKeys(byID map[string]*domain.Issue) []string {
	keys := make([]string, 0, len(byID))
	for k := range byID {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
