// Package validator runs DAG, reference, lease, and divergence checks
// with optional auto-fix, invoked explicitly by users or a hooks
// collaborator.
package validator

import (
	"fmt"
	"time"

	"github.com/jitdev/jit/internal/claims"
	"github.com/jitdev/jit/internal/depgraph"
	"github.com/jitdev/jit/internal/domain"
	"github.com/jitdev/jit/internal/jitconfig"
	"github.com/jitdev/jit/internal/store"
)

// CheckName identifies one of the checks a Validator runs.
type CheckName string

const (
	CheckReferences         CheckName = "references"
	CheckDAG                CheckName = "dag"
	CheckTransitiveReduction CheckName = "transitive_reduction"
	CheckOrphanIssues        CheckName = "orphan_issues"
	CheckLabelMembership     CheckName = "label_membership"
	CheckPendingTransitions  CheckName = "pending_transitions"
	CheckLeases              CheckName = "leases"
	CheckDivergence          CheckName = "divergence"
)

// CheckResult is one independently reportable outcome.
type CheckResult struct {
	Check          CheckName
	Valid          bool
	Message        string
	FixesAvailable bool
}

// Report aggregates every check run by one Validate call.
type Report struct {
	Results []CheckResult
}

// Valid reports whether every check passed.
func (r *Report) Valid() bool {
	for _, res := range r.Results {
		if !res.Valid {
			return false
		}
	}
	return true
}

// Validator runs every check against one store.
type Validator struct {
	st     store.Store
	cfg    *jitconfig.Config
	coord  *claims.Coordinator
	worktreeID string
}

// New returns a Validator. coord may be nil to skip the lease check (e.g.
// in single-worktree tests that never touch claims).
func New(st store.Store, cfg *jitconfig.Config, coord *claims.Coordinator, worktreeID string) *Validator {
	if cfg == nil {
		cfg = jitconfig.Default()
	}
	return &Validator{st: st, cfg: cfg, coord: coord, worktreeID: worktreeID}
}

// Options controls auto-fix behavior.
type Options struct {
	// Fix applies safe fixes. Dry is ignored when Fix is false.
	Fix bool
	// Dry previews fixes without mutating anything.
	Dry bool
}

// Validate runs every check and, per opts, applies or previews fixes.
func (v *Validator) Validate(opts Options) (*Report, error) {
	issues, err := v.st.ListIssues()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Issue, len(issues))
	for _, issue := range issues {
		byID[issue.ID] = issue
	}

	gates, err := v.st.LoadGateRegistry()
	if err != nil {
		return nil, err
	}
	gateKeys := make(map[string]bool, len(gates))
	for _, g := range gates {
		gateKeys[g.Key] = true
	}

	report := &Report{}
	report.Results = append(report.Results, v.checkReferences(issues, byID, gateKeys))

	graph := depgraph.Build(issues)
	report.Results = append(report.Results, v.checkDAG(graph))
	reductionResult, err := v.checkTransitiveReduction(graph, byID, opts)
	if err != nil {
		return nil, err
	}
	report.Results = append(report.Results, reductionResult)
	report.Results = append(report.Results, v.checkOrphanIssues(graph, issues))

	ns, err := v.st.LoadLabelNamespaces()
	if err != nil {
		return nil, err
	}
	report.Results = append(report.Results, v.checkLabelMembership(issues, byID, ns))
	report.Results = append(report.Results, v.checkPendingTransitions(issues, byID, opts))

	if v.coord != nil {
		res, err := v.checkLeases(byID)
		if err != nil {
			return nil, err
		}
		report.Results = append(report.Results, res)
	}

	report.Results = append(report.Results, CheckResult{
		Check:   CheckDivergence,
		Valid:   true,
		Message: "divergence check not applicable outside a git-aware invocation",
	})

	return report, nil
}

func (v *Validator) checkReferences(issues []*domain.Issue, byID map[string]*domain.Issue, gateKeys map[string]bool) CheckResult {
	var problems []string
	for _, issue := range issues {
		for _, dep := range issue.Dependencies {
			if _, ok := byID[dep]; !ok {
				problems = append(problems, fmt.Sprintf("%s depends on missing issue %s", issue.ID, dep))
			}
		}
		for _, key := range issue.RequiredGates {
			if !gateKeys[key] {
				problems = append(problems, fmt.Sprintf("%s requires missing gate %s", issue.ID, key))
			}
		}
	}
	if len(problems) > 0 {
		return CheckResult{Check: CheckReferences, Valid: false, Message: joinLines(problems)}
	}
	return CheckResult{Check: CheckReferences, Valid: true, Message: "all references resolve"}
}

func (v *Validator) checkDAG(graph *depgraph.Graph) CheckResult {
	if err := graph.ValidateDAG(); err != nil {
		return CheckResult{Check: CheckDAG, Valid: false, Message: err.Error()}
	}
	return CheckResult{Check: CheckDAG, Valid: true, Message: "no cycles"}
}

// checkTransitiveReduction reports redundant dependency edges (a->c where a
// path a->b->...->c of length >= 2 also exists) and, under Fix && !Dry,
// strips each redundant edge from its issue's Dependencies and saves it.
func (v *Validator) checkTransitiveReduction(graph *depgraph.Graph, byID map[string]*domain.Issue, opts Options) (CheckResult, error) {
	redundant := graph.ShortestTransitivePaths()
	if len(redundant) == 0 {
		return CheckResult{Check: CheckTransitiveReduction, Valid: true, Message: "no redundant edges"}, nil
	}

	var edges []string
	for _, e := range redundant {
		edges = append(edges, fmt.Sprintf("%s -> %s", e.From, e.To))
	}

	if opts.Fix && !opts.Dry {
		removals := make(map[string]map[string]bool, len(redundant))
		for _, e := range redundant {
			if removals[e.From] == nil {
				removals[e.From] = make(map[string]bool)
			}
			removals[e.From][e.To] = true
		}
		for from, targets := range removals {
			issue, ok := byID[from]
			if !ok {
				continue
			}
			kept := issue.Dependencies[:0:0]
			for _, dep := range issue.Dependencies {
				if !targets[dep] {
					kept = append(kept, dep)
				}
			}
			issue.Dependencies = kept
			issue.UpdatedAt = time.Now().UTC()
			if err := v.st.SaveIssue(issue); err != nil {
				return CheckResult{}, err
			}
		}
		return CheckResult{Check: CheckTransitiveReduction, Valid: true, Message: fmt.Sprintf("removed %d redundant edge(s): %s", len(redundant), joinLines(edges)), FixesAvailable: true}, nil
	}

	message := fmt.Sprintf("redundant edges: %s", joinLines(edges))
	return CheckResult{Check: CheckTransitiveReduction, Valid: false, Message: message, FixesAvailable: true}, nil
}

func (v *Validator) checkOrphanIssues(graph *depgraph.Graph, issues []*domain.Issue) CheckResult {
	if !v.cfg.Validation.WarnOrphanedLeaves {
		return CheckResult{Check: CheckOrphanIssues, Valid: true, Message: "orphan check disabled by policy"}
	}
	var orphans []string
	for _, issue := range issues {
		if len(issue.Dependencies) == 0 && len(graph.GetDependents(issue.ID)) == 0 {
			orphans = append(orphans, issue.ID)
		}
	}
	if len(orphans) > 0 {
		return CheckResult{Check: CheckOrphanIssues, Valid: false, Message: fmt.Sprintf("orphan issues: %s", joinLines(orphans)), FixesAvailable: false}
	}
	return CheckResult{Check: CheckOrphanIssues, Valid: true, Message: "no orphan issues"}
}

func (v *Validator) checkLabelMembership(issues []*domain.Issue, byID map[string]*domain.Issue, ns *domain.LabelNamespaces) CheckResult {
	membershipNamespaces := make(map[string]string) // namespace -> associated type
	for typeName, namespace := range v.cfg.TypeHierarchy.LabelAssociations {
		membershipNamespaces[namespace] = typeName
	}

	var problems []string
	for _, issue := range issues {
		for _, label := range issue.Labels {
			namespace, value, err := domain.ParseLabel(label)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", issue.ID, err))
				continue
			}
			associatedType, isMembership := membershipNamespaces[namespace]
			if !isMembership {
				continue
			}
			if !hasMember(issues, byID, associatedType, namespace, value) {
				problems = append(problems, fmt.Sprintf("%s: label %s references no issue of type %s with matching membership value", issue.ID, label, associatedType))
			}
		}
	}
	_ = ns
	if len(problems) > 0 {
		return CheckResult{Check: CheckLabelMembership, Valid: false, Message: joinLines(problems)}
	}
	return CheckResult{Check: CheckLabelMembership, Valid: true, Message: "all membership labels resolve"}
}

func hasMember(issues []*domain.Issue, byID map[string]*domain.Issue, typeName, namespace, value string) bool {
	typeLabel := "type:" + typeName
	for _, issue := range issues {
		if issue.HasLabel(typeLabel) && issue.HasLabel(namespace+":"+value) {
			return true
		}
	}
	_ = byID
	return false
}

func (v *Validator) checkPendingTransitions(issues []*domain.Issue, byID map[string]*domain.Issue, opts Options) CheckResult {
	var ready []*domain.Issue
	for _, issue := range issues {
		if issue.State != domain.StateBacklog {
			continue
		}
		allDone := true
		for _, dep := range issue.Dependencies {
			dep, ok := byID[dep]
			if !ok || dep.State != domain.StateDone {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, issue)
		}
	}
	if len(ready) == 0 {
		return CheckResult{Check: CheckPendingTransitions, Valid: true, Message: "no pending backlog -> ready transitions"}
	}

	if opts.Fix && !opts.Dry {
		for _, issue := range ready {
			issue.State = domain.StateReady
			issue.UpdatedAt = time.Now().UTC()
			if err := v.st.SaveIssue(issue); err != nil {
				return CheckResult{Check: CheckPendingTransitions, Valid: false, Message: fmt.Sprintf("applying fix: %v", err)}
			}
		}
		return CheckResult{Check: CheckPendingTransitions, Valid: true, Message: fmt.Sprintf("transitioned %d issue(s) to ready", len(ready)), FixesAvailable: true}
	}

	var ids []string
	for _, issue := range ready {
		ids = append(ids, issue.ID)
	}
	return CheckResult{Check: CheckPendingTransitions, Valid: false, Message: fmt.Sprintf("ready to transition: %s", joinLines(ids)), FixesAvailable: true}
}

// checkLeases walks every lease in the claims index (not every issue) and
// flags a lease whose issue no longer exists or whose effective status is
// expired or stale. It cannot additionally confirm the issuing worktree
// still exists; see DESIGN.md for that limitation.
func (v *Validator) checkLeases(byID map[string]*domain.Issue) (CheckResult, error) {
	leases, err := v.coord.ActiveLeases()
	if err != nil {
		return CheckResult{}, err
	}

	var problems []string
	for _, ls := range leases {
		if _, ok := byID[ls.Lease.IssueID]; !ok {
			problems = append(problems, fmt.Sprintf("lease %s references missing issue %s", ls.Lease.LeaseID, ls.Lease.IssueID))
			continue
		}
		switch ls.Status {
		case claims.StatusExpired:
			problems = append(problems, fmt.Sprintf("lease %s on %s has expired", ls.Lease.LeaseID, ls.Lease.IssueID))
		case claims.StatusStale:
			problems = append(problems, fmt.Sprintf("lease %s on %s is stale (no heartbeat within the threshold)", ls.Lease.LeaseID, ls.Lease.IssueID))
		}
	}
	if len(problems) > 0 {
		return CheckResult{Check: CheckLeases, Valid: false, Message: joinLines(problems)}, nil
	}
	return CheckResult{Check: CheckLeases, Valid: true, Message: "all active leases reference an existing issue and are current"}, nil
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "; "
		}
		out += l
	}
	return out
}
