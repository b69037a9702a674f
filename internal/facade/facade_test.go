package facade

import (
	"errors"
	"testing"
	"time"

	"github.com/jitdev/jit/internal/claims"
	"github.com/jitdev/jit/internal/domain"
	"github.com/jitdev/jit/internal/gateexec"
	"github.com/jitdev/jit/internal/jitconfig"
	"github.com/jitdev/jit/internal/jiterr"
	"github.com/jitdev/jit/internal/store"
)

func statePtr(s domain.State) *domain.State { return &s }

func TestCreateIssueRejectsMissingDependency(t *testing.T) {
	f := New(store.NewMemStore(), nil, nil)
	_, err := f.CreateIssue(CreateIssueParams{Title: "a", Dependencies: []string{"missing"}})
	if !errors.Is(err, jiterr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateIssueAppendsEvent(t *testing.T) {
	st := store.NewMemStore()
	f := New(st, nil, nil)

	issue, err := f.CreateIssue(CreateIssueParams{Title: "first"})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if issue.State != domain.StateBacklog {
		t.Errorf("State = %v, want Backlog", issue.State)
	}

	events, err := st.ReadEvents()
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 1 || events[0].Kind != domain.EventIssueCreated {
		t.Fatalf("events = %+v, want one issue_created event", events)
	}
}

// S5: updating a dependency to Done cascades the dependent from Backlog to
// Ready once every dependency is Done.
func TestUpdateIssueCascadesReadyOnDependencyDone(t *testing.T) {
	st := store.NewMemStore()
	f := New(st, nil, nil)

	q, err := f.CreateIssue(CreateIssueParams{Title: "q"})
	if err != nil {
		t.Fatalf("CreateIssue q: %v", err)
	}
	p, err := f.CreateIssue(CreateIssueParams{Title: "p", Dependencies: []string{q.ID}})
	if err != nil {
		t.Fatalf("CreateIssue p: %v", err)
	}

	if _, err := f.UpdateIssue(q.ID, "", UpdateIssueParams{State: statePtr(domain.StateDone)}); err != nil {
		t.Fatalf("UpdateIssue q: %v", err)
	}

	reloaded, err := st.LoadIssue(p.ID)
	if err != nil {
		t.Fatalf("LoadIssue p: %v", err)
	}
	if reloaded.State != domain.StateReady {
		t.Errorf("p.State = %v, want Ready", reloaded.State)
	}
}

func TestUpdateIssueDoesNotCascadeWhenOtherDependencyStillOpen(t *testing.T) {
	st := store.NewMemStore()
	f := New(st, nil, nil)

	q, _ := f.CreateIssue(CreateIssueParams{Title: "q"})
	r, _ := f.CreateIssue(CreateIssueParams{Title: "r"})
	p, _ := f.CreateIssue(CreateIssueParams{Title: "p", Dependencies: []string{q.ID, r.ID}})

	if _, err := f.UpdateIssue(q.ID, "", UpdateIssueParams{State: statePtr(domain.StateDone)}); err != nil {
		t.Fatalf("UpdateIssue q: %v", err)
	}

	reloaded, err := st.LoadIssue(p.ID)
	if err != nil {
		t.Fatalf("LoadIssue p: %v", err)
	}
	if reloaded.State != domain.StateBacklog {
		t.Errorf("p.State = %v, want Backlog (r not done yet)", reloaded.State)
	}
}

// S3: adding an edge that would create a cycle is rejected and the graph
// is unchanged.
func TestAddDependencyRejectsCycle(t *testing.T) {
	st := store.NewMemStore()
	f := New(st, nil, nil)

	x, _ := f.CreateIssue(CreateIssueParams{Title: "x"})
	y, err := f.CreateIssue(CreateIssueParams{Title: "y", Dependencies: []string{x.ID}})
	if err != nil {
		t.Fatalf("CreateIssue y: %v", err)
	}
	z, err := f.CreateIssue(CreateIssueParams{Title: "z", Dependencies: []string{y.ID}})
	if err != nil {
		t.Fatalf("CreateIssue z: %v", err)
	}

	if err := f.AddDependency(x.ID, z.ID, ""); err == nil {
		t.Fatal("expected cycle to be rejected")
	} else if !errors.Is(err, jiterr.ErrCycleDetected) {
		t.Fatalf("err = %v, want ErrCycleDetected", err)
	}

	reloaded, err := st.LoadIssue(x.ID)
	if err != nil {
		t.Fatalf("LoadIssue x: %v", err)
	}
	if len(reloaded.Dependencies) != 0 {
		t.Errorf("x.Dependencies = %v, want unchanged (empty)", reloaded.Dependencies)
	}
}

func TestRemoveDependency(t *testing.T) {
	st := store.NewMemStore()
	f := New(st, nil, nil)

	a, _ := f.CreateIssue(CreateIssueParams{Title: "a"})
	b, _ := f.CreateIssue(CreateIssueParams{Title: "b", Dependencies: []string{a.ID}})

	if err := f.RemoveDependency(b.ID, a.ID, ""); err != nil {
		t.Fatalf("RemoveDependency: %v", err)
	}
	reloaded, err := st.LoadIssue(b.ID)
	if err != nil {
		t.Fatalf("LoadIssue: %v", err)
	}
	if len(reloaded.Dependencies) != 0 {
		t.Errorf("Dependencies = %v, want empty", reloaded.Dependencies)
	}

	if err := f.RemoveDependency(b.ID, a.ID, ""); !errors.Is(err, jiterr.ErrNotFound) {
		t.Fatalf("second removal: err = %v, want ErrNotFound", err)
	}
}

func TestStrictEnforcementRejectsStructuralEditWithoutLease(t *testing.T) {
	st := store.NewMemStore()
	cfg := jitconfig.Default()
	cfg.Worktree.EnforceLeases = jitconfig.EnforceStrict
	coord := claims.New(t.TempDir(), 0, nil)
	f := New(st, coord, cfg)

	issue, _ := f.CreateIssue(CreateIssueParams{Title: "guarded"})

	_, err := f.UpdateIssue(issue.ID, "human:alice", UpdateIssueParams{State: statePtr(domain.StateInProgress)})
	if !errors.Is(err, jiterr.ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}

	if _, err := coord.Acquire(issue.ID, 3600, "human:alice", "wt:1", "main"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := f.UpdateIssue(issue.ID, "human:alice", UpdateIssueParams{State: statePtr(domain.StateInProgress)}); err != nil {
		t.Fatalf("UpdateIssue after acquiring lease: %v", err)
	}
}

func TestPassGateTransitionsOutOfGated(t *testing.T) {
	st := store.NewMemStore()
	f := New(st, nil, nil)

	issue, _ := f.CreateIssue(CreateIssueParams{Title: "gated", RequiredGates: []string{"lint"}})
	if _, err := f.UpdateIssue(issue.ID, "", UpdateIssueParams{State: statePtr(domain.StateGated)}); err != nil {
		t.Fatalf("UpdateIssue: %v", err)
	}

	updated, err := f.PassGate(issue.ID, "lint", "human:bob")
	if err != nil {
		t.Fatalf("PassGate: %v", err)
	}
	if updated.State != domain.StateInProgress {
		t.Errorf("State = %v, want InProgress", updated.State)
	}
	if updated.GateStates["lint"].Status != domain.GateStatusPassed {
		t.Errorf("gate status = %v, want Passed", updated.GateStates["lint"].Status)
	}
}

func TestFailGateRejectsUnknownGate(t *testing.T) {
	st := store.NewMemStore()
	f := New(st, nil, nil)
	issue, _ := f.CreateIssue(CreateIssueParams{Title: "a"})

	if _, err := f.FailGate(issue.ID, "does-not-exist", ""); !errors.Is(err, jiterr.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestRunGateRejectsManualGate(t *testing.T) {
	st := store.NewMemStore()
	f := New(st, nil, nil)
	issue, _ := f.CreateIssue(CreateIssueParams{Title: "a", RequiredGates: []string{"review"}})
	if err := f.DefineGate(&domain.GateDefinition{Key: "review", Mode: domain.GateModeManual}); err != nil {
		t.Fatalf("DefineGate: %v", err)
	}

	if _, _, err := f.RunGate(issue.ID, "review", ""); !errors.Is(err, jiterr.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestRunGateRecordsManualCheckerFailure(t *testing.T) {
	st := store.NewMemStore()
	f := New(st, nil, nil)
	issue, _ := f.CreateIssue(CreateIssueParams{Title: "a", RequiredGates: []string{"lint"}})
	if err := f.DefineGate(&domain.GateDefinition{
		Key: "lint", Mode: domain.GateModeAuto,
		Checker: &domain.Checker{Command: "lint-everything"},
	}); err != nil {
		t.Fatalf("DefineGate: %v", err)
	}

	updated, result, err := f.RunGate(issue.ID, "lint", "agent:coder-1")
	if err != nil {
		t.Fatalf("RunGate: %v", err)
	}
	if result.Status != domain.GateRunFailed {
		t.Errorf("result.Status = %v, want GateRunFailed (no process-spawning checker wired)", result.Status)
	}
	if updated.GateStates["lint"].Status != domain.GateStatusFailed {
		t.Errorf("gate status = %v, want Failed", updated.GateStates["lint"].Status)
	}

	runs, err := st.ListGateRunsForIssue(issue.ID)
	if err != nil {
		t.Fatalf("ListGateRunsForIssue: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID == "" {
		t.Fatalf("expected one persisted run with a generated run id, got %+v", runs)
	}
}

type stubChecker struct{ status domain.GateRunStatus }

func (s *stubChecker) Run(gate *domain.GateDefinition, issueID string) (*domain.GateRunResult, error) {
	now := time.Now().UTC()
	return &domain.GateRunResult{
		GateKey: gate.Key, IssueID: issueID,
		StartedAt: now, FinishedAt: now,
		Status: s.status,
	}, nil
}

func TestRunGateWithSucceedingCheckerPassesTheGate(t *testing.T) {
	st := store.NewMemStore()
	f := New(st, nil, nil)
	f.SetChecker(&stubChecker{status: domain.GateRunSucceeded})

	issue, _ := f.CreateIssue(CreateIssueParams{Title: "a", RequiredGates: []string{"tests"}})
	if err := f.DefineGate(&domain.GateDefinition{
		Key: "tests", Mode: domain.GateModeAuto,
		Checker: &domain.Checker{Command: "go test ./..."},
	}); err != nil {
		t.Fatalf("DefineGate: %v", err)
	}

	updated, _, err := f.RunGate(issue.ID, "tests", "agent:coder-1")
	if err != nil {
		t.Fatalf("RunGate: %v", err)
	}
	if updated.GateStates["tests"].Status != domain.GateStatusPassed {
		t.Errorf("gate status = %v, want Passed", updated.GateStates["tests"].Status)
	}
}

var _ gateexec.Checker = (*stubChecker)(nil)

func TestBreakdownIssueCreatesLabeledChildren(t *testing.T) {
	st := store.NewMemStore()
	f := New(st, nil, nil)

	blocker, _ := f.CreateIssue(CreateIssueParams{Title: "blocker"})
	parent, _ := f.CreateIssue(CreateIssueParams{Title: "parent", Dependencies: []string{blocker.ID}})

	children, err := f.BreakdownIssue(parent.ID, "", []ChildSpec{
		{Title: "part one"},
		{Title: "part two"},
	})
	if err != nil {
		t.Fatalf("BreakdownIssue: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("len(children) = %d, want 2", len(children))
	}
	for _, child := range children {
		if !child.HasLabel("part_of:" + parent.ID) {
			t.Errorf("child %s missing part_of label, got %v", child.ID, child.Labels)
		}
		if len(child.Dependencies) != 1 || child.Dependencies[0] != blocker.ID {
			t.Errorf("child %s dependencies = %v, want [%s]", child.ID, child.Dependencies, blocker.ID)
		}
	}
}

func TestQueryReadyBlockedAndByLabel(t *testing.T) {
	st := store.NewMemStore()
	f := New(st, nil, nil)

	done, _ := f.CreateIssue(CreateIssueParams{Title: "done"})
	if _, err := f.UpdateIssue(done.ID, "", UpdateIssueParams{State: statePtr(domain.StateDone)}); err != nil {
		t.Fatalf("UpdateIssue: %v", err)
	}
	ready, _ := f.CreateIssue(CreateIssueParams{Title: "ready", Dependencies: []string{done.ID}})
	if _, err := f.UpdateIssue(ready.ID, "", UpdateIssueParams{State: statePtr(domain.StateReady)}); err != nil {
		t.Fatalf("UpdateIssue: %v", err)
	}
	blocked, err := f.CreateIssue(CreateIssueParams{Title: "blocked", Labels: []string{"epic:auth"}})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if err := f.AddDependency(blocked.ID, ready.ID, ""); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}

	readyList, err := f.QueryReady()
	if err != nil {
		t.Fatalf("QueryReady: %v", err)
	}
	if len(readyList) != 1 || readyList[0].ID != ready.ID {
		t.Errorf("QueryReady = %+v, want just %s", readyList, ready.ID)
	}

	blockedList, err := f.QueryBlocked()
	if err != nil {
		t.Fatalf("QueryBlocked: %v", err)
	}
	foundBlocked := false
	for _, issue := range blockedList {
		if issue.ID == blocked.ID {
			foundBlocked = true
		}
		if issue.ID == done.ID {
			t.Error("Done issue should never be reported blocked")
		}
	}
	if !foundBlocked {
		t.Errorf("QueryBlocked = %+v, want to include %s", blockedList, blocked.ID)
	}

	byLabel, err := f.QueryByLabel("epic:auth")
	if err != nil {
		t.Fatalf("QueryByLabel: %v", err)
	}
	if len(byLabel) != 1 || byLabel[0].ID != blocked.ID {
		t.Errorf("QueryByLabel = %+v, want just %s", byLabel, blocked.ID)
	}
}

func TestDefineGateValidatesAutoRequiresChecker(t *testing.T) {
	st := store.NewMemStore()
	f := New(st, nil, nil)

	err := f.DefineGate(&domain.GateDefinition{Key: "ci", Mode: domain.GateModeAuto})
	if !errors.Is(err, jiterr.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}

	err = f.DefineGate(&domain.GateDefinition{
		Key:  "ci",
		Mode: domain.GateModeAuto,
		Checker: &domain.Checker{Command: "make test", TimeoutSecs: 60},
	})
	if err != nil {
		t.Fatalf("DefineGate: %v", err)
	}

	gates, err := st.LoadGateRegistry()
	if err != nil {
		t.Fatalf("LoadGateRegistry: %v", err)
	}
	if len(gates) != 1 || gates[0].Key != "ci" {
		t.Fatalf("gates = %+v, want one gate named ci", gates)
	}
}
