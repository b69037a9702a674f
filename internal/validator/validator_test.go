package validator

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jitdev/jit/internal/claims"
	"github.com/jitdev/jit/internal/domain"
	"github.com/jitdev/jit/internal/jitconfig"
	"github.com/jitdev/jit/internal/store"
)

func seedIssue(t *testing.T, st store.Store, issue *domain.Issue) {
	t.Helper()
	if err := st.SaveIssue(issue); err != nil {
		t.Fatalf("SaveIssue: %v", err)
	}
}

func TestValidateReferencesCatchesMissingDependency(t *testing.T) {
	st := store.NewMemStore()
	seedIssue(t, st, &domain.Issue{ID: "a", State: domain.StateBacklog, Dependencies: []string{"missing"}})

	v := New(st, jitconfig.Default(), nil, "")
	report, err := v.Validate(Options{})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	for _, res := range report.Results {
		if res.Check == CheckReferences && res.Valid {
			t.Error("expected references check to fail for a missing dependency")
		}
	}
}

// S3-adjacent: DAG check reports a cycle and is reported independently of
// other checks.
func TestValidateDAGReportsCycle(t *testing.T) {
	st := store.NewMemStore()
	seedIssue(t, st, &domain.Issue{ID: "a", State: domain.StateBacklog, Dependencies: []string{"b"}})
	seedIssue(t, st, &domain.Issue{ID: "b", State: domain.StateBacklog, Dependencies: []string{"a"}})

	v := New(st, jitconfig.Default(), nil, "")
	report, err := v.Validate(Options{})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	found := false
	for _, res := range report.Results {
		if res.Check == CheckDAG {
			found = true
			if res.Valid {
				t.Error("expected DAG check to fail on a cycle")
			}
		}
	}
	if !found {
		t.Error("expected a DAG check result")
	}
}

// S4: redundant edge is reported, and Fix removes it; a second Validate
// then reports the graph clean.
func TestValidateTransitiveReductionReportsRedundantEdge(t *testing.T) {
	st := store.NewMemStore()
	seedIssue(t, st, &domain.Issue{ID: "x", State: domain.StateBacklog, Dependencies: []string{"y", "z"}})
	seedIssue(t, st, &domain.Issue{ID: "y", State: domain.StateBacklog, Dependencies: []string{"z"}})
	seedIssue(t, st, &domain.Issue{ID: "z", State: domain.StateBacklog})

	v := New(st, jitconfig.Default(), nil, "")
	report, err := v.Validate(Options{})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	for _, res := range report.Results {
		if res.Check == CheckTransitiveReduction {
			if res.Valid {
				t.Error("expected a redundant edge to be reported")
			}
			if !res.FixesAvailable {
				t.Error("expected FixesAvailable to be true")
			}
		}
	}
}

func TestValidateTransitiveReductionFixRemovesRedundantEdge(t *testing.T) {
	st := store.NewMemStore()
	seedIssue(t, st, &domain.Issue{ID: "x", State: domain.StateBacklog, Dependencies: []string{"y", "z"}})
	seedIssue(t, st, &domain.Issue{ID: "y", State: domain.StateBacklog, Dependencies: []string{"z"}})
	seedIssue(t, st, &domain.Issue{ID: "z", State: domain.StateBacklog})

	v := New(st, jitconfig.Default(), nil, "")
	if _, err := v.Validate(Options{Fix: true}); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	x, err := st.LoadIssue("x")
	if err != nil {
		t.Fatalf("LoadIssue: %v", err)
	}
	for _, dep := range x.Dependencies {
		if dep == "z" {
			t.Fatalf("expected redundant edge x->z to be removed, got deps %v", x.Dependencies)
		}
	}
	if len(x.Dependencies) != 1 || x.Dependencies[0] != "y" {
		t.Fatalf("expected x to depend only on y, got %v", x.Dependencies)
	}

	second, err := v.Validate(Options{})
	if err != nil {
		t.Fatalf("second Validate: %v", err)
	}
	for _, res := range second.Results {
		if res.Check == CheckTransitiveReduction && !res.Valid {
			t.Errorf("expected a clean second run, got %q", res.Message)
		}
	}
}

func TestValidateTransitiveReductionDryRunDoesNotMutate(t *testing.T) {
	st := store.NewMemStore()
	seedIssue(t, st, &domain.Issue{ID: "x", State: domain.StateBacklog, Dependencies: []string{"y", "z"}})
	seedIssue(t, st, &domain.Issue{ID: "y", State: domain.StateBacklog, Dependencies: []string{"z"}})
	seedIssue(t, st, &domain.Issue{ID: "z", State: domain.StateBacklog})

	v := New(st, jitconfig.Default(), nil, "")
	if _, err := v.Validate(Options{Fix: true, Dry: true}); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	x, err := st.LoadIssue("x")
	if err != nil {
		t.Fatalf("LoadIssue: %v", err)
	}
	if len(x.Dependencies) != 2 {
		t.Fatalf("dry run should not mutate dependencies, got %v", x.Dependencies)
	}
}

// S5: P depends on Q, R, both Done, P in Backlog. Fix transitions P to
// Ready.
func TestValidatePendingTransitionsAutoFix(t *testing.T) {
	st := store.NewMemStore()
	seedIssue(t, st, &domain.Issue{ID: "q", State: domain.StateDone})
	seedIssue(t, st, &domain.Issue{ID: "r", State: domain.StateDone})
	seedIssue(t, st, &domain.Issue{ID: "p", State: domain.StateBacklog, Dependencies: []string{"q", "r"}})

	v := New(st, jitconfig.Default(), nil, "")
	report, err := v.Validate(Options{Fix: true})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	for _, res := range report.Results {
		if res.Check == CheckPendingTransitions && !res.Valid {
			t.Errorf("expected pending transitions to be valid after fix, got %q", res.Message)
		}
	}

	p, err := st.LoadIssue("p")
	if err != nil {
		t.Fatalf("LoadIssue: %v", err)
	}
	if p.State != domain.StateReady {
		t.Errorf("p.State = %v, want Ready", p.State)
	}
}

func TestValidatePendingTransitionsDryRunDoesNotMutate(t *testing.T) {
	st := store.NewMemStore()
	seedIssue(t, st, &domain.Issue{ID: "q", State: domain.StateDone})
	seedIssue(t, st, &domain.Issue{ID: "p", State: domain.StateBacklog, Dependencies: []string{"q"}})

	v := New(st, jitconfig.Default(), nil, "")
	if _, err := v.Validate(Options{Fix: true, Dry: true}); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	p, err := st.LoadIssue("p")
	if err != nil {
		t.Fatalf("LoadIssue: %v", err)
	}
	if p.State != domain.StateBacklog {
		t.Errorf("dry run should not mutate state, got %v", p.State)
	}
}

func newTestCoordinator(t *testing.T) *claims.Coordinator {
	t.Helper()
	return claims.New(filepath.Join(t.TempDir(), "jit"), time.Hour, nil)
}

// A lease referencing an issue that no longer exists is flagged.
func TestValidateLeaseCheckFlagsMissingIssue(t *testing.T) {
	st := store.NewMemStore()
	seedIssue(t, st, &domain.Issue{ID: "x", State: domain.StateBacklog})

	coord := newTestCoordinator(t)
	if _, err := coord.Acquire("x", 3600, "agent:a", "wt:1", "main"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := st.DeleteIssue("x"); err != nil {
		t.Fatalf("DeleteIssue: %v", err)
	}

	v := New(st, jitconfig.Default(), coord, "")
	report, err := v.Validate(Options{})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	found := false
	for _, res := range report.Results {
		if res.Check == CheckLeases {
			found = true
			if res.Valid {
				t.Error("expected the lease check to fail for a lease on a missing issue")
			}
		}
	}
	if !found {
		t.Fatal("expected a leases check result")
	}
}

// A lease that has expired by wall clock but whose index entry has not yet
// been rebuilt is still flagged.
func TestValidateLeaseCheckFlagsExpiredLease(t *testing.T) {
	st := store.NewMemStore()
	seedIssue(t, st, &domain.Issue{ID: "x", State: domain.StateBacklog})

	coord := newTestCoordinator(t)
	if _, err := coord.Acquire("x", 1, "agent:a", "wt:1", "main"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	time.Sleep(1100 * time.Millisecond)

	v := New(st, jitconfig.Default(), coord, "")
	report, err := v.Validate(Options{})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	for _, res := range report.Results {
		if res.Check == CheckLeases && res.Valid {
			t.Error("expected the lease check to fail for an expired lease")
		}
	}
}

func TestValidateLeaseCheckPassesForHealthyLease(t *testing.T) {
	st := store.NewMemStore()
	seedIssue(t, st, &domain.Issue{ID: "x", State: domain.StateBacklog})

	coord := newTestCoordinator(t)
	if _, err := coord.Acquire("x", 3600, "agent:a", "wt:1", "main"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	v := New(st, jitconfig.Default(), coord, "")
	report, err := v.Validate(Options{})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	for _, res := range report.Results {
		if res.Check == CheckLeases && !res.Valid {
			t.Errorf("expected a healthy lease to pass, got %q", res.Message)
		}
	}
}
