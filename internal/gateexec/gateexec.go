// Package gateexec defines the contract for running an Auto gate's
// checker as a subprocess. The core only persists GateRunResult records
// (internal/store); this package defines the Checker interface the
// facade calls from RunGate and a manual-only implementation so gate runs
// can be exercised without spawning processes in tests.
package gateexec

import (
	"time"

	"github.com/jitdev/jit/internal/domain"
)

// Checker runs one gate's checker specification against one issue and
// returns the resulting record. Implementations that actually spawn
// subprocesses (shell command + timeout + cwd + env) live outside the
// core and are not provided here.
type Checker interface {
	Run(gate *domain.GateDefinition, issueID string) (*domain.GateRunResult, error)
}

// ManualChecker refuses to execute Auto gates; it exists so the facade can
// be wired to something at all in tests and single-agent setups that only
// use Manual gates, without depending on an actual process-spawning
// implementation.
type ManualChecker struct {
	// Now lets tests control the timestamp; defaults to time.Now.
	Now func() time.Time
}

// Run returns a GateRunResult recording that automated execution is
// unavailable. Manual gates never reach this path; PassGate/FailGate
// record their outcome directly without invoking a Checker.
func (m *ManualChecker) Run(gate *domain.GateDefinition, issueID string) (*domain.GateRunResult, error) {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	started := now()
	return &domain.GateRunResult{
		GateKey:    gate.Key,
		IssueID:    issueID,
		StartedAt:  started,
		FinishedAt: started,
		ExitCode:   -1,
		StderrTail: "automated gate execution is not available in this build",
		Status:     domain.GateRunFailed,
	}, nil
}
