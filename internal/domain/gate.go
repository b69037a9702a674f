package domain

import (
	"fmt"
	"time"

	"github.com/jitdev/jit/internal/jiterr"
)

// GateStage is when, relative to the work itself, a gate must be satisfied.
type GateStage string

const (
	GateStagePrecheck  GateStage = "precheck"
	GateStagePostcheck GateStage = "postcheck"
)

// GateMode selects whether a gate is satisfied by human approval or by
// running a checker.
type GateMode string

const (
	GateModeManual GateMode = "manual"
	GateModeAuto   GateMode = "auto"
)

// Checker is the subprocess specification for an Auto gate. Execution
// itself is the out-of-scope gateexec collaborator; the store only
// persists this specification and the results it produces.
type Checker struct {
	Command    string            `json:"command"`
	TimeoutSecs int              `json:"timeout_secs"`
	WorkingDir string            `json:"working_dir,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
}

// GateDefinition is an entry in the gate registry.
type GateDefinition struct {
	Key         string   `json:"key"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Stage       GateStage `json:"stage"`
	Mode        GateMode `json:"mode"`
	Checker     *Checker `json:"checker,omitempty"`
}

// Validate enforces the invariant that Auto gates carry a checker and
// Manual gates discard any supplied checker.
func (g *GateDefinition) Validate() error {
	if g.Mode == GateModeAuto && g.Checker == nil {
		return fmt.Errorf("auto gate %q requires a checker: %w", g.Key, jiterr.ErrInvalidArgument)
	}
	if g.Mode == GateModeManual {
		g.Checker = nil
	}
	return nil
}

// GateRunStatus is the terminal outcome of one checker invocation.
type GateRunStatus string

const (
	GateRunSucceeded GateRunStatus = "succeeded"
	GateRunFailed    GateRunStatus = "failed"
	GateRunTimedOut  GateRunStatus = "timed_out"
)

// GateRunResult is a persisted record of one gate checker invocation,
// produced by the gateexec collaborator and stored verbatim.
type GateRunResult struct {
	RunID      string        `json:"run_id"`
	GateKey    string        `json:"gate_key"`
	IssueID    string        `json:"issue_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	ExitCode   int           `json:"exit_code"`
	StdoutTail string        `json:"stdout_tail,omitempty"`
	StderrTail string        `json:"stderr_tail,omitempty"`
	Status     GateRunStatus `json:"status"`
}
