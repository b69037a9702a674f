package main

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jitdev/jit/internal/claims"
	"github.com/jitdev/jit/internal/facade"
	"github.com/jitdev/jit/internal/jitconfig"
	"github.com/jitdev/jit/internal/pathresolver"
	"github.com/jitdev/jit/internal/recovery"
	"github.com/jitdev/jit/internal/store"
	"github.com/jitdev/jit/internal/validator"
)

// app bundles everything a command needs, resolved fresh for each
// invocation so no process ever observes a stale path after the
// repository or worktree layout changes underneath it.
type app struct {
	paths   *pathresolver.Paths
	cfg     *jitconfig.Config
	store   store.Store
	coord   *claims.Coordinator
	facade  *facade.Facade
	valid   *validator.Validator
	recover *recovery.Engine
	agentID string
}

// newApp resolves paths from the current working directory, loads
// configuration, and wires the store/coordinator/facade/validator/
// recovery stack every command needs.
func newApp(agentFlag string) (*app, error) {
	paths, err := pathresolver.ResolveFromCwd()
	if err != nil {
		return nil, err
	}

	cfg, err := jitconfig.Load(filepath.Join(paths.PrivateDir, "config.toml"))
	if err != nil {
		return nil, err
	}

	st := store.NewJSONStore(paths.PrivateDir)
	if err := st.Init(); err != nil {
		return nil, err
	}

	coord := claims.New(paths.ControlDir, 0, nil)
	rec := recovery.New(paths.PrivateDir, paths.ControlDir, coord, nil)

	agentID, err := jitconfig.ResolveAgentID(agentFlag)
	if err != nil {
		// Only the claim subcommands insist on an identity (requireAgent);
		// every other command runs with an empty agent ID, which lease
		// enforcement treats as single-user mode.
		agentID = ""
	}

	return &app{
		paths:   paths,
		cfg:     cfg,
		store:   st,
		coord:   coord,
		facade:  facade.New(st, coord, cfg),
		valid:   validator.New(st, cfg, coord, ""),
		recover: rec,
		agentID: agentID,
	}, nil
}

// currentBranch shells out to git to determine the current branch.
func currentBranch(worktreeRoot string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = worktreeRoot
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("determining current branch: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
