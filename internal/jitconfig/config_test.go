package jitconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jitdev/jit/internal/jiterr"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Worktree.EnforceLeases != EnforceOff {
		t.Fatalf("expected default enforce_leases off, got %q", cfg.Worktree.EnforceLeases)
	}
}

func TestLoadDecodesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
[worktree]
enforce_leases = "strict"

[type_hierarchy]
strategic_types = ["epic", "initiative"]

[namespaces.team]
description = "owning team"
unique = true
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Worktree.EnforceLeases != EnforceStrict {
		t.Fatalf("expected strict, got %q", cfg.Worktree.EnforceLeases)
	}
	if ns, ok := cfg.Namespaces["team"]; !ok || !ns.Unique {
		t.Fatalf("expected namespaces.team.unique = true, got %+v", cfg.Namespaces)
	}
}

func TestLoadRejectsInvalidEnforceMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[worktree]\nenforce_leases = \"sometimes\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, jiterr.ErrCorruptData) {
		t.Fatalf("expected ErrCorruptData, got %v", err)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("not = [valid"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, jiterr.ErrCorruptData) {
		t.Fatalf("expected ErrCorruptData, got %v", err)
	}
}

func TestResolveAgentIDPriorityCLIBeatsEnv(t *testing.T) {
	t.Setenv("JIT_AGENT_ID", "human:alice")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	id, err := ResolveAgentID("agent:coder-1")
	if err != nil {
		t.Fatalf("ResolveAgentID: %v", err)
	}
	if id != "agent:coder-1" {
		t.Fatalf("expected CLI arg to win, got %q", id)
	}
}

func TestResolveAgentIDFallsBackToEnv(t *testing.T) {
	t.Setenv("JIT_AGENT_ID", "human:alice")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	id, err := ResolveAgentID("")
	if err != nil {
		t.Fatalf("ResolveAgentID: %v", err)
	}
	if id != "human:alice" {
		t.Fatalf("expected env var to win, got %q", id)
	}
}

func TestResolveAgentIDNoSourceReturnsNotFound(t *testing.T) {
	t.Setenv("JIT_AGENT_ID", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	_, err := ResolveAgentID("")
	if !errors.Is(err, jiterr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestValidateAgentIDRejectsMissingColon(t *testing.T) {
	if err := ValidateAgentID("alice"); !errors.Is(err, jiterr.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestValidateAgentIDRejectsWhitespace(t *testing.T) {
	if err := ValidateAgentID("human: alice smith"); !errors.Is(err, jiterr.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestValidateAgentIDAcceptsWellFormed(t *testing.T) {
	if err := ValidateAgentID("agent:coder-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
