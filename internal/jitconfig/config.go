// Package jitconfig loads the repository-local .jit/config.toml and the
// per-user agent.toml, both decoded with BurntSushi/toml.
package jitconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jitdev/jit/internal/jiterr"
)

// EnforceMode selects how strictly structural mutations require an active
// lease on the target issue.
type EnforceMode string

const (
	EnforceOff    EnforceMode = "off"
	EnforceWarn   EnforceMode = "warn"
	EnforceStrict EnforceMode = "strict"
)

// WorktreeConfig is the [worktree] section.
type WorktreeConfig struct {
	EnforceLeases EnforceMode `toml:"enforce_leases"`
}

// TypeHierarchyConfig is the [type_hierarchy] section.
type TypeHierarchyConfig struct {
	Types              map[string]int    `toml:"types"`
	LabelAssociations  map[string]string `toml:"label_associations"`
	StrategicTypes     []string          `toml:"strategic_types"`
}

// NamespaceConfig is one entry of [namespaces.<name>].
type NamespaceConfig struct {
	Description string `toml:"description"`
	Unique      bool   `toml:"unique"`
}

// ValidationConfig is the [validation] section.
type ValidationConfig struct {
	Strictness                string `toml:"strictness"`
	WarnOrphanedLeaves        bool   `toml:"warn_orphaned_leaves"`
	WarnStrategicConsistency  bool   `toml:"warn_strategic_consistency"`
}

// DocumentationConfig is the [documentation] section, out of scope here
// beyond round-tripping the paths it declares.
type DocumentationConfig struct {
	Managed     []string `toml:"managed"`
	Permanent   []string `toml:"permanent"`
	ArchiveRoot string   `toml:"archive_root"`
}

// Config is the parsed contents of .jit/config.toml.
type Config struct {
	Worktree      WorktreeConfig             `toml:"worktree"`
	TypeHierarchy TypeHierarchyConfig        `toml:"type_hierarchy"`
	Namespaces    map[string]NamespaceConfig `toml:"namespaces"`
	Validation    ValidationConfig           `toml:"validation"`
	Documentation DocumentationConfig        `toml:"documentation"`
}

// Default returns the configuration used when no config.toml exists.
func Default() *Config {
	return &Config{
		Worktree: WorktreeConfig{EnforceLeases: EnforceOff},
		Validation: ValidationConfig{
			Strictness: "normal",
		},
	}
}

// Load reads path and decodes it as TOML. A missing file is not an
// error: Default() is returned instead. A present-but-malformed file is
// ErrCorruptData.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from pathresolver, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config: %w", jiterr.ErrIO)
	}

	cfg := Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %v: %w", path, err, jiterr.ErrCorruptData)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Worktree.EnforceLeases {
	case "", EnforceOff, EnforceWarn, EnforceStrict:
	default:
		return fmt.Errorf("config: invalid worktree.enforce_leases %q: %w", c.Worktree.EnforceLeases, jiterr.ErrCorruptData)
	}
	return nil
}

// AgentIdentity is the decoded contents of <user-config>/jit/agent.toml.
type AgentIdentity struct {
	AgentID string `toml:"agent_id"`
}

// LoadAgentIdentity reads the per-user agent identity file. A missing file
// returns (nil, nil) so callers can fall through to the next resolution
// priority (see ResolveAgentID).
func LoadAgentIdentity() (*AgentIdentity, error) {
	path, err := AgentIdentityPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path derived from os.UserConfigDir, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading agent identity: %w", jiterr.ErrIO)
	}

	var id AgentIdentity
	if _, err := toml.Decode(string(data), &id); err != nil {
		return nil, fmt.Errorf("parsing %s: %v: %w", path, err, jiterr.ErrCorruptData)
	}
	return &id, nil
}

// AgentIdentityPath returns <user-config>/jit/agent.toml.
func AgentIdentityPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating user config directory: %w", jiterr.ErrIO)
	}
	return filepath.Join(dir, "jit", "agent.toml"), nil
}

// ResolveAgentID applies a fixed priority order: explicit CLI argument,
// then JIT_AGENT_ID, then the agent identity file. Returns
// ErrNotFound if none supply a value, and ErrInvalidArgument if the
// resolved value is malformed (must be "type:identifier", non-empty parts,
// no whitespace).
func ResolveAgentID(cliArg string) (string, error) {
	candidate := cliArg
	if candidate == "" {
		candidate = os.Getenv("JIT_AGENT_ID")
	}
	if candidate == "" {
		id, err := LoadAgentIdentity()
		if err != nil {
			return "", err
		}
		if id != nil {
			candidate = id.AgentID
		}
	}
	if candidate == "" {
		return "", fmt.Errorf("no agent identity configured: %w", jiterr.ErrNotFound)
	}
	if err := ValidateAgentID(candidate); err != nil {
		return "", err
	}
	return candidate, nil
}

// ValidateAgentID checks the required "type:identifier" shape: both
// parts non-empty, no whitespace anywhere.
func ValidateAgentID(agentID string) error {
	if strings.ContainsAny(agentID, " \t\n\r") {
		return fmt.Errorf("agent id %q contains whitespace: %w", agentID, jiterr.ErrInvalidArgument)
	}
	idx := strings.IndexByte(agentID, ':')
	if idx <= 0 || idx == len(agentID)-1 {
		return fmt.Errorf("agent id %q must be of the form type:identifier: %w", agentID, jiterr.ErrInvalidArgument)
	}
	return nil
}
