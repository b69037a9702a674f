package domain

import (
	"fmt"
	"strings"

	"github.com/jitdev/jit/internal/jiterr"
)

// ParseLabel splits a label of the form "namespace:value" into its two
// parts. The namespace must be lowercase alphanumeric plus hyphen; the
// value may itself contain colons (e.g. "milestone:v1.0").
func ParseLabel(label string) (namespace, value string, err error) {
	idx := strings.IndexByte(label, ':')
	if idx <= 0 || idx == len(label)-1 {
		return "", "", fmt.Errorf("label %q: missing namespace:value separator: %w", label, jiterr.ErrInvalidArgument)
	}
	namespace = label[:idx]
	value = label[idx+1:]
	for _, r := range namespace {
		isLower := r >= 'a' && r <= 'z'
		isDigit := r >= '0' && r <= '9'
		if !isLower && !isDigit && r != '-' {
			return "", "", fmt.Errorf("label %q: namespace must be lowercase alphanumeric plus hyphen: %w", label, jiterr.ErrInvalidArgument)
		}
	}
	return namespace, value, nil
}

// NamespaceConfig declares how one label namespace behaves.
type NamespaceConfig struct {
	Description string `toml:"description" json:"description,omitempty"`
	Unique      bool   `toml:"unique" json:"unique"`
}

// LabelNamespaces is the saved registry of declared namespaces, keyed by
// namespace name.
type LabelNamespaces struct {
	Namespaces map[string]NamespaceConfig `json:"namespaces"`
}
