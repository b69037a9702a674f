// Package labels implements namespace-uniqueness and membership-hierarchy
// rules on top of the label parsing in internal/domain.
package labels

import (
	"fmt"

	"github.com/jitdev/jit/internal/domain"
	"github.com/jitdev/jit/internal/jitconfig"
	"github.com/jitdev/jit/internal/jiterr"
)

// Validator checks label additions against the declared namespace
// registry and the configured type hierarchy.
type Validator struct {
	cfg        *jitconfig.Config
	namespaces *domain.LabelNamespaces
}

// NewValidator returns a Validator over the given config and namespace
// registry.
func NewValidator(cfg *jitconfig.Config, namespaces *domain.LabelNamespaces) *Validator {
	if cfg == nil {
		cfg = jitconfig.Default()
	}
	if namespaces == nil {
		namespaces = &domain.LabelNamespaces{Namespaces: map[string]domain.NamespaceConfig{}}
	}
	return &Validator{cfg: cfg, namespaces: namespaces}
}

// CanAdd reports whether label can be added to issue given its current
// labels: the label must parse, and if its namespace is declared unique,
// no existing label in that namespace may already be present.
func (v *Validator) CanAdd(issue *domain.Issue, label string) error {
	namespace, _, err := domain.ParseLabel(label)
	if err != nil {
		return err
	}

	ns, declared := v.namespaceConfig(namespace)
	if !declared {
		return nil // undeclared namespaces are permitted, just unmanaged
	}
	if !ns.Unique {
		return nil
	}

	prefix := namespace + ":"
	for _, existing := range issue.Labels {
		if len(existing) > len(prefix) && existing[:len(prefix)] == prefix && existing != label {
			return fmt.Errorf("namespace %q is unique and issue already carries %q: %w", namespace, existing, jiterr.ErrAlreadyExists)
		}
	}
	return nil
}

func (v *Validator) namespaceConfig(namespace string) (domain.NamespaceConfig, bool) {
	if ns, ok := v.namespaces.Namespaces[namespace]; ok {
		return ns, true
	}
	return domain.NamespaceConfig{}, false
}

// MembershipNamespace reports the type name associated with namespace, if
// the config's [type_hierarchy.label_associations] (type name ->
// namespace) declares it a membership namespace.
func (v *Validator) MembershipNamespace(namespace string) (typeName string, ok bool) {
	for name, ns := range v.cfg.TypeHierarchy.LabelAssociations {
		if ns == namespace {
			return name, true
		}
	}
	return "", false
}

// HierarchyLevel returns the configured level for a type name (1 =
// highest), or 0 if the type is undeclared.
func (v *Validator) HierarchyLevel(typeName string) int {
	return v.cfg.TypeHierarchy.Types[typeName]
}

// IsStrategic reports whether typeName is listed under
// type_hierarchy.strategic_types.
func (v *Validator) IsStrategic(typeName string) bool {
	for _, t := range v.cfg.TypeHierarchy.StrategicTypes {
		if t == typeName {
			return true
		}
	}
	return false
}
