// Package snapshot is a minimal document-archival stub: a single YAML
// export of the issue graph for external tooling to consume. It does not
// implement a full tar/directory archive emitter.
package snapshot

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jitdev/jit/internal/domain"
	"github.com/jitdev/jit/internal/store"
)

// issueSnapshot is the YAML-facing shape: a flattened view of domain.Issue
// that omits store-internal bookkeeping the export doesn't need to carry.
type issueSnapshot struct {
	ID            string   `yaml:"id"`
	Title         string   `yaml:"title"`
	State         string   `yaml:"state"`
	Priority      string   `yaml:"priority,omitempty"`
	Dependencies  []string `yaml:"dependencies,omitempty"`
	RequiredGates []string `yaml:"required_gates,omitempty"`
	Labels        []string `yaml:"labels,omitempty"`
}

// document is the top-level export shape.
type document struct {
	Issues []issueSnapshot `yaml:"issues"`
}

// Export writes every issue in st to w as YAML, sorted by ID (ListIssues
// already returns a deterministic order).
func Export(st store.Store, w io.Writer) error {
	issues, err := st.ListIssues()
	if err != nil {
		return err
	}

	doc := document{Issues: make([]issueSnapshot, 0, len(issues))}
	for _, issue := range issues {
		doc.Issues = append(doc.Issues, toSnapshot(issue))
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(doc)
}

func toSnapshot(issue *domain.Issue) issueSnapshot {
	return issueSnapshot{
		ID:            issue.ID,
		Title:         issue.Title,
		State:         string(issue.State),
		Priority:      string(issue.Priority),
		Dependencies:  issue.Dependencies,
		RequiredGates: issue.RequiredGates,
		Labels:        issue.Labels,
	}
}
