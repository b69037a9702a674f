package snapshot

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jitdev/jit/internal/domain"
	"github.com/jitdev/jit/internal/store"
)

func TestExportProducesYAMLWithEveryIssue(t *testing.T) {
	st := store.NewMemStore()
	if err := st.SaveIssue(&domain.Issue{ID: "a", Title: "first", State: domain.StateReady}); err != nil {
		t.Fatalf("SaveIssue: %v", err)
	}
	if err := st.SaveIssue(&domain.Issue{ID: "b", Title: "second", State: domain.StateBacklog, Dependencies: []string{"a"}}); err != nil {
		t.Fatalf("SaveIssue: %v", err)
	}

	var buf bytes.Buffer
	if err := Export(st, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"id: a", "id: b", "title: first", "dependencies:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q, got:\n%s", want, out)
		}
	}
}

func TestExportEmptyStoreProducesEmptyIssueList(t *testing.T) {
	st := store.NewMemStore()
	var buf bytes.Buffer
	if err := Export(st, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(buf.String(), "issues: []") {
		t.Errorf("expected an empty issues list, got:\n%s", buf.String())
	}
}
