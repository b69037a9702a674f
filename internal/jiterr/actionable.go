package jiterr

import (
	"fmt"
	"strings"
)

// Actionable wraps an error message with diagnostic causes and remediation
// steps. It is surfaced by the CLI collaborator, never produced or consumed
// by the core packages themselves.
type Actionable struct {
	message     string
	causes      []string
	remediation []string
}

// NewActionable starts an actionable error with the given message.
func NewActionable(message string) *Actionable {
	return &Actionable{message: message}
}

// WithCause appends a possible cause and returns the receiver for chaining.
func (a *Actionable) WithCause(cause string) *Actionable {
	a.causes = append(a.causes, cause)
	return a
}

// WithRemedy appends a remediation step and returns the receiver for
// chaining.
func (a *Actionable) WithRemedy(remedy string) *Actionable {
	a.remediation = append(a.remediation, remedy)
	return a
}

func (a *Actionable) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error: %s\n", a.message)

	if len(a.causes) > 0 {
		b.WriteString("\nPossible causes:\n")
		for _, c := range a.causes {
			fmt.Fprintf(&b, "  - %s\n", c)
		}
	}

	if len(a.remediation) > 0 {
		b.WriteString("\nTo fix:\n")
		for _, r := range a.remediation {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	}

	return b.String()
}

// LeaseNotFound builds the standard actionable error for a missing lease.
func LeaseNotFound(leaseID string) *Actionable {
	return NewActionable(fmt.Sprintf("lease %s not found", leaseID)).
		WithCause("the lease may have expired").
		WithCause("the lease ID may be incorrect").
		WithCause("the lease may have been released or evicted").
		WithRemedy(fmt.Sprintf("double check the lease id: jit claim status %s", leaseID))
}

// AlreadyClaimed builds the standard actionable error for a claim conflict.
func AlreadyClaimed(issueID, agentID, expiresInfo string) *Actionable {
	return NewActionable(fmt.Sprintf("issue %s already claimed by %s %s", issueID, agentID, expiresInfo)).
		WithCause("another agent is currently working on this issue").
		WithCause("the previous agent may have crashed without releasing the lease").
		WithRemedy("force-evict with a reason if you are certain it is safe: jit claim evict <lease-id> --reason '<why>'")
}
