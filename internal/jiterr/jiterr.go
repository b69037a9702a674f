// Package jiterr declares the closed set of error kinds the core surfaces
// to its callers. All kinds are sentinel values compared with errors.Is;
// call sites wrap them with fmt.Errorf("...: %w", ErrX) to attach context.
package jiterr

import "errors"

var (
	// ErrNotFound means an issue, gate, lease, or other referenced entity
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAmbiguousID means a prefix matched more than one ID.
	ErrAmbiguousID = errors.New("ambiguous id")

	// ErrCycleDetected means adding a dependency edge would create a cycle.
	ErrCycleDetected = errors.New("cycle detected")

	// ErrRedundantEdge means a dependency edge is implied by a longer path
	// and is reported by the validator as removable.
	ErrRedundantEdge = errors.New("redundant edge")

	// ErrAlreadyClaimed means an active lease already exists on the issue.
	ErrAlreadyClaimed = errors.New("already claimed")

	// ErrLeaseStale means the lease's heartbeat is older than the stale
	// threshold.
	ErrLeaseStale = errors.New("lease stale")

	// ErrLeaseExpired means the lease's ttl has elapsed.
	ErrLeaseExpired = errors.New("lease expired")

	// ErrLeaseMismatch means the caller does not own the lease it is
	// trying to renew, release, or rely on.
	ErrLeaseMismatch = errors.New("lease mismatch")

	// ErrLockTimeout means the claims lock could not be acquired within
	// its timeout.
	ErrLockTimeout = errors.New("lock timeout")

	// ErrIO wraps a filesystem failure that is not otherwise classified.
	ErrIO = errors.New("io error")

	// ErrCorruptData means an on-disk file failed to parse. Never repaired
	// implicitly.
	ErrCorruptData = errors.New("corrupt data")

	// ErrNotInRepository means no git directory is discoverable from the
	// starting directory.
	ErrNotInRepository = errors.New("not in a git repository")

	// ErrPermissionDenied covers lease-policy violations and other
	// authorization failures.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrAlreadyExists means the caller tried to create something (a gate
	// key, a claim) that already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument means the caller supplied a malformed value (an
	// agent ID without a type prefix, an empty evict reason, and so on).
	ErrInvalidArgument = errors.New("invalid argument")
)

// ExitCode maps an error, as returned by the command facade, to the
// process exit code the CLI collaborator should use.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidArgument):
		return 2
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotInRepository):
		return 3
	case errors.Is(err, ErrCycleDetected), errors.Is(err, ErrRedundantEdge):
		return 4
	case errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrLeaseStale),
		errors.Is(err, ErrLeaseExpired),
		errors.Is(err, ErrLeaseMismatch):
		return 5
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrAlreadyClaimed):
		return 6
	case errors.Is(err, ErrIO), errors.Is(err, ErrCorruptData), errors.Is(err, ErrLockTimeout):
		return 10
	default:
		return 1
	}
}
