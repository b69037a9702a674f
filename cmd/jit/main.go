/*
jit is a repository-local, filesystem-only issue tracker for teams of
agents and humans working out of multiple git worktrees of the same
repository. It coordinates who is allowed to touch what through
short-lived leases rather than a server process.

Usage:

	jit <command> [arguments]

Common commands:

	jit issue create     Create an issue
	jit claim acquire    Acquire a lease on an issue
	jit validate         Run the consistency checks
	jit recover          Sweep orphaned locks and temp files

See 'jit help <command>' for more information on a specific command.
*/
package main

import "os"

func main() {
	os.Exit(Execute())
}
