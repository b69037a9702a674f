package main

import (
	"github.com/spf13/cobra"

	"github.com/jitdev/jit/internal/jiterr"
)

const (
	groupQuery     = "query"
	groupMutate    = "mutate"
	groupMaintain  = "maintain"
)

var agentFlag string

var rootCmd = &cobra.Command{
	Use:   "jit",
	Short: "Repository-local concurrent issue tracker",
	Long: `jit tracks issues, dependencies, and gates as plain files inside a
git repository, coordinating concurrent agents and humans across worktrees
through short-lived leases instead of a server process.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&agentFlag, "agent", "", "agent identity (type:identifier); overrides JIT_AGENT_ID and agent.toml")
	rootCmd.AddGroup(
		&cobra.Group{ID: groupQuery, Title: "Query Commands:"},
		&cobra.Group{ID: groupMutate, Title: "Mutation Commands:"},
		&cobra.Group{ID: groupMaintain, Title: "Maintenance Commands:"},
	)
}

// Execute runs the root command and maps any returned error to a process
// exit code via jiterr.ExitCode. Cobra has already printed the error by
// the time we see it here.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return jiterr.ExitCode(unwrapCobra(err))
	}
	return 0
}

// unwrapCobra is a no-op today; it exists as the single seam where a
// future cobra version's error wrapping would be peeled back before
// jiterr.ExitCode inspects it.
func unwrapCobra(err error) error { return err }
