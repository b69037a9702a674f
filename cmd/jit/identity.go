package main

import (
	"github.com/spf13/cobra"

	"github.com/jitdev/jit/internal/identity"
)

var identityCmd = &cobra.Command{
	Use:     "identity",
	Short:   "Show this worktree's identity, creating it on first use",
	GroupID: groupQuery,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(agentFlag)
		if err != nil {
			return err
		}
		branch, err := currentBranch(a.paths.WorktreeRoot)
		if err != nil {
			return err
		}
		id, err := identity.LoadOrCreate(a.paths.PrivateDir, a.paths.WorktreeRoot, branch)
		if err != nil {
			return err
		}
		cmd.Printf("worktree_id: %s\n", id.WorktreeID)
		cmd.Printf("branch: %s\n", id.Branch)
		cmd.Printf("root_path: %s\n", id.RootPath)
		if id.RelocatedAt != nil {
			cmd.Printf("relocated_at: %s\n", id.RelocatedAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(identityCmd)
}
