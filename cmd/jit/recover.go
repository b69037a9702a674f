package main

import (
	"github.com/spf13/cobra"
)

var recoverCmd = &cobra.Command{
	Use:     "recover",
	Short:   "Sweep orphaned temp files, stale locks, and rebuild the claims index if needed",
	GroupID: groupMaintain,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(agentFlag)
		if err != nil {
			return err
		}
		summary, err := a.recover.Run()
		if err != nil {
			return err
		}
		cmd.Printf("orphan temp files removed: %d\n", len(summary.OrphanTempFilesRemoved))
		cmd.Printf("stale locks removed: %d\n", len(summary.StaleLocksRemoved))
		cmd.Printf("age-stale locks left for review: %d\n", len(summary.AgeStaleLocks))
		cmd.Printf("claims index rebuilt: %v\n", summary.IndexRebuilt)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}
