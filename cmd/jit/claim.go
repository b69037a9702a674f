package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jitdev/jit/internal/claims"
	"github.com/jitdev/jit/internal/identity"
	"github.com/jitdev/jit/internal/jiterr"
)

var claimCmd = &cobra.Command{
	Use:     "claim",
	Short:   "Acquire, renew, release, and inspect leases",
	GroupID: groupMutate,
}

func init() {
	rootCmd.AddCommand(claimCmd)
	claimCmd.AddCommand(claimAcquireCmd, claimRenewCmd, claimReleaseCmd, claimEvictCmd, claimStatusCmd)
}

// requireAgent resolves the agent identity or fails loudly: unlike
// read-only queries, every claim operation needs a real agent on whose
// behalf the lease is held.
func requireAgent(a *app) (string, error) {
	if a.agentID == "" {
		return "", fmt.Errorf("no agent identity resolved (pass --agent, set JIT_AGENT_ID, or write agent.toml): %w", jiterr.ErrNotFound)
	}
	return a.agentID, nil
}

// reportLeaseError prints actionable guidance for a lease lookup that
// came back not-found, then returns err unchanged so the caller still
// exits with jiterr.ExitCode's mapped status.
func reportLeaseError(cmd *cobra.Command, leaseID string, err error) error {
	if errors.Is(err, jiterr.ErrNotFound) {
		cmd.PrintErr(jiterr.LeaseNotFound(leaseID).Error())
	}
	return err
}

var claimTTLSecs int64

var claimAcquireCmd = &cobra.Command{
	Use:   "acquire <issue-id>",
	Short: "Acquire an exclusive lease on an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(agentFlag)
		if err != nil {
			return err
		}
		agentID, err := requireAgent(a)
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
		lease, err := a.coord.Acquire(args[0], claimTTLSecs, agentID, id.WorktreeID, branch)
		if err != nil {
			var conflict *claims.AlreadyClaimedError
			if errors.As(err, &conflict) {
				expiresInfo := "(no expiry)"
				if conflict.ExpiresAt != nil {
					expiresInfo = fmt.Sprintf("(expires %s)", conflict.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
				}
				cmd.PrintErr(jiterr.AlreadyClaimed(conflict.IssueID, conflict.AgentID, expiresInfo).Error())
			}
			return err
		}
		cmd.Println(lease.LeaseID)
		return nil
	},
}

func init() {
	claimAcquireCmd.Flags().Int64Var(&claimTTLSecs, "ttl", 3600, "lease ttl in seconds; 0 means indefinite (still goes stale without heartbeats)")
}

var claimNewTTLSecs int64

var claimRenewCmd = &cobra.Command{
	Use:   "renew <lease-id>",
	Short: "Heartbeat or extend a held lease",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(agentFlag)
		if err != nil {
			return err
		}
		agentID, err := requireAgent(a)
		if err != nil {
			return err
		}
		var newTTL *int64
		if cmd.Flags().Changed("ttl") {
			newTTL = &claimNewTTLSecs
		}
		return reportLeaseError(cmd, args[0], a.coord.Renew(args[0], agentID, newTTL))
	},
}

func init() {
	claimRenewCmd.Flags().Int64Var(&claimNewTTLSecs, "ttl", 0, "new ttl in seconds; omit to only heartbeat")
}

var claimForce bool

var claimReleaseCmd = &cobra.Command{
	Use:   "release <lease-id>",
	Short: "Release a held lease",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(agentFlag)
		if err != nil {
			return err
		}
		agentID, err := requireAgent(a)
		if err != nil {
			return err
		}
		return reportLeaseError(cmd, args[0], a.coord.Release(args[0], agentID, claimForce))
	},
}

func init() {
	claimReleaseCmd.Flags().BoolVar(&claimForce, "force", false, "release even if not the owning agent (operator override)")
}

var evictReason string

var claimEvictCmd = &cobra.Command{
	Use:   "evict <lease-id>",
	Short: "Forcibly evict a lease regardless of owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(agentFlag)
		if err != nil {
			return err
		}
		return reportLeaseError(cmd, args[0], a.coord.Evict(args[0], evictReason))
	},
}

func init() {
	claimEvictCmd.Flags().StringVar(&evictReason, "reason", "", "operator-supplied reason (required)")
	_ = claimEvictCmd.MarkFlagRequired("reason")
}

var claimStatusCmd = &cobra.Command{
	Use:   "status <lease-id>",
	Short: "Show a lease's resolved status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(agentFlag)
		if err != nil {
			return err
		}
		lease, status, err := a.coord.Status(args[0])
		if err != nil {
			return reportLeaseError(cmd, args[0], err)
		}
		cmd.Printf("%s  issue=%s agent=%s status=%s\n", lease.LeaseID, lease.IssueID, lease.AgentID, status)
		return nil
	},
}
