package main

import (
	"github.com/spf13/cobra"

	"github.com/jitdev/jit/internal/domain"
)

var gateCmd = &cobra.Command{
	Use:     "gate",
	Short:   "Define gates and record pass/fail outcomes",
	GroupID: groupMutate,
}

func init() {
	rootCmd.AddCommand(gateCmd)
	gateCmd.AddCommand(gateDefineCmd, gatePassCmd, gateFailCmd, gateRunCmd)
}

var (
	gateTitle      string
	gateStage      string
	gateMode       string
	gateCommand    string
	gateTimeoutSecs int
)

var gateDefineCmd = &cobra.Command{
	Use:   "define <key>",
	Short: "Register or replace a gate definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(agentFlag)
		if err != nil {
			return err
		}
		gate := &domain.GateDefinition{
			Key:   args[0],
			Title: gateTitle,
			Stage: domain.GateStage(gateStage),
			Mode:  domain.GateMode(gateMode),
		}
		if gate.Mode == domain.GateModeAuto {
			gate.Checker = &domain.Checker{Command: gateCommand, TimeoutSecs: gateTimeoutSecs}
		}
		return a.facade.DefineGate(gate)
	},
}

func init() {
	gateDefineCmd.Flags().StringVar(&gateTitle, "title", "", "gate title")
	gateDefineCmd.Flags().StringVar(&gateStage, "stage", string(domain.GateStagePrecheck), "precheck|postcheck")
	gateDefineCmd.Flags().StringVar(&gateMode, "mode", string(domain.GateModeManual), "manual|auto")
	gateDefineCmd.Flags().StringVar(&gateCommand, "command", "", "checker command (auto gates only)")
	gateDefineCmd.Flags().IntVar(&gateTimeoutSecs, "timeout", 60, "checker timeout in seconds (auto gates only)")
}

var gatePassCmd = &cobra.Command{
	Use:   "pass <issue-id> <gate-key>",
	Short: "Record a gate as passed on an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(agentFlag)
		if err != nil {
			return err
		}
		issue, err := a.facade.PassGate(args[0], args[1], a.agentID)
		if err != nil {
			return err
		}
		cmd.Println(issue.ID)
		return nil
	},
}

var gateFailCmd = &cobra.Command{
	Use:   "fail <issue-id> <gate-key>",
	Short: "Record a gate as failed on an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(agentFlag)
		if err != nil {
			return err
		}
		issue, err := a.facade.FailGate(args[0], args[1], a.agentID)
		if err != nil {
			return err
		}
		cmd.Println(issue.ID)
		return nil
	},
}

var gateRunCmd = &cobra.Command{
	Use:   "run <issue-id> <gate-key>",
	Short: "Run an auto gate's checker and record the outcome",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(agentFlag)
		if err != nil {
			return err
		}
		issue, result, err := a.facade.RunGate(args[0], args[1], a.agentID)
		if err != nil {
			return err
		}
		cmd.Printf("%s  gate=%s status=%s exit=%d\n", issue.ID, result.GateKey, result.Status, result.ExitCode)
		return nil
	},
}
