package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/jitdev/jit/internal/validator"
)

// errValidationFailed signals that every check ran without error but at
// least one reported invalid; it carries no jiterr sentinel since it is
// not a failure of the tool itself, so Execute maps it to the generic
// exit code 1.
var errValidationFailed = errors.New("validation reported at least one failing check")

var (
	validateFix bool
	validateDry bool
)

var validateCmd = &cobra.Command{
	Use:     "validate",
	Short:   "Run the consistency checks (references, DAG, leases, ...)",
	GroupID: groupMaintain,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(agentFlag)
		if err != nil {
			return err
		}
		report, err := a.valid.Validate(validator.Options{Fix: validateFix, Dry: validateDry})
		if err != nil {
			return err
		}
		for _, res := range report.Results {
			status := "ok"
			if !res.Valid {
				status = "FAIL"
			}
			cmd.Printf("[%s] %-20s %s\n", status, res.Check, res.Message)
		}
		if !report.Valid() {
			cmd.SilenceUsage = true
			return errValidationFailed
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&validateFix, "fix", false, "apply safe fixes")
	validateCmd.Flags().BoolVar(&validateDry, "dry-run", false, "preview fixes without applying them (requires --fix)")
}
