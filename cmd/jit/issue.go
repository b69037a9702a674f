package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jitdev/jit/internal/domain"
	"github.com/jitdev/jit/internal/facade"
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Create, edit, and query issues",
	GroupID: groupMutate,
}

func init() {
	rootCmd.AddCommand(issueCmd)
	issueCmd.AddCommand(issueCreateCmd, issueUpdateCmd, issueAddDepCmd, issueRemoveDepCmd,
		issueBreakdownCmd, issueReadyCmd, issueBlockedCmd, issueLabelCmd)
}

var (
	createTitle        string
	createDescription  string
	createPriority     string
	createDependencies []string
	createGates        []string
	createLabels       []string
)

var issueCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new issue in Backlog",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(agentFlag)
		if err != nil {
			return err
		}
		issue, err := a.facade.CreateIssue(facade.CreateIssueParams{
			Title:        createTitle,
			Description:  createDescription,
			Priority:     domain.Priority(createPriority),
			Dependencies: createDependencies,
			RequiredGates: createGates,
			Labels:       createLabels,
		})
		if err != nil {
			return err
		}
		cmd.Println(issue.ID)
		return nil
	},
}

func init() {
	issueCreateCmd.Flags().StringVar(&createTitle, "title", "", "issue title (required)")
	issueCreateCmd.Flags().StringVar(&createDescription, "description", "", "issue description")
	issueCreateCmd.Flags().StringVar(&createPriority, "priority", "", "low|medium|high|urgent")
	issueCreateCmd.Flags().StringSliceVar(&createDependencies, "depends-on", nil, "dependency issue IDs")
	issueCreateCmd.Flags().StringSliceVar(&createGates, "require-gate", nil, "required gate keys")
	issueCreateCmd.Flags().StringSliceVar(&createLabels, "label", nil, "labels in namespace:value form")
	_ = issueCreateCmd.MarkFlagRequired("title")
}

var (
	updateTitle       string
	updateDescription string
	updateState       string
	updatePriority    string
	updateAssignee    string
)

var issueUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update an issue's fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(agentFlag)
		if err != nil {
			return err
		}
		params := facade.UpdateIssueParams{}
		if cmd.Flags().Changed("title") {
			params.Title = &updateTitle
		}
		if cmd.Flags().Changed("description") {
			params.Description = &updateDescription
		}
		if cmd.Flags().Changed("state") {
			state := domain.State(updateState)
			params.State = &state
		}
		if cmd.Flags().Changed("priority") {
			priority := domain.Priority(updatePriority)
			params.Priority = &priority
		}
		if cmd.Flags().Changed("assignee") {
			params.Assignee = &updateAssignee
		}
		issue, err := a.facade.UpdateIssue(args[0], a.agentID, params)
		if err != nil {
			return err
		}
		cmd.Println(issue.ID)
		return nil
	},
}

func init() {
	issueUpdateCmd.Flags().StringVar(&updateTitle, "title", "", "new title")
	issueUpdateCmd.Flags().StringVar(&updateDescription, "description", "", "new description")
	issueUpdateCmd.Flags().StringVar(&updateState, "state", "", "new state")
	issueUpdateCmd.Flags().StringVar(&updatePriority, "priority", "", "new priority")
	issueUpdateCmd.Flags().StringVar(&updateAssignee, "assignee", "", "new assignee")
}

var issueAddDepCmd = &cobra.Command{
	Use:   "add-dependency <id> <depends-on-id>",
	Short: "Add a dependency edge",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(agentFlag)
		if err != nil {
			return err
		}
		return a.facade.AddDependency(args[0], args[1], a.agentID)
	},
}

var issueRemoveDepCmd = &cobra.Command{
	Use:   "remove-dependency <id> <depends-on-id>",
	Short: "Remove a dependency edge",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(agentFlag)
		if err != nil {
			return err
		}
		return a.facade.RemoveDependency(args[0], args[1], a.agentID)
	},
}

var breakdownTitles []string

var issueBreakdownCmd = &cobra.Command{
	Use:   "breakdown <id>",
	Short: "Split an issue into smaller part_of children",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(agentFlag)
		if err != nil {
			return err
		}
		children := make([]facade.ChildSpec, 0, len(breakdownTitles))
		for _, title := range breakdownTitles {
			children = append(children, facade.ChildSpec{Title: title})
		}
		created, err := a.facade.BreakdownIssue(args[0], a.agentID, children)
		if err != nil {
			return err
		}
		for _, child := range created {
			cmd.Println(child.ID)
		}
		return nil
	},
}

func init() {
	issueBreakdownCmd.Flags().StringSliceVar(&breakdownTitles, "child", nil, "title of a child issue to create (repeatable)")
	_ = issueBreakdownCmd.MarkFlagRequired("child")
}

var issueReadyCmd = &cobra.Command{
	Use:     "ready",
	Short:   "List issues in the Ready state",
	GroupID: groupQuery,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(agentFlag)
		if err != nil {
			return err
		}
		issues, err := a.facade.QueryReady()
		if err != nil {
			return err
		}
		printIssues(cmd, issues)
		return nil
	},
}

var issueBlockedCmd = &cobra.Command{
	Use:     "blocked",
	Short:   "List issues blocked on a dependency or gate",
	GroupID: groupQuery,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(agentFlag)
		if err != nil {
			return err
		}
		issues, err := a.facade.QueryBlocked()
		if err != nil {
			return err
		}
		printIssues(cmd, issues)
		return nil
	},
}

var issueLabelCmd = &cobra.Command{
	Use:     "by-label <label>",
	Short:   "List issues carrying an exact label",
	Args:    cobra.ExactArgs(1),
	GroupID: groupQuery,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(agentFlag)
		if err != nil {
			return err
		}
		issues, err := a.facade.QueryByLabel(args[0])
		if err != nil {
			return err
		}
		printIssues(cmd, issues)
		return nil
	},
}

func printIssues(cmd *cobra.Command, issues []*domain.Issue) {
	for _, issue := range issues {
		labels := ""
		if len(issue.Labels) > 0 {
			labels = "  [" + strings.Join(issue.Labels, ", ") + "]"
		}
		cmd.Println(fmt.Sprintf("%s  %-12s %s%s", issue.ID, issue.State, issue.Title, labels))
	}
}
