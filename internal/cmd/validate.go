package cmd

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/agentflow/internal/display"
	"github.com/harrison/agentflow/internal/models"
	"github.com/harrison/agentflow/internal/parser"
	"github.com/harrison/agentflow/internal/validation"
)

// errInvalidPlan is returned after the violations have been printed.
var errInvalidPlan = errors.New("plan is invalid")

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plan-file>",
		Short: "Validate a plan file",
		Long: `Parse and validate a plan file (Markdown or YAML), checking for:
  - Dependencies on orders that no node has
  - Dependencies that are not on an earlier order
  - Research, document-search and direct-qa nodes without a query
  - Unknown node types
  - More than 2 research nodes in one order group (warning)

Prints the order groups the scheduler would run.

Exit code: 0 if valid, 1 if errors found`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validatePlan(args[0], cmd.OutOrStdout())
		},
	}

	return cmd
}

// validatePlan parses and validates one plan file, writing a report to out.
func validatePlan(path string, out io.Writer) error {
	plan, err := parser.ParseFile(path)
	if err != nil {
		fmt.Fprintf(out, "%s %v\n", color.RedString("✗"), err)
		return err
	}

	groups := plan.Groups()
	fmt.Fprintf(out, "Parsed %d nodes in %d groups from %s\n", len(plan.Nodes), len(groups), path)
	if plan.Task != "" {
		fmt.Fprintf(out, "Task: %s\n", plan.Task)
	}
	printGroups(out, groups)

	result := validation.ValidatePlan(plan)
	if len(result.Warnings) > 0 {
		fmt.Fprintln(out)
	}
	for _, v := range result.Warnings {
		display.ForViolation(v, plan).Display(out)
	}
	if !result.OK() {
		fmt.Fprintf(out, "\n%s Validation failed with %d error(s):\n", color.RedString("✗"), len(result.Errors))
		for _, v := range result.Errors {
			fmt.Fprintf(out, "  - %s\n", v.Error())
		}
		return errInvalidPlan
	}

	fmt.Fprintf(out, "\n%s Plan is valid\n", color.GreenString("✓"))
	return nil
}

func printGroups(out io.Writer, groups []models.Group) {
	for _, g := range groups {
		fmt.Fprintf(out, "\n%s\n", color.New(color.Bold).Sprint(g.Name()))
		for _, n := range g.Nodes {
			line := fmt.Sprintf("  %-4s %-17s", fmt.Sprintf("#%d", n.ID), n.Type)
			if n.Purpose != "" {
				line += " " + n.Purpose
			}
			if len(n.Dependencies) > 0 {
				deps := append([]int(nil), n.Dependencies...)
				sort.Ints(deps)
				line += fmt.Sprintf(" (after %v)", deps)
			}
			fmt.Fprintln(out, line)
		}
	}
}
