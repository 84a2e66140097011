package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harrison/agentflow/internal/models"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <request>...",
		Short: "Answer a request",
		Long: `Answer a request by running it through Assessment, Planning, Execution,
Evaluation and Synthesis.

The answer is printed on stdout; progress goes to stderr and the log directory.
If the run needs more information or a confirmation it is parked, and the
command prints the question and the token to resume it with.

Examples:
  agentflow run "What is 2+2?" --fixture fixtures/arithmetic.yaml
  agentflow run "Summarize the design" --doc DESIGN.md --command bin/provider
  agentflow run --timeout 5m --output answer.md "Compare Go error wrapping styles"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCommand,
	}

	cmd.Flags().StringArray("doc", nil, "Reference document for document-search nodes (repeatable)")
	cmd.Flags().Duration("timeout", 0, "Maximum run time (e.g. 30m); cancellation still yields an answer")
	cmd.Flags().String("output", "", "Also write the answer to this file")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	return cmd
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	docPaths, _ := cmd.Flags().GetStringArray("doc")
	docs, err := readDocuments(docPaths)
	if err != nil {
		return err
	}
	outputPath, _ := cmd.Flags().GetString("output")

	a, err := newApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.serveMetrics(ctx)

	runCtx, cancel := a.runContext(ctx)
	defer cancel()

	task := models.NewTask("", strings.Join(args, " "), nil)
	task.Documents = docs

	outcome, err := a.ctrl.Run(runCtx, task)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	return report(cmd.Context(), cmd.OutOrStdout(), outcome, outputPath)
}
