package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harrison/agentflow/internal/config"
	"github.com/harrison/agentflow/internal/controller"
	"github.com/harrison/agentflow/internal/filelock"
)

// NewResumeCommand creates the resume command
func NewResumeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <token>",
		Short: "Continue a parked run",
		Long: `Continue a run that was parked waiting for input.

Answer an information request with --answer, or a confirmation request with
--confirm yes|no. A token can be resumed once; 'agentflow pending' lists the
parked runs.

Examples:
  agentflow resume 3f2a... --answer "Paris"
  agentflow resume 9c41... --confirm no`,
		Args: cobra.ExactArgs(1),
		RunE: resumeCommand,
	}

	cmd.Flags().String("answer", "", "Reply to an information request")
	cmd.Flags().String("confirm", "", "Reply to a confirmation request: yes or no")
	cmd.Flags().Duration("timeout", 0, "Maximum run time (e.g. 30m)")
	cmd.Flags().String("output", "", "Also write the answer to this file")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	return cmd
}

// parseAnswer builds the controller answer from exactly one of --answer and
// --confirm.
func parseAnswer(cmd *cobra.Command) (controller.Answer, error) {
	hasAnswer, hasConfirm := changed(cmd, "answer"), changed(cmd, "confirm")
	switch {
	case hasAnswer && hasConfirm:
		return controller.Answer{}, errors.New("cannot use both --answer and --confirm")
	case hasAnswer:
		text, _ := cmd.Flags().GetString("answer")
		if strings.TrimSpace(text) == "" {
			return controller.Answer{}, errors.New("--answer must not be empty")
		}
		return controller.Answer{Text: text}, nil
	case hasConfirm:
		v, _ := cmd.Flags().GetString("confirm")
		var ok bool
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "yes", "y", "true":
			ok = true
		case "no", "n", "false":
			ok = false
		default:
			return controller.Answer{}, fmt.Errorf("invalid --confirm value %q, must be yes or no", v)
		}
		return controller.Answer{Confirm: &ok}, nil
	}
	return controller.Answer{}, errors.New("one of --answer or --confirm is required")
}

func resumeCommand(cmd *cobra.Command, args []string) error {
	token := args[0]
	answer, err := parseAnswer(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	outputPath, _ := cmd.Flags().GetString("output")

	lockDir, err := config.GetLockDir()
	if err != nil {
		return err
	}
	lock := filelock.ForToken(lockDir, token)
	if err := lock.TryLock(); err != nil {
		if errors.Is(err, filelock.ErrLocked) {
			return fmt.Errorf("run %s is already being resumed", token)
		}
		return err
	}
	defer lock.Unlock()

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

	outcome, err := a.ctrl.Resume(runCtx, token, answer)
	if err != nil {
		if errors.Is(err, controller.ErrUnknownToken) {
			return fmt.Errorf("no parked run with token %s (already resumed?)", token)
		}
		return fmt.Errorf("resume failed: %w", err)
	}
	return report(cmd.Context(), cmd.OutOrStdout(), outcome, outputPath)
}
