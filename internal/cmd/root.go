// Package cmd implements the agentflow command line.
package cmd

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for agentflow
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agentflow",
		Short: "Phased multi-agent question answering",
		Long: `agentflow answers a request by moving it through five phases:
Assessment, Planning, Execution, Evaluation and Synthesis.

Runs that need more information or a confirmation are parked and can be
continued later with 'agentflow resume <token>'.

Configuration is loaded from .agentflow/config.yaml if present.
CLI flags override configuration file settings.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			fd := os.Stderr.Fd()
			if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
				color.NoColor = true
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to config file (default: .agentflow/config.yaml)")
	flags.String("log-level", "", "Log level: trace, debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files")
	flags.Bool("verbose", false, "Show node-level progress (same as --log-level debug)")
	flags.String("fixture", "", "Serve every capability from a YAML fixture file")
	flags.String("command", "", "Serve every capability from an executable")

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewResumeCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewHistoryCommand())
	cmd.AddCommand(NewPendingCommand())

	return cmd
}
