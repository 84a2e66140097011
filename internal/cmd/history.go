package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/agentflow/internal/controller"
	"github.com/harrison/agentflow/internal/models"
	"github.com/harrison/agentflow/internal/store"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		Long:  `List the most recent finished runs with their framing, verdict and node counts.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			printHistory(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs to show")

	return cmd
}

// NewPendingCommand creates the pending command
func NewPendingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List parked runs waiting for input",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			pending, err := st.ListPending(cmd.Context())
			if err != nil {
				return fmt.Errorf("list pending runs: %w", err)
			}
			printPending(cmd.OutOrStdout(), pending)
			return nil
		},
	}
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func printHistory(out io.Writer, runs []controller.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return
	}

	bold := color.New(color.Bold)
	fmt.Fprintln(out, bold.Sprintf("%-19s  %-17s  %-13s  %-9s  %5s  %8s  %s", "FINISHED", "FRAMING", "VERDICT", "TIER", "NODES", "DURATION", "REQUEST"))
	for _, r := range runs {
		framing := fmt.Sprintf("%-17s", r.Framing)
		if r.Framing == models.FramingAnswer {
			framing = color.GreenString(framing)
		} else {
			framing = color.YellowString(framing)
		}
		nodes := fmt.Sprintf("%d", r.Nodes)
		if r.Failed > 0 {
			nodes = fmt.Sprintf("%d/%d", r.Nodes-r.Failed, r.Nodes)
		}
		fmt.Fprintf(out, "%-19s  %s  %-13s  %-9s  %5s  %8s  %s\n",
			r.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			framing,
			r.Judgement,
			r.Tier,
			nodes,
			r.Duration.Round(time.Millisecond),
			truncate(r.Request, 60),
		)
	}
}

func printPending(out io.Writer, pending []store.Pending) {
	if len(pending) == 0 {
		fmt.Fprintln(out, "No parked runs.")
		return
	}
	for _, p := range pending {
		fmt.Fprintf(out, "%s  %s  %s\n", color.New(color.Bold).Sprint(p.Token), p.Kind, p.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "    %s\n", truncate(p.Prompt, 100))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
