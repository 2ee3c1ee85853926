package main

import (
	"context"
	"fmt"
	"time"

	"envdeploy/internal/environment"
	"envdeploy/internal/history"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [name]",
	Short: "Show recent deployments",
	Long: `Show the deployment ledger, newest first. With a name argument,
only that environment's deployments are shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of records to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	return runManaged(cmd, func(ctx context.Context, m *environment.Manager) error {
		hist := m.History()
		if hist == nil {
			return fmt.Errorf("deployment history is not available in noop mode")
		}

		name := ""
		if len(args) > 0 {
			name = args[0]
		}

		records, err := hist.Recent(ctx, name, historyLimit)
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen)
		red := color.New(color.FgRed)

		for _, record := range records {
			status := green.Sprint(record.Status)
			if record.Status == history.StatusFailed {
				status = red.Sprint(record.Status)
			}

			revision := record.Revision
			if len(revision) > 12 {
				revision = revision[:12]
			}

			fmt.Printf("%s  %-10s %-8s %-12s %s (%.1fs)\n",
				record.StartedAt.Local().Format(time.RFC3339),
				record.Action,
				status,
				revision,
				record.Environment,
				record.DurationSeconds,
			)
			if record.ErrorMessage != "" {
				fmt.Printf("    %s\n", record.ErrorMessage)
			}
		}

		return nil
	})
}
