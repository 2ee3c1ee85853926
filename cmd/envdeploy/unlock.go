package main

import (
	"context"
	"fmt"

	"envdeploy/internal/environment"

	"github.com/spf13/cobra"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Release stale locks",
	Long: `Recovery operation: remove lock markers left behind by dead
processes. Markers whose lock is still held by a running process are left
alone.`,
	Args: cobra.NoArgs,
	RunE: runUnlock,
}

func runUnlock(cmd *cobra.Command, args []string) error {
	return runManaged(cmd, func(ctx context.Context, m *environment.Manager) error {
		removed, err := m.UnlockAll()
		if err != nil {
			return err
		}
		fmt.Printf("removed %d stale lock(s)\n", len(removed))
		return nil
	})
}
