package main

import (
	"context"
	"fmt"

	"envdeploy/internal/environment"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stale environment clones",
	Long: `Remove versioned clone directories that are no longer the target of
any environment symlink. Stale clones are left behind by interrupted runs
and by completed updates, which defer deletion of the superseded copy.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func runCleanup(cmd *cobra.Command, args []string) error {
	return runManaged(cmd, func(ctx context.Context, m *environment.Manager) error {
		removed, err := m.Cleanup()
		if err != nil {
			return err
		}
		for _, path := range removed {
			fmt.Printf("removed %s\n", path)
		}
		return nil
	})
}
