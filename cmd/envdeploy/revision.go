package main

import (
	"context"
	"fmt"

	"envdeploy/internal/environment"

	"github.com/spf13/cobra"
)

var revisionCmd = &cobra.Command{
	Use:   "revision <name>",
	Short: "Show the installed revision of an environment",
	Args:  cobra.ExactArgs(1),
	RunE:  runRevision,
}

func runRevision(cmd *cobra.Command, args []string) error {
	return runManaged(cmd, func(ctx context.Context, m *environment.Manager) error {
		revision, err := m.Revision(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(revision)
		return nil
	})
}
