package main

import (
	"context"
	"fmt"

	"envdeploy/internal/environment"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialise the environment directory",
	Long: `Clone the master repository if it is absent and deploy every
available environment.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	return runManaged(cmd, func(ctx context.Context, m *environment.Manager) error {
		if err := m.Initialise(ctx); err != nil {
			return err
		}
		fmt.Println("Environment directory initialised")
		return nil
	})
}
