package main

import (
	"context"
	"fmt"

	"envdeploy/internal/environment"

	"github.com/spf13/cobra"
)

var (
	updateForce    bool
	updateAllForce bool
)

var updateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Update a single environment",
	Long: `Deploy or refresh one environment from its branch in the master
repository. Already up-to-date environments are left untouched unless
--force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

var updateAllCmd = &cobra.Command{
	Use:   "update-all",
	Short: "Update every environment",
	Long: `Deploy missing environments, refresh stale ones, and retire
environments whose branch no longer exists upstream. Individual failures
are logged and do not abort the remaining environments; the command exits
non-zero if any environment failed.`,
	Args: cobra.NoArgs,
	RunE: runUpdateAll,
}

func init() {
	updateCmd.Flags().BoolVarP(&updateForce, "force", "f", false, "Redeploy even if already up to date")
	updateAllCmd.Flags().BoolVarP(&updateAllForce, "force", "f", false, "Redeploy even if already up to date")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	return runManaged(cmd, func(ctx context.Context, m *environment.Manager) error {
		result, err := m.Update(ctx, args[0], updateForce)
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	})
}

func runUpdateAll(cmd *cobra.Command, args []string) error {
	return runManaged(cmd, func(ctx context.Context, m *environment.Manager) error {
		return m.UpdateAll(ctx, updateAllForce)
	})
}

func printResult(result *environment.Result) {
	switch result.Action {
	case environment.ActionUpToDate:
		fmt.Printf("%s already up to date at %s\n", result.Environment, result.Revision)
	case environment.ActionWouldDeploy:
		fmt.Printf("would deploy %s at %s (noop)\n", result.Environment, result.Revision)
	case environment.ActionDeployed:
		fmt.Printf("deployed %s at %s\n", result.Environment, result.Revision)
	default:
		fmt.Printf("%s %s\n", result.Action, result.Environment)
	}
}
