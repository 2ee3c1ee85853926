package main

import (
	"context"
	"fmt"

	"envdeploy/internal/environment"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	listAvailable bool
	listInstalled bool
	listMissing   bool
	listObsolete  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List environments",
	Long: `List environments by reconciliation state.

Without a selector flag, prints a full status overview. Available, missing
and obsolete listings fetch from the master repository first; installed is
purely local.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listAvailable, "available", false, "List environments that exist as branches upstream")
	listCmd.Flags().BoolVar(&listInstalled, "installed", false, "List environments deployed on this host")
	listCmd.Flags().BoolVar(&listMissing, "missing", false, "List environments available upstream but not installed")
	listCmd.Flags().BoolVar(&listObsolete, "obsolete", false, "List environments installed but no longer available upstream")
	listCmd.MarkFlagsMutuallyExclusive("available", "installed", "missing", "obsolete")
}

func runList(cmd *cobra.Command, args []string) error {
	return runManaged(cmd, func(ctx context.Context, m *environment.Manager) error {
		var names []string
		var err error

		switch {
		case listAvailable:
			names, err = m.ListAvailable(ctx)
		case listInstalled:
			names, err = m.ListInstalled()
		case listMissing:
			names, err = m.ListMissing(ctx)
		case listObsolete:
			names, err = m.ListObsolete(ctx)
		default:
			return printStatus(ctx, m)
		}

		if err != nil {
			return err
		}

		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	})
}

func printStatus(ctx context.Context, m *environment.Manager) error {
	sets, err := m.Status(ctx)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	bold.Println("Available:")
	for _, name := range sets.Available {
		fmt.Printf("  %s\n", name)
	}

	bold.Println("Installed:")
	for _, name := range sets.Installed {
		green.Printf("  %s\n", name)
	}

	bold.Println("Missing:")
	for _, name := range sets.Missing {
		yellow.Printf("  %s\n", name)
	}

	bold.Println("Obsolete:")
	for _, name := range sets.Obsolete {
		red.Printf("  %s\n", name)
	}

	return nil
}
