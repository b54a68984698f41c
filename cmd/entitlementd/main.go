package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/orris-inc/entitlementsync/internal/interfaces/cli/check"
	"github.com/orris-inc/entitlementsync/internal/interfaces/cli/history"
	"github.com/orris-inc/entitlementsync/internal/interfaces/cli/server"
	"github.com/orris-inc/entitlementsync/internal/interfaces/cli/versioncmd"
	"github.com/orris-inc/entitlementsync/internal/interfaces/cli/watch"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "entitlementd",
		Short:        "Entitlementsync - keeps store subscriptions and the backend ledger in agreement",
		Long:         `Entitlementsync watches store transactions, reconciles subscription entitlements and records every state change with the backend ledger.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		check.NewCommand(),
		watch.NewCommand(),
		history.NewCommand(),
		versioncmd.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
