package commands

import (
	"context"
	"fmt"
	"os"

	"oasys-backend/lib/statestore"

	"github.com/spf13/cobra"
)

var gatewayUrl *string
var statePath *string

var rootCmd = &cobra.Command{
	Use:   "oasys-cli",
	Short: "oasys-cli checks your SRM attendance from the terminal.",
}

func init() {
	gatewayUrl = rootCmd.PersistentFlags().String(
		"gateway", "http://localhost:8000",
		"The base url of the oasys gateway.",
	)
	statePath = rootCmd.PersistentFlags().String(
		"state", "oasys.db",
		"Path (or libsql:// url) of the local state database.",
	)
}

func openStore() statestore.Store {
	store, err := statestore.Open(*statePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open state database:", err)
		os.Exit(1)
	}
	return store
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
