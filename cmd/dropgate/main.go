package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "dropgate",
		Short: "Wallet sign-in service and client",
		Long: `dropgate verifies wallet ownership with signed sign-in messages,
issues sessions and resolves user profiles.

Run "dropgate serve" for the backend and "dropgate connect" to sign in
from a terminal with a local key.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		connectCmd(),
		adminCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
