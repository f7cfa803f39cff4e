package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "weld",
		Short: "Host sandboxed guest UI bundles",
		Long: `Weld embeds untrusted UI bundles in sandboxed JavaScript runtimes
and drives the host widget tree through a typed mutation protocol.

The CLI hosts a bundle against a logging receiver for local
development, with an optional diagnostics server for DevTools:

  • Run a bundle from a file or URL (no object fetcher is
    configured, so s3:// sources fail to load)
  • Inspect live operation traffic and the shadow tree
  • Serve Prometheus metrics`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		runCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("weld %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
