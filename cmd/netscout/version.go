package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set by ldflags at build time.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("netscout %s (commit %s, built %s)\n", version, commit, buildTime)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = version
}
