package main

import (
	"os"

	"netscout/internal/logging"
)

func main() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
