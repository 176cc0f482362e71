// Command netscout discovers hosts on the local network, fuses what the
// probes learn about them into per-host records, and presents the result as a
// table, an export file, or a live HTTP API.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"netscout/internal/config"
	"netscout/internal/logging"
	"netscout/internal/mdns"
	"netscout/internal/probe"
	"netscout/internal/scan"
	"netscout/internal/tables"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "netscout",
	Short: "LAN host discovery and metadata fusion",
	Long: `netscout sweeps an address range with nmap, listens for multicast
service announcements, and fuses everything the probes report into one
record per host: vendor, model, open ports, latency, icon.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default netscout.yaml in . or ~/.config/netscout)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
}

// loadConfig reads the configuration and initialises logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := logging.Setup(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildEngine assembles the engine with its real collaborators.
func buildEngine(cfg *config.Config) (*scan.Engine, error) {
	tbl, err := tables.Load(cfg.Tables.Dir)
	if err != nil {
		return nil, fmt.Errorf("load reference tables: %w", err)
	}
	runner := probe.NewRunner(probe.Config{
		Chunks:     cfg.Scan.Chunks,
		TopPorts:   cfg.Scan.TopPorts,
		Timing:     cfg.Scan.Timing,
		DeepTiming: cfg.DeepScan.Timing,
		EnrichRate: cfg.DeepScan.Rate,
	})
	engine := scan.NewEngine(
		runner,
		mdns.NewBrowser(),
		runner,
		scan.NewVendorResolver(tbl),
		scan.NewIconClassifier(tbl),
	)
	return engine, nil
}

// sessionDefaults builds a session configuration from the loaded settings.
// The target stays empty when neither the config nor the caller supplies one;
// resolveTarget fills it in.
func sessionDefaults(cfg *config.Config) scan.SessionConfig {
	return scan.SessionConfig{
		Target:           cfg.Scan.Target,
		SweepWeight:      cfg.Scan.SweepWeight,
		ResolveWindow:    cfg.Scan.ResolveWindow,
		CancelGrace:      cfg.Scan.CancelGrace,
		ProgressInterval: cfg.Scan.ProgressInterval,
	}
}

// resolveTarget falls back to the local /24 when no target is configured.
func resolveTarget(target string) (string, error) {
	if target != "" {
		return target, nil
	}
	subnet, err := probe.LocalSubnet()
	if err != nil {
		return "", fmt.Errorf("no target given and autodetection failed: %w", err)
	}
	return subnet, nil
}
