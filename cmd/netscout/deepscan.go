package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"netscout/internal/scan"
)

var (
	deepMode  string
	deepPorts []int
)

var deepscanCmd = &cobra.Command{
	Use:   "deepscan HOST",
	Short: "Run a focused scan against one host",
	Long: `Scan a single host in depth: a wider port range, service versions and,
in advanced mode, OS detection, followed by ping, SMB and AirPlay probes.`,
	Example: `  netscout deepscan 192.168.1.10
  netscout deepscan 192.168.1.10 --mode advanced
  netscout deepscan 192.168.1.10 --mode custom --ports 22,80,8080`,
	Args: cobra.ExactArgs(1),
	RunE: runDeepScan,
}

func init() {
	rootCmd.AddCommand(deepscanCmd)
	deepscanCmd.Flags().StringVarP(&deepMode, "mode", "m", "quick", "scan mode: quick, advanced or custom")
	deepscanCmd.Flags().IntSliceVar(&deepPorts, "ports", nil, "ports to scan in custom mode")
}

func runDeepScan(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	host := args[0]
	mode := scan.DeepScanMode{Kind: scan.ScanKind(deepMode), Ports: deepPorts}
	handle, err := engine.StartDeepScan(context.Background(), host, mode)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for done := false; !done; {
		select {
		case <-handle.Done():
			done = true
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\ncancelling...")
			handle.Cancel()
		case <-ticker.C:
			fmt.Fprintf(os.Stderr, "\rscanning %s %3.0f%% ", host, handle.Progress()*100)
		}
	}
	fmt.Fprintln(os.Stderr)

	result, ok := handle.Result()
	if !ok {
		return fmt.Errorf("deep scan of %s produced no result", host)
	}
	if result.Error != "" {
		return fmt.Errorf("deep scan of %s failed: %s", host, result.Error)
	}

	renderDeepResult(result)
	return nil
}

func renderDeepResult(result scan.DeepScanResult) {
	findings := result.Findings
	fmt.Printf("host %s (%s scan, %.1fs)\n", result.Host, result.Mode.Kind, result.Duration)
	if findings.Hostname != "" {
		fmt.Printf("  hostname: %s\n", findings.Hostname)
	}
	if findings.OSGuess != "" {
		fmt.Printf("  os:       %s\n", findings.OSGuess)
	}
	if findings.LatencyMs > 0 {
		fmt.Printf("  latency:  %.1f ms\n", findings.LatencyMs)
	}

	if len(findings.Ports) > 0 {
		fmt.Println()
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Port", "Service")
		for _, p := range findings.Ports {
			_ = table.Append([]string{strconv.Itoa(p.Port), p.Label})
		}
		_ = table.Render()
	} else {
		fmt.Println("  no open TCP ports found")
	}

	for _, service := range sortedKeys(findings.Metadata) {
		attrs := findings.Metadata[service]
		fmt.Printf("\n%s:\n", service)
		for _, key := range sortedKeys(attrs) {
			fmt.Printf("  %s = %s\n", key, attrs[key])
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
