package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"netscout/internal/export"
	"netscout/internal/publish"
	"netscout/internal/scan"
)

var (
	scanTarget        string
	scanResolveWindow time.Duration
	scanOutput        string
	scanOutFile       string
	scanPublish       bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover hosts on the local network",
	Long: `Run one full discovery session: sweep the target range with nmap,
listen for multicast service announcements, and print the fused host set
once both phases finish. Ctrl-C cancels the session but keeps the hosts
merged so far.`,
	Example: `  netscout scan
  netscout scan --target 192.168.1.0/24 --resolve-window 30s
  netscout scan --output json --out hosts.json
  netscout scan --publish`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVarP(&scanTarget, "target", "t", "", "address or CIDR range to sweep (default: the local /24)")
	scanCmd.Flags().DurationVar(&scanResolveWindow, "resolve-window", 0, "how long to listen for service announcements")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "table", "output format: table, json or csv")
	scanCmd.Flags().StringVar(&scanOutFile, "out", "", "write the result to a file instead of stdout")
	scanCmd.Flags().BoolVar(&scanPublish, "publish", false, "publish events to the configured broker")
}

func runScan(_ *cobra.Command, _ []string) error {
	switch scanOutput {
	case "table", "json", "csv":
	default:
		return fmt.Errorf("unknown output format %q", scanOutput)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	var publisher *publish.Publisher
	if scanPublish {
		if cfg.Publish.URL == "" {
			return fmt.Errorf("--publish requires publish.url in the configuration")
		}
		publisher, err = publish.New(cfg.Publish.URL, cfg.Publish.Exchange)
		if err != nil {
			return err
		}
		defer publisher.Close()
		engine.AddListener(publisher.Listener())
	}

	sessionCfg := sessionDefaults(cfg)
	if scanTarget != "" {
		sessionCfg.Target = scanTarget
	}
	if scanResolveWindow > 0 {
		sessionCfg.ResolveWindow = scanResolveWindow
	}
	sessionCfg.Target, err = resolveTarget(sessionCfg.Target)
	if err != nil {
		return err
	}

	// Capture the summary through the event stream; it is emitted before the
	// session reports done.
	var summary scan.Summary
	showProgress := scanOutput == "table" && scanOutFile == ""
	engine.AddListener(scan.Listener{
		Progress: func(p scan.Progress) {
			if showProgress {
				fmt.Fprintf(os.Stderr, "\r%-11s %5.1f%%  hosts: %d ", p.State, p.Overall*100, p.Hosts)
			}
		},
		SessionDone: func(s scan.Summary) { summary = s },
	})

	session, err := engine.StartScan(context.Background(), sessionCfg)
	if err != nil {
		return err
	}
	if publisher != nil {
		publisher.SetSession(session.ID())
	}
	fmt.Fprintf(os.Stderr, "scanning %s (session %s)\n", sessionCfg.Target, session.ID())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\ncancelling, waiting for workers...")
			_ = session.Cancel()
		case <-session.Done():
		}
	}()

	if err := session.Wait(context.Background()); err != nil {
		return err
	}
	if showProgress {
		fmt.Fprintln(os.Stderr)
	}

	if summary.SweepError != "" {
		fmt.Fprintf(os.Stderr, "warning: sweep phase degraded: %s\n", summary.SweepError)
	}
	if summary.ResolveError != "" {
		fmt.Fprintf(os.Stderr, "warning: resolve phase degraded: %s\n", summary.ResolveError)
	}

	hosts := engine.Hosts()
	out, closeOut, err := openOutput(scanOutFile)
	if err != nil {
		return err
	}
	defer closeOut()

	switch scanOutput {
	case "json":
		err = export.WriteJSON(out, hosts)
	case "csv":
		err = export.WriteCSV(out, hosts)
	default:
		renderHostTable(out, hosts)
		fmt.Fprintf(out, "\n%d hosts in %.1fs\n", summary.Hosts, summary.DurationSecs)
	}
	return err
}

// openOutput returns stdout or the requested file plus a close function.
func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func renderHostTable(w io.Writer, hosts []scan.HostRecord) {
	table := tablewriter.NewWriter(w)
	table.Header("Address", "Hostname", "Vendor", "Model", "OS", "Icon", "Latency", "Ports")
	for _, h := range hosts {
		_ = table.Append([]string{
			h.Address,
			h.Hostname,
			h.Vendor,
			h.Model,
			h.OSGuess,
			h.IconKey,
			latencyCell(h.LatencyMs),
			portsCell(h),
		})
	}
	_ = table.Render()
}

func latencyCell(ms float64) string {
	if ms <= 0 {
		return ""
	}
	return fmt.Sprintf("%.1f ms", ms)
}

// portsCell renders open ports with their service labels, e.g. "22/ssh 631/ipp".
func portsCell(h scan.HostRecord) string {
	parts := make([]string, 0, len(h.Ports))
	for _, p := range h.Ports {
		if label := h.Services[p]; label != "" {
			parts = append(parts, strconv.Itoa(p)+"/"+label)
			continue
		}
		parts = append(parts, strconv.Itoa(p))
	}
	return strings.Join(parts, " ")
}
