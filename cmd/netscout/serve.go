package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"netscout/internal/api"
	"netscout/internal/publish"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and event stream",
	Long: `Serve the JSON API and the WebSocket event stream. Scans are started
through the API; when publish.url is configured, every event is also
forwarded to the message broker.`,
	Example: `  netscout serve
  netscout serve --listen :9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (default from api.listen)")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	defaults := sessionDefaults(cfg)
	defaults.Target, err = resolveTarget(defaults.Target)
	if err != nil {
		return err
	}

	opts := api.Options{Addr: cfg.API.Listen, Defaults: defaults}
	if serveListen != "" {
		opts.Addr = serveListen
	}

	if cfg.Publish.URL != "" {
		publisher, err := publish.New(cfg.Publish.URL, cfg.Publish.Exchange)
		if err != nil {
			return fmt.Errorf("connect publisher: %w", err)
		}
		defer publisher.Close()
		engine.AddListener(publisher.Listener())
		opts.OnScanStarted = publisher.SetSession
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(engine, opts)
	fmt.Fprintf(os.Stderr, "serving on %s (default target %s)\n", opts.Addr, defaults.Target)
	return server.Run(ctx)
}
