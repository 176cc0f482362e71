// Package config loads settings from an optional YAML file, NETSCOUT_*
// environment variables, and built-in defaults, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Scan     ScanConfig     `mapstructure:"scan"`
	DeepScan DeepScanConfig `mapstructure:"deepscan"`
	Tables   TablesConfig   `mapstructure:"tables"`
	Log      LogConfig      `mapstructure:"log"`
	API      APIConfig      `mapstructure:"api"`
	Publish  PublishConfig  `mapstructure:"publish"`
}

// ScanConfig tunes scan sessions and the sweep runner.
type ScanConfig struct {
	Target           string        `mapstructure:"target"` // address or CIDR; empty = autodetect
	Chunks           int           `mapstructure:"chunks"`
	TopPorts         int           `mapstructure:"top_ports"`
	Timing           int           `mapstructure:"timing"`
	SweepWeight      float64       `mapstructure:"sweep_weight"`
	ResolveWindow    time.Duration `mapstructure:"resolve_window"`
	CancelGrace      time.Duration `mapstructure:"cancel_grace"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
}

// DeepScanConfig tunes per-host deep scans.
type DeepScanConfig struct {
	Timing int     `mapstructure:"timing"`
	Rate   float64 `mapstructure:"rate"` // enrichment probes per second
}

// TablesConfig points at optional reference table overrides.
type TablesConfig struct {
	Dir string `mapstructure:"dir"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Listen string `mapstructure:"listen"`
}

// PublishConfig controls the AMQP event publisher. An empty URL disables it.
type PublishConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// Load reads configuration. With an explicit path the file must exist;
// otherwise netscout.yaml is searched in the working directory and
// ~/.config/netscout, and missing files fall through to defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("netscout")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "netscout"))
		}
	}

	v.SetEnvPrefix("NETSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scan.target", "")
	v.SetDefault("scan.chunks", 8)
	v.SetDefault("scan.top_ports", 100)
	v.SetDefault("scan.timing", 4)
	v.SetDefault("scan.sweep_weight", 0.6)
	v.SetDefault("scan.resolve_window", 15*time.Second)
	v.SetDefault("scan.cancel_grace", 10*time.Second)
	v.SetDefault("scan.progress_interval", 200*time.Millisecond)
	v.SetDefault("deepscan.timing", 4)
	v.SetDefault("deepscan.rate", 4.0)
	v.SetDefault("tables.dir", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("api.listen", ":8077")
	v.SetDefault("publish.url", "")
	v.SetDefault("publish.exchange", "netscout.events")
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Scan.Target != "" {
		if net.ParseIP(c.Scan.Target) == nil {
			if _, _, err := net.ParseCIDR(c.Scan.Target); err != nil {
				return fmt.Errorf("scan.target %q is neither an address nor a CIDR range", c.Scan.Target)
			}
		}
	}
	if c.Scan.Chunks < 1 {
		return fmt.Errorf("scan.chunks must be at least 1, got %d", c.Scan.Chunks)
	}
	if c.Scan.TopPorts < 1 {
		return fmt.Errorf("scan.top_ports must be at least 1, got %d", c.Scan.TopPorts)
	}
	if c.Scan.Timing < 1 || c.Scan.Timing > 5 {
		return fmt.Errorf("scan.timing must be between 1 and 5, got %d", c.Scan.Timing)
	}
	if c.Scan.SweepWeight <= 0 || c.Scan.SweepWeight >= 1 {
		return fmt.Errorf("scan.sweep_weight must be inside (0, 1), got %v", c.Scan.SweepWeight)
	}
	if c.Scan.ResolveWindow <= 0 {
		return fmt.Errorf("scan.resolve_window must be positive, got %v", c.Scan.ResolveWindow)
	}
	if c.Scan.CancelGrace <= 0 {
		return fmt.Errorf("scan.cancel_grace must be positive, got %v", c.Scan.CancelGrace)
	}
	if c.Scan.ProgressInterval <= 0 {
		return fmt.Errorf("scan.progress_interval must be positive, got %v", c.Scan.ProgressInterval)
	}
	if c.DeepScan.Timing < 1 || c.DeepScan.Timing > 5 {
		return fmt.Errorf("deepscan.timing must be between 1 and 5, got %d", c.DeepScan.Timing)
	}
	if c.DeepScan.Rate <= 0 {
		return fmt.Errorf("deepscan.rate must be positive, got %v", c.DeepScan.Rate)
	}
	return nil
}
