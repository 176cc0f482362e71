// Package logging configures the process-wide zap logger. Components pull
// named children via Component so log lines can be filtered per subsystem.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls log verbosity and encoding.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // console or json
}

var (
	mu   sync.RWMutex
	base = zap.NewNop().Sugar()
)

// Setup builds the package logger. Call once at startup; before Setup all
// logging is a no-op, which keeps tests quiet.
func Setup(cfg Config) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var encoderCfg zapcore.EncoderConfig
	switch cfg.Format {
	case "", "console":
		cfg.Format = "console"
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	case "json":
		encoderCfg = zap.NewProductionEncoderConfig()
	default:
		return fmt.Errorf("invalid log format %q", cfg.Format)
	}
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         cfg.Format,
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	mu.Lock()
	base = logger.Sugar()
	mu.Unlock()
	return nil
}

// L returns the process logger.
func L() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Component returns a child logger named after a subsystem.
func Component(name string) *zap.SugaredLogger {
	return L().Named(name)
}

// Sync flushes buffered log entries. Safe to call at exit.
func Sync() {
	_ = L().Sync()
}
