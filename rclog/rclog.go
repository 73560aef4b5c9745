// Package rclog wires zerolog the way ManuGH-xg2g/internal/log does:
// Configure builds one base logger with service/version fields,
// WithComponent hands out named child loggers for each kernel
// subsystem. No tracing is carried over — see SPEC_FULL.md's ambient
// stack section for why.
package rclog

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config configures the global logger.
type Config struct {
	Level   string // "debug", "info", "warn", "error"; default "info"
	Output  io.Writer
	Service string
	Version string
}

var (
	mu   sync.RWMutex
	base zerolog.Logger
)

// Configure initializes the global base logger.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	service := cfg.Service
	if service == "" {
		service = "home2l"
	}

	base = zerolog.New(out).With().
		Timestamp().
		Str("service", service).
		Str("version", cfg.Version).
		Logger()
}

// WithComponent returns a child logger tagged with component=name, for
// a kernel subsystem (resource, driver, remote, timer, config, admin).
func WithComponent(name string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.With().Str("component", name).Logger()
}

func init() {
	Configure(Config{})
}
