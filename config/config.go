// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

// Config is populated from ARENA_* environment variables. A .env file in the
// working directory is read first; real environment variables win over it.
type Config struct {
	Port            int           `env:"ARENA_PORT" envDefault:"8080"`
	DBPath          string        `env:"ARENA_DB_PATH" envDefault:"arena.db"`
	LogLevel        string        `env:"ARENA_LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"ARENA_LOG_FORMAT" envDefault:"text"`
	AuditInterval   time.Duration `env:"ARENA_AUDIT_INTERVAL" envDefault:"5m"`
	MaxRetries      int           `env:"ARENA_MAX_RETRIES" envDefault:"3"`
	CORSOrigins     []string      `env:"ARENA_CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	ShutdownTimeout time.Duration `env:"ARENA_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load reads the optional dotenv files (default ".env"), then parses the
// environment into a Config.
func Load(dotenv ...string) (Config, error) {
	if len(dotenv) == 0 {
		dotenv = []string{".env"}
	}
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(dotenv...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid ARENA_PORT %d", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("ARENA_DB_PATH must not be empty")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("invalid ARENA_MAX_RETRIES %d", c.MaxRetries)
	}
	if c.AuditInterval < 0 {
		return fmt.Errorf("invalid ARENA_AUDIT_INTERVAL %s", c.AuditInterval)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("invalid ARENA_LOG_FORMAT %q", c.LogFormat)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid ARENA_LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// NewLogger builds the process logger. Output defaults to stderr.
func (c Config) NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}

	opts := log.Options{
		Level:           level,
		ReportTimestamp: true,
		Prefix:          "arena",
	}
	switch strings.ToLower(c.LogFormat) {
	case "json":
		opts.Formatter = log.JSONFormatter
	case "logfmt":
		opts.Formatter = log.LogfmtFormatter
	default:
		opts.Formatter = log.TextFormatter
	}
	return log.NewWithOptions(w, opts)
}
