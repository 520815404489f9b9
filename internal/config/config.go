// Package config loads marketd settings. Sources are layered: built-in
// defaults, then an optional YAML file, then a .env file, then MARKET_*
// environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/talgya/realm-market/internal/persistence"
)

// EnvPrefix prefixes every environment override, e.g. MARKET_SERVER_PORT.
const EnvPrefix = "MARKET"

type Config struct {
	Server  ServerConfig       `yaml:"server"`
	Store   persistence.Config `yaml:"store"`
	Clock   ClockConfig        `yaml:"clock"`
	Entropy EntropyConfig      `yaml:"entropy"`
	Log     LogConfig          `yaml:"log"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	AdminKey       string   `yaml:"admin_key" split_words:"true"` // empty = POST endpoints open
	CORSOrigins    []string `yaml:"cors_origins" split_words:"true"`
	PostPerMinute  int      `yaml:"post_per_minute" split_words:"true"`
	MaxStreamConns int      `yaml:"max_stream_conns" split_words:"true"`
}

// ClockConfig controls automatic day advancement.
type ClockConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// EntropyConfig selects the random source. With an API key, draws come from
// random.org; otherwise a seeded PRNG is used (seed 0 = time-based).
type EntropyConfig struct {
	APIKey string `yaml:"api_key" split_words:"true"`
	Seed   int64  `yaml:"seed"`
}

// LogConfig configures slog. An empty File logs to stdout only.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" split_words:"true"`
	MaxBackups int    `yaml:"max_backups" split_words:"true"`
	MaxAgeDays int    `yaml:"max_age_days" split_words:"true"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			PostPerMinute:  30,
			MaxStreamConns: 16,
		},
		Store: persistence.Config{
			Backend: persistence.BackendFile,
			Path:    "data/market_data.json",
		},
		Clock: ClockConfig{
			Interval: time.Minute,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.PostPerMinute <= 0 {
		return fmt.Errorf("server.post_per_minute must be positive")
	}
	if c.Server.MaxStreamConns < 0 {
		return fmt.Errorf("server.max_stream_conns must not be negative")
	}

	switch strings.ToLower(c.Store.Backend) {
	case persistence.BackendMemory:
	case "", persistence.BackendFile, persistence.BackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s backend", c.Store.Backend)
		}
	case persistence.BackendS3:
		if c.Store.S3.Bucket == "" || c.Store.S3.Region == "" {
			return fmt.Errorf("store.s3.bucket and store.s3.region are required for the s3 backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not one of memory, file, sqlite, s3", c.Store.Backend)
	}

	if c.Clock.Enabled && c.Clock.Interval <= 0 {
		return fmt.Errorf("clock.interval must be positive when the clock is enabled")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		return fmt.Errorf("log.format %q is not text or json", c.Log.Format)
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
