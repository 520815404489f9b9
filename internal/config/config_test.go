package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "market.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadLayersYAMLThenEnv(t *testing.T) {
	path := writeFile(t, `
server:
  port: 9000
  post_per_minute: 5
store:
  backend: sqlite
  path: /var/lib/market/market.db
clock:
  enabled: true
  interval: 30s
log:
  level: debug
`)
	t.Setenv("MARKET_SERVER_PORT", "9100")
	t.Setenv("MARKET_SERVER_CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("MARKET_ENTROPY_SEED", "42")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.Server.PostPerMinute != 5 {
		t.Errorf("post_per_minute = %d, want 5 from yaml", cfg.Server.PostPerMinute)
	}
	if cfg.Server.MaxStreamConns != 16 {
		t.Errorf("max_stream_conns = %d, want default 16", cfg.Server.MaxStreamConns)
	}
	if got := strings.Join(cfg.Server.CORSOrigins, ";"); got != "https://a.example;https://b.example" {
		t.Errorf("cors origins = %q", got)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.Path != "/var/lib/market/market.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if !cfg.Clock.Enabled || cfg.Clock.Interval != 30*time.Second {
		t.Errorf("clock = %+v", cfg.Clock)
	}
	if cfg.Entropy.Seed != 42 {
		t.Errorf("seed = %d", cfg.Entropy.Seed)
	}
	if level, _ := cfg.Log.SlogLevel(); level != slog.LevelDebug {
		t.Errorf("level = %v", level)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("MARKET_STORE_BACKEND", "s3")
	t.Setenv("MARKET_STORE_S3_BUCKET", "prices")
	t.Setenv("MARKET_STORE_S3_REGION", "eu-west-1")
	t.Setenv("MARKET_STORE_S3_PATH_STYLE", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	s3 := cfg.Store.S3
	if s3.Bucket != "prices" || s3.Region != "eu-west-1" || !s3.PathStyle {
		t.Errorf("s3 = %+v", s3)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
	if _, err := Load(writeFile(t, "server: [")); err == nil {
		t.Error("malformed yaml accepted")
	}

	t.Setenv("MARKET_SERVER_PORT", "not-a-number")
	if _, err := Load(""); err == nil {
		t.Error("non-numeric port accepted")
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"port zero":         func(c *Config) { c.Server.Port = 0 },
		"port too high":     func(c *Config) { c.Server.Port = 70000 },
		"no post budget":    func(c *Config) { c.Server.PostPerMinute = 0 },
		"unknown backend":   func(c *Config) { c.Store.Backend = "tape" },
		"file without path": func(c *Config) { c.Store.Path = "" },
		"s3 without bucket": func(c *Config) { c.Store.Backend = "s3" },
		"clock interval":    func(c *Config) { c.Clock.Enabled = true; c.Clock.Interval = 0 },
		"log level":         func(c *Config) { c.Log.Level = "loud" },
		"log format":        func(c *Config) { c.Log.Format = "xml" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	cfg := Default()
	cfg.Store.Backend = "memory"
	cfg.Store.Path = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("memory backend without path: %v", err)
	}
}
