package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/newthinker/macross/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func TestLoad_FromFile(t *testing.T) {
	cfgPath := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000

backtest:
  initial_capital: 50000
  risk_free_rate: 0.02

strategy:
  fast_period: 10
  slow_period: 30
  ma_type: ema

storage:
  archive:
    type: s3
    s3:
      bucket: reports
      endpoint: http://localhost:9000
  history:
    dsn: "/tmp/macross/history.db"
`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Backtest.InitialCapital != 50000 || cfg.Backtest.RiskFreeRate != 0.02 {
		t.Errorf("unexpected backtest section %+v", cfg.Backtest)
	}
	if cfg.Strategy.FastPeriod != 10 || cfg.Strategy.SlowPeriod != 30 || cfg.Strategy.MAType != "ema" {
		t.Errorf("unexpected strategy section %+v", cfg.Strategy)
	}
	if cfg.Storage.Archive.Type != "s3" || cfg.Storage.Archive.S3.Bucket != "reports" {
		t.Errorf("unexpected archive section %+v", cfg.Storage.Archive)
	}

	// Omitted keys keep their defaults
	if cfg.Strategy.Name != "ma_crossover" {
		t.Errorf("expected default strategy name, got %q", cfg.Strategy.Name)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("expected default metrics path, got %q", cfg.Metrics.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Backtest.InitialCapital != 100000 {
		t.Errorf("expected default capital, got %v", cfg.Backtest.InitialCapital)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, core.ErrConfigMissing) {
		t.Errorf("expected ErrConfigMissing, got %v", err)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MACROSS_SERVER_PORT", "9191")
	t.Setenv("MACROSS_STRATEGY_SLOW_PERIOD", "200")

	cfg, err := Load(writeConfig(t, "server:\n  port: 8080\n"))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("expected env port 9191, got %d", cfg.Server.Port)
	}
	if cfg.Strategy.SlowPeriod != 200 {
		t.Errorf("expected env slow period 200, got %d", cfg.Strategy.SlowPeriod)
	}
}

func TestLoad_ExpandsEnvReferences(t *testing.T) {
	t.Setenv("TEST_S3_SECRET", "s3cr3t")

	cfg, err := Load(writeConfig(t, `
storage:
  archive:
    s3:
      secret_key: "${TEST_S3_SECRET}"
`))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Storage.Archive.S3.SecretKey != "s3cr3t" {
		t.Errorf("expected expanded secret, got %q", cfg.Storage.Archive.S3.SecretKey)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Strategy.FastPeriod != 20 || cfg.Strategy.SlowPeriod != 50 || cfg.Strategy.MAType != "sma" {
		t.Errorf("unexpected default strategy %+v", cfg.Strategy)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestStrategyConfig_Params(t *testing.T) {
	p := Defaults().Strategy.Params()
	if p["fast_period"] != 20 || p["slow_period"] != 50 || p["ma_type"] != "sma" {
		t.Errorf("unexpected params %v", p)
	}
}

func TestArchiveConfig_Options(t *testing.T) {
	a := ArchiveConfig{Type: "s3", S3: S3Config{Bucket: "b", Prefix: "p"}}
	opts := a.Options()
	if opts.Type != "s3" || opts.S3.Bucket != "b" || opts.S3.Prefix != "p" {
		t.Errorf("unexpected options %+v", opts)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr *core.Error
	}{
		{"valid config", func(*Config) {}, nil},
		{"invalid port - zero", func(c *Config) { c.Server.Port = 0 }, core.ErrConfigInvalid},
		{"invalid port - too high", func(c *Config) { c.Server.Port = 70000 }, core.ErrConfigInvalid},
		{"negative max jobs", func(c *Config) { c.Server.MaxJobs = -1 }, core.ErrConfigInvalid},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, core.ErrConfigInvalid},
		{"zero capital", func(c *Config) { c.Backtest.InitialCapital = 0 }, core.ErrConfigInvalid},
		{"negative risk-free rate", func(c *Config) { c.Backtest.RiskFreeRate = -0.01 }, core.ErrConfigInvalid},
		{"negative workers", func(c *Config) { c.Backtest.Workers = -2 }, core.ErrConfigInvalid},
		{"zero period", func(c *Config) { c.Strategy.FastPeriod = 0 }, core.ErrConfigInvalid},
		{"fast not below slow", func(c *Config) { c.Strategy.FastPeriod = 50 }, core.ErrConfigInvalid},
		{"unknown ma type", func(c *Config) { c.Strategy.MAType = "wma" }, core.ErrConfigInvalid},
		{"localfs without path", func(c *Config) { c.Storage.Archive.Path = "" }, core.ErrConfigMissing},
		{"s3 without bucket", func(c *Config) { c.Storage.Archive.Type = "s3" }, core.ErrConfigMissing},
		{"unknown archive type", func(c *Config) { c.Storage.Archive.Type = "ftp" }, core.ErrConfigInvalid},
		{"relative metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, core.ErrConfigInvalid},
		{"metrics disabled ignores path", func(c *Config) {
			c.Metrics.Enabled = false
			c.Metrics.Path = ""
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
