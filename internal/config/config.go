package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/storage/archive"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix namespaces environment overrides, e.g. MACROSS_SERVER_PORT
const EnvPrefix = "MACROSS"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Strategy StrategyConfig `mapstructure:"strategy"`
	Data     DataConfig     `mapstructure:"data"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	APIKey      string `mapstructure:"api_key"`
	JobTTLHours int    `mapstructure:"job_ttl_hours"`
	MaxJobs     int    `mapstructure:"max_jobs"`
}

// LogConfig selects the zap preset and minimum level.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// BacktestConfig holds the simulator defaults.
type BacktestConfig struct {
	InitialCapital float64 `mapstructure:"initial_capital"`
	RiskFreeRate   float64 `mapstructure:"risk_free_rate"`
	Workers        int     `mapstructure:"workers"` // parameter sweep concurrency, 0 = GOMAXPROCS
}

// StrategyConfig holds the default crossover parameters.
type StrategyConfig struct {
	Name       string `mapstructure:"name"`
	FastPeriod int    `mapstructure:"fast_period"`
	SlowPeriod int    `mapstructure:"slow_period"`
	MAType     string `mapstructure:"ma_type"`
}

// Params returns the strategy parameters in the form strategy.Config expects
func (s StrategyConfig) Params() map[string]any {
	return map[string]any{
		"fast_period": s.FastPeriod,
		"slow_period": s.SlowPeriod,
		"ma_type":     s.MAType,
	}
}

// DataConfig locates price files.
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

type StorageConfig struct {
	Archive ArchiveConfig `mapstructure:"archive"`
	History HistoryConfig `mapstructure:"history"`
}

// ArchiveConfig configures where reports are written.
type ArchiveConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// Options converts the section into archive backend options
func (a ArchiveConfig) Options() archive.Options {
	return archive.Options{
		Type: a.Type,
		Path: a.Path,
		S3: archive.S3Config{
			Bucket:    a.S3.Bucket,
			Endpoint:  a.S3.Endpoint,
			Region:    a.S3.Region,
			AccessKey: a.S3.AccessKey,
			SecretKey: a.S3.SecretKey,
			Prefix:    a.S3.Prefix,
		},
	}
}

// HistoryConfig configures the run history database. An empty DSN keeps
// history in memory.
type HistoryConfig struct {
	DSN string `mapstructure:"dsn"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file, layered over Defaults. An empty path
// loads defaults and environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	// Support environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("config file %s not found", path))
			}
			return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("reading config: %w", err))
		}
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unmarshaling config: %w", err))
	}

	return &cfg, nil
}

// setDefaults registers every key so environment overrides apply even when
// the file omits the key.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.api_key", d.Server.APIKey)
	v.SetDefault("server.job_ttl_hours", d.Server.JobTTLHours)
	v.SetDefault("server.max_jobs", d.Server.MaxJobs)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)

	v.SetDefault("backtest.initial_capital", d.Backtest.InitialCapital)
	v.SetDefault("backtest.risk_free_rate", d.Backtest.RiskFreeRate)
	v.SetDefault("backtest.workers", d.Backtest.Workers)

	v.SetDefault("strategy.name", d.Strategy.Name)
	v.SetDefault("strategy.fast_period", d.Strategy.FastPeriod)
	v.SetDefault("strategy.slow_period", d.Strategy.SlowPeriod)
	v.SetDefault("strategy.ma_type", d.Strategy.MAType)

	v.SetDefault("data.dir", d.Data.Dir)

	v.SetDefault("storage.archive.type", d.Storage.Archive.Type)
	v.SetDefault("storage.archive.path", d.Storage.Archive.Path)
	v.SetDefault("storage.archive.s3.bucket", d.Storage.Archive.S3.Bucket)
	v.SetDefault("storage.archive.s3.endpoint", d.Storage.Archive.S3.Endpoint)
	v.SetDefault("storage.archive.s3.region", d.Storage.Archive.S3.Region)
	v.SetDefault("storage.archive.s3.access_key", d.Storage.Archive.S3.AccessKey)
	v.SetDefault("storage.archive.s3.secret_key", d.Storage.Archive.S3.SecretKey)
	v.SetDefault("storage.archive.s3.prefix", d.Storage.Archive.S3.Prefix)
	v.SetDefault("storage.history.dsn", d.Storage.History.DSN)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			JobTTLHours: 1,
			MaxJobs:     100,
		},
		Log: LogConfig{
			Level: "info",
		},
		Backtest: BacktestConfig{
			InitialCapital: 100000,
			RiskFreeRate:   0,
		},
		Strategy: StrategyConfig{
			Name:       "ma_crossover",
			FastPeriod: 20,
			SlowPeriod: 50,
			MAType:     "sma",
		},
		Data: DataConfig{
			Dir: "data",
		},
		Storage: StorageConfig{
			Archive: ArchiveConfig{
				Type: archive.TypeLocalFS,
				Path: "archive",
			},
			History: HistoryConfig{
				DSN: "macross.db",
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MaxJobs < 0 || c.Server.JobTTLHours < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_jobs and job_ttl_hours cannot be negative"))
	}

	if c.Log.Level != "" {
		if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
			return core.WrapError(core.ErrConfigInvalid, err)
		}
	}

	// Backtest validation
	if !(c.Backtest.InitialCapital > 0) {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("initial_capital must be greater than 0, got %v", c.Backtest.InitialCapital))
	}
	if !(c.Backtest.RiskFreeRate >= 0) {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("risk_free_rate cannot be negative, got %v", c.Backtest.RiskFreeRate))
	}
	if c.Backtest.Workers < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("workers cannot be negative, got %d", c.Backtest.Workers))
	}

	// Strategy validation
	if c.Strategy.FastPeriod < 1 || c.Strategy.SlowPeriod < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("periods must be at least 1, got %d/%d", c.Strategy.FastPeriod, c.Strategy.SlowPeriod))
	}
	if c.Strategy.FastPeriod >= c.Strategy.SlowPeriod {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("fast_period %d must be less than slow_period %d", c.Strategy.FastPeriod, c.Strategy.SlowPeriod))
	}
	switch c.Strategy.MAType {
	case "sma", "ema":
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("ma_type must be sma or ema, got %q", c.Strategy.MAType))
	}

	// Archive validation - backend specific settings must be present
	switch c.Storage.Archive.Type {
	case archive.TypeLocalFS:
		if c.Storage.Archive.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage.archive.path required when type is localfs"))
		}
	case archive.TypeS3:
		if c.Storage.Archive.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage.archive.s3.bucket required when type is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("storage.archive.type must be localfs or s3, got %q", c.Storage.Archive.Type))
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path))
	}

	return nil
}
