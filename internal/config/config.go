package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/newthinker/foresight/internal/core"
)

// EnvPrefix namespaces environment overrides, e.g. FORESIGHT_SERVER_PORT.
const EnvPrefix = "FORESIGHT"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Forecast  ForecastConfig  `mapstructure:"forecast"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	APIKey           string        `mapstructure:"api_key"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	BatchConcurrency int           `mapstructure:"batch_concurrency"`
	MaxBatch         int           `mapstructure:"max_batch"`
}

// ProviderConfig selects the OHLCV collector.
type ProviderConfig struct {
	Name         string        `mapstructure:"name"` // "yahoo" or "memory"
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	LookbackDays int           `mapstructure:"lookback_days"`
}

// Lookback returns the history window as a duration.
func (p ProviderConfig) Lookback() time.Duration {
	return time.Duration(p.LookbackDays) * 24 * time.Hour
}

// ForecastConfig holds model and projection parameters.
type ForecastConfig struct {
	LabelHorizon     int           `mapstructure:"label_horizon"`
	HoldoutFraction  float64       `mapstructure:"holdout_fraction"`
	MinRows          int           `mapstructure:"min_rows"`
	Estimators       int           `mapstructure:"estimators"`
	MaxDepth         int           `mapstructure:"max_depth"`
	MinLeaf          int           `mapstructure:"min_leaf"`
	MaxFeatures      int           `mapstructure:"max_features"`
	Seed             int64         `mapstructure:"seed"` // 0 = entropy-seeded
	TrendThreshold   float64       `mapstructure:"trend_threshold"`
	VolatilityWindow int           `mapstructure:"volatility_window"`
	BandZ            float64       `mapstructure:"band_z"`
	ReturnHalfLife   float64       `mapstructure:"return_half_life"`
	MaxHorizon       int           `mapstructure:"max_horizon"`
	DefaultHorizon   int           `mapstructure:"default_horizon"`
	ComputeTimeout   time.Duration `mapstructure:"compute_timeout"`
}

type CacheConfig struct {
	TTL   time.Duration `mapstructure:"ttl"`
	Redis RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type ArchiveConfig struct {
	Type string   `mapstructure:"type"` // "none", "localfs" or "s3"
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

// SchedulerConfig drives periodic cache warm-up.
type SchedulerConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Spec    string   `mapstructure:"spec"` // cron with seconds field
	Symbols []string `mapstructure:"symbols"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			RequestTimeout:   3 * time.Minute,
			BatchConcurrency: 4,
			MaxBatch:         50,
		},
		Provider: ProviderConfig{
			Name:         "yahoo",
			Timeout:      10 * time.Second,
			LookbackDays: 730,
		},
		Forecast: ForecastConfig{
			LabelHorizon:     5,
			HoldoutFraction:  0.2,
			MinRows:          30,
			Estimators:       100,
			MaxDepth:         10,
			MinLeaf:          5,
			Seed:             42,
			TrendThreshold:   0.02,
			VolatilityWindow: 30,
			BandZ:            1.96,
			ReturnHalfLife:   180,
			MaxHorizon:       365,
			DefaultHorizon:   30,
			ComputeTimeout:   5 * time.Minute,
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "foresight",
			},
		},
		Archive: ArchiveConfig{
			Type: "none",
		},
		Scheduler: SchedulerConfig{
			Spec: "0 30 17 * * 1-5",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// setDefaults registers every default with viper so environment overrides
// apply even when no config file sets the key.
func setDefaults(v *viper.Viper) {
	d := Defaults()
	defaults := map[string]any{
		"server.host":                d.Server.Host,
		"server.port":                d.Server.Port,
		"server.api_key":             d.Server.APIKey,
		"server.request_timeout":     d.Server.RequestTimeout,
		"server.batch_concurrency":   d.Server.BatchConcurrency,
		"server.max_batch":           d.Server.MaxBatch,
		"provider.name":              d.Provider.Name,
		"provider.base_url":          d.Provider.BaseURL,
		"provider.timeout":           d.Provider.Timeout,
		"provider.lookback_days":     d.Provider.LookbackDays,
		"forecast.label_horizon":     d.Forecast.LabelHorizon,
		"forecast.holdout_fraction":  d.Forecast.HoldoutFraction,
		"forecast.min_rows":          d.Forecast.MinRows,
		"forecast.estimators":        d.Forecast.Estimators,
		"forecast.max_depth":         d.Forecast.MaxDepth,
		"forecast.min_leaf":          d.Forecast.MinLeaf,
		"forecast.max_features":      d.Forecast.MaxFeatures,
		"forecast.seed":              d.Forecast.Seed,
		"forecast.trend_threshold":   d.Forecast.TrendThreshold,
		"forecast.volatility_window": d.Forecast.VolatilityWindow,
		"forecast.band_z":            d.Forecast.BandZ,
		"forecast.return_half_life":  d.Forecast.ReturnHalfLife,
		"forecast.max_horizon":       d.Forecast.MaxHorizon,
		"forecast.default_horizon":   d.Forecast.DefaultHorizon,
		"forecast.compute_timeout":   d.Forecast.ComputeTimeout,
		"cache.ttl":                  d.Cache.TTL,
		"cache.redis.enabled":        d.Cache.Redis.Enabled,
		"cache.redis.addr":           d.Cache.Redis.Addr,
		"cache.redis.password":       d.Cache.Redis.Password,
		"cache.redis.db":             d.Cache.Redis.DB,
		"cache.redis.prefix":         d.Cache.Redis.Prefix,
		"archive.type":               d.Archive.Type,
		"archive.path":               d.Archive.Path,
		"archive.s3.bucket":          d.Archive.S3.Bucket,
		"archive.s3.endpoint":        d.Archive.S3.Endpoint,
		"archive.s3.region":          d.Archive.S3.Region,
		"archive.s3.access_key":      d.Archive.S3.AccessKey,
		"archive.s3.secret_key":      d.Archive.S3.SecretKey,
		"archive.s3.prefix":          d.Archive.S3.Prefix,
		"scheduler.enabled":          d.Scheduler.Enabled,
		"scheduler.spec":             d.Scheduler.Spec,
		"scheduler.symbols":          d.Scheduler.Symbols,
		"metrics.enabled":            d.Metrics.Enabled,
		"metrics.path":               d.Metrics.Path,
		"log.level":                  d.Log.Level,
		"log.development":            d.Log.Development,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Load reads configuration from file layered over Defaults. An empty path
// loads defaults and environment overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Support environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
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

func invalid(format string, args ...any) error {
	return core.Errorf(core.ErrConfigInvalid, format, args...)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RequestTimeout <= 0 {
		return invalid("server.request_timeout must be positive, got %s", c.Server.RequestTimeout)
	}
	if c.Server.BatchConcurrency < 1 {
		return invalid("server.batch_concurrency must be at least 1, got %d", c.Server.BatchConcurrency)
	}
	if c.Server.MaxBatch < 1 {
		return invalid("server.max_batch must be at least 1, got %d", c.Server.MaxBatch)
	}

	// Provider validation
	if c.Provider.Name == "" {
		return core.Errorf(core.ErrConfigMissing, "provider.name is required")
	}
	if c.Provider.LookbackDays < 90 {
		return invalid("provider.lookback_days must be at least 90, got %d", c.Provider.LookbackDays)
	}

	if err := c.Forecast.validate(); err != nil {
		return err
	}

	// Cache validation
	if c.Cache.TTL <= 0 {
		return invalid("cache.ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Cache.Redis.Enabled && c.Cache.Redis.Addr == "" {
		return core.Errorf(core.ErrConfigMissing, "cache.redis.addr required when redis is enabled")
	}

	// Archive validation
	switch c.Archive.Type {
	case "", "none":
	case "localfs":
		if c.Archive.Path == "" {
			return core.Errorf(core.ErrConfigMissing, "archive.path required for localfs archive")
		}
	case "s3":
		if c.Archive.S3.Bucket == "" {
			return core.Errorf(core.ErrConfigMissing, "archive.s3.bucket required for s3 archive")
		}
	default:
		return invalid("archive.type must be none, localfs or s3, got %q", c.Archive.Type)
	}

	if c.Scheduler.Enabled {
		if c.Scheduler.Spec == "" {
			return core.Errorf(core.ErrConfigMissing, "scheduler.spec required when scheduler is enabled")
		}
		if len(c.Scheduler.Symbols) == 0 {
			return core.Errorf(core.ErrConfigMissing, "scheduler.symbols required when scheduler is enabled")
		}
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level: %v", err)
	}

	return nil
}

func (f ForecastConfig) validate() error {
	switch {
	case f.LabelHorizon < 1:
		return invalid("forecast.label_horizon must be at least 1, got %d", f.LabelHorizon)
	case f.HoldoutFraction <= 0 || f.HoldoutFraction >= 1:
		return invalid("forecast.holdout_fraction must be in (0,1), got %f", f.HoldoutFraction)
	case f.MinRows < 2:
		return invalid("forecast.min_rows must be at least 2, got %d", f.MinRows)
	case f.Estimators < 1:
		return invalid("forecast.estimators must be at least 1, got %d", f.Estimators)
	case f.MaxDepth < 1:
		return invalid("forecast.max_depth must be at least 1, got %d", f.MaxDepth)
	case f.MinLeaf < 1:
		return invalid("forecast.min_leaf must be at least 1, got %d", f.MinLeaf)
	case f.MaxFeatures < 0:
		return invalid("forecast.max_features cannot be negative, got %d", f.MaxFeatures)
	case f.TrendThreshold < 0:
		return invalid("forecast.trend_threshold cannot be negative, got %f", f.TrendThreshold)
	case f.VolatilityWindow < 2:
		return invalid("forecast.volatility_window must be at least 2, got %d", f.VolatilityWindow)
	case f.BandZ <= 0:
		return invalid("forecast.band_z must be positive, got %f", f.BandZ)
	case f.ReturnHalfLife < 0:
		return invalid("forecast.return_half_life cannot be negative, got %f", f.ReturnHalfLife)
	case f.MaxHorizon < 1 || f.MaxHorizon > 365:
		return invalid("forecast.max_horizon must be in [1,365], got %d", f.MaxHorizon)
	case f.DefaultHorizon < 1 || f.DefaultHorizon > f.MaxHorizon:
		return invalid("forecast.default_horizon must be in [1,%d], got %d", f.MaxHorizon, f.DefaultHorizon)
	case f.ComputeTimeout <= 0:
		return invalid("forecast.compute_timeout must be positive, got %s", f.ComputeTimeout)
	}
	return nil
}
