package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

const envPrefix = "KOPERASI_ANOMALY_"

// Config captures the settings required to boot the anomaly engine.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Detection  DetectionConfig  `yaml:"detection"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Store      StoreConfig      `yaml:"store"`
	Cache      CacheConfig      `yaml:"cache"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	Reflection      bool          `yaml:"reflection"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DetectionConfig holds the detector defaults applied at boot.
type DetectionConfig struct {
	ZScoreThreshold      float64       `yaml:"zScoreThreshold"`
	IQRMultiplier        float64       `yaml:"iqrMultiplier"`
	TrendChangeThreshold float64       `yaml:"trendChangeThreshold"`
	MinDataPoints        int           `yaml:"minDataPoints"`
	AlertCooldown        time.Duration `yaml:"alertCooldown"`
}

// ThresholdsConfig points at the YAML file overriding the preset thresholds.
type ThresholdsConfig struct {
	Path string `yaml:"path"`
}

// StoreConfig controls the SQLite alert and threshold store.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// CacheConfig controls the Valkey connection used for series caching and the shared cooldown.
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Addr           string        `yaml:"addr"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	KeyPrefix      string        `yaml:"keyPrefix"`
	DialTimeout    time.Duration `yaml:"dialTimeout"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
	WriteTimeout   time.Duration `yaml:"writeTimeout"`
	MaxRetries     int           `yaml:"maxRetries"`
	TLS            bool          `yaml:"tls"`
	SeriesTTL      time.Duration `yaml:"seriesTTL"`
	SharedCooldown bool          `yaml:"sharedCooldown"`
}

// LedgerConfig configures the cooperative ledger API serving metric series.
type LedgerConfig struct {
	BaseURL        string        `yaml:"baseURL"`
	SeriesPath     string        `yaml:"seriesPath"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"maxRetries"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
}

// WatchConfig lists the metrics re-evaluated on a timer.
type WatchConfig struct {
	Jobs []WatchJob `yaml:"jobs"`
}

// WatchJob re-runs detection for Metric every Interval over the trailing Lookback window.
type WatchJob struct {
	Metric   string        `yaml:"metric"`
	Interval time.Duration `yaml:"interval"`
	Lookback time.Duration `yaml:"lookback"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50061",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			Reflection:      true,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Detection: DetectionConfig{
			ZScoreThreshold:      2.5,
			IQRMultiplier:        1.5,
			TrendChangeThreshold: 0.2,
			MinDataPoints:        10,
			AlertCooldown:        5 * time.Minute,
		},
		Thresholds: ThresholdsConfig{Path: "configs/thresholds/default.yaml"},
		Store:      StoreConfig{Enabled: true, Path: "data/anomaly.db"},
		Cache: CacheConfig{
			Enabled:      false,
			KeyPrefix:    "koperasi:",
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			SeriesTTL:    time.Minute,
		},
		Ledger: LedgerConfig{
			SeriesPath:     "/api/v1/metrics/series",
			Timeout:        5 * time.Second,
			MaxRetries:     3,
			InitialBackoff: 200 * time.Millisecond,
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	add := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if c.Server.Address == "" {
		add("server.address is required")
	}
	if c.Detection.ZScoreThreshold <= 0 {
		add("detection.zScoreThreshold must be positive")
	}
	if c.Detection.IQRMultiplier <= 0 {
		add("detection.iqrMultiplier must be positive")
	}
	if c.Detection.TrendChangeThreshold <= 0 {
		add("detection.trendChangeThreshold must be positive")
	}
	if c.Detection.MinDataPoints < 1 {
		add("detection.minDataPoints must be at least 1")
	}
	if c.Detection.AlertCooldown < 0 {
		add("detection.alertCooldown must not be negative")
	}
	if c.Store.Enabled && c.Store.Path == "" {
		add("store.path is required when the store is enabled")
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		add("cache.addr is required when the cache is enabled")
	}
	if c.Ledger.MaxRetries < 0 {
		add("ledger.maxRetries must not be negative")
	}
	if len(c.Watch.Jobs) > 0 && c.Ledger.BaseURL == "" {
		add("ledger.baseURL is required when watch jobs are configured")
	}
	for i, job := range c.Watch.Jobs {
		if job.Metric == "" {
			add("watch.jobs[%d].metric is required", i)
		}
		if job.Interval <= 0 {
			add("watch.jobs[%d].interval must be positive", i)
		}
		if job.Lookback <= 0 {
			add("watch.jobs[%d].lookback must be positive", i)
		}
	}

	return result.ErrorOrNil()
}

func applyEnvOverrides(cfg *Config) {
	envString("SERVER_ADDRESS", &cfg.Server.Address)
	envString("METRICS_ADDRESS", &cfg.Server.MetricsAddress)
	envDuration("GRACEFUL_TIMEOUT", &cfg.Server.GracefulTimeout)
	envBool("REFLECTION", &cfg.Server.Reflection)

	envString("LOG_LEVEL", &cfg.Logging.Level)
	if v := os.Getenv(envPrefix + "LOG_FORMAT"); v != "" {
		cfg.Logging.JSON = strings.EqualFold(v, "json")
	}

	envFloat("ZSCORE_THRESHOLD", &cfg.Detection.ZScoreThreshold)
	envFloat("IQR_MULTIPLIER", &cfg.Detection.IQRMultiplier)
	envFloat("TREND_CHANGE_THRESHOLD", &cfg.Detection.TrendChangeThreshold)
	envInt("MIN_DATA_POINTS", &cfg.Detection.MinDataPoints)
	envDuration("ALERT_COOLDOWN", &cfg.Detection.AlertCooldown)

	envString("THRESHOLDS_PATH", &cfg.Thresholds.Path)

	envBool("STORE_ENABLED", &cfg.Store.Enabled)
	envString("STORE_PATH", &cfg.Store.Path)

	envBool("CACHE_ENABLED", &cfg.Cache.Enabled)
	envString("CACHE_ADDR", &cfg.Cache.Addr)
	envString("CACHE_USERNAME", &cfg.Cache.Username)
	envString("CACHE_PASSWORD", &cfg.Cache.Password)
	envInt("CACHE_DB", &cfg.Cache.DB)
	envString("CACHE_KEY_PREFIX", &cfg.Cache.KeyPrefix)
	envBool("CACHE_TLS", &cfg.Cache.TLS)
	envDuration("CACHE_DIAL_TIMEOUT", &cfg.Cache.DialTimeout)
	envDuration("CACHE_READ_TIMEOUT", &cfg.Cache.ReadTimeout)
	envDuration("CACHE_WRITE_TIMEOUT", &cfg.Cache.WriteTimeout)
	envInt("CACHE_MAX_RETRIES", &cfg.Cache.MaxRetries)
	envDuration("CACHE_SERIES_TTL", &cfg.Cache.SeriesTTL)
	envBool("CACHE_SHARED_COOLDOWN", &cfg.Cache.SharedCooldown)

	envString("LEDGER_BASE_URL", &cfg.Ledger.BaseURL)
	envString("LEDGER_SERIES_PATH", &cfg.Ledger.SeriesPath)
	envDuration("LEDGER_TIMEOUT", &cfg.Ledger.Timeout)
	envInt("LEDGER_MAX_RETRIES", &cfg.Ledger.MaxRetries)
	envDuration("LEDGER_INITIAL_BACKOFF", &cfg.Ledger.InitialBackoff)
}

func envString(key string, dst *string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
