package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/ytsnap/ytsnap/internal/domain"
)

// Config holds all application configuration. Precedence: built-in defaults,
// then the YAML file, then environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Worker   WorkerConfig   `yaml:"worker"`
	Download DownloadConfig `yaml:"download"`
	Proxy    ProxyConfig    `yaml:"proxy"`
	History  HistoryConfig  `yaml:"history"`
}

// ServerConfig holds HTTP server configuration (server binary only).
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
}

// StorageConfig holds filesystem storage configuration.
type StorageConfig struct {
	OutputDir    string `yaml:"output_dir" envconfig:"OUTPUT_DIR"`
	MinFreeBytes int64  `yaml:"min_free_bytes" envconfig:"MIN_FREE_BYTES"`
}

// WorkerConfig bounds the concurrent download pool. The platform rate-limits
// aggressively above a handful of concurrent streams per egress IP, so the
// bound is hard-capped at MaxWorkersLimit.
type WorkerConfig struct {
	MaxWorkers int `yaml:"max_workers" envconfig:"MAX_WORKERS"`
}

// MaxWorkersLimit is the upper bound on concurrent downloads per run.
const MaxWorkersLimit = 10

// DownloadConfig holds per-video download configuration.
type DownloadConfig struct {
	MaxAttempts      int           `yaml:"max_attempts" envconfig:"DOWNLOAD_MAX_ATTEMPTS"`
	RetryDelay       time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY"`
	MaxRetryDelay    time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY"`
	RequestTimeout   time.Duration `yaml:"request_timeout" envconfig:"DOWNLOAD_REQUEST_TIMEOUT"`
	ReadStallTimeout time.Duration `yaml:"read_stall_timeout" envconfig:"DOWNLOAD_READ_STALL_TIMEOUT"`
	ProgressInterval time.Duration `yaml:"progress_interval" envconfig:"DOWNLOAD_PROGRESS_INTERVAL"`
	UserAgent        string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT"`
}

// ProxyConfig holds proxy pool configuration.
type ProxyConfig struct {
	File               string        `yaml:"file" envconfig:"PROXY_FILE"`
	FailureThreshold   int           `yaml:"failure_threshold" envconfig:"PROXY_FAILURE_THRESHOLD"`
	CooldownBase       time.Duration `yaml:"cooldown_base" envconfig:"PROXY_COOLDOWN_BASE"`
	CooldownMax        time.Duration `yaml:"cooldown_max" envconfig:"PROXY_COOLDOWN_MAX"`
	HealthCheck        bool          `yaml:"health_check" envconfig:"PROXY_HEALTH_CHECK"`
	HealthCheckURL     string        `yaml:"health_check_url" envconfig:"PROXY_HEALTH_CHECK_URL"`
	HealthCheckTimeout time.Duration `yaml:"health_check_timeout" envconfig:"PROXY_HEALTH_CHECK_TIMEOUT"`
}

// HistoryConfig holds download-history persistence configuration.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"HISTORY_ENABLED"`
	Path    string `yaml:"path" envconfig:"HISTORY_PATH"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         9480,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
		Storage: StorageConfig{
			OutputDir:    "./downloads",
			MinFreeBytes: 1 << 30, // 1GB
		},
		Worker: WorkerConfig{
			MaxWorkers: 3,
		},
		Download: DownloadConfig{
			MaxAttempts:      3,
			RetryDelay:       2 * time.Second,
			MaxRetryDelay:    30 * time.Second,
			RequestTimeout:   30 * time.Second,
			ReadStallTimeout: 60 * time.Second,
			ProgressInterval: 500 * time.Millisecond,
			UserAgent:        "com.google.android.youtube/19.09.37 (Linux; U; Android 11) gzip",
		},
		Proxy: ProxyConfig{
			FailureThreshold:   3,
			CooldownBase:       30 * time.Second,
			CooldownMax:        15 * time.Minute,
			HealthCheck:        true,
			HealthCheckURL:     "https://www.google.com",
			HealthCheckTimeout: 5 * time.Second,
		},
		History: HistoryConfig{
			Enabled: false,
			Path:    "ytsnap_history.db",
		},
	}
}

// Load reads configuration from an optional YAML file and environment
// variables. Environment variables override file values, which override the
// built-in defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are within accepted bounds.
func (c *Config) Validate() error {
	if c.Worker.MaxWorkers < 1 || c.Worker.MaxWorkers > MaxWorkersLimit {
		return domain.NewConfigurationError("max_workers must be between 1 and %d, got %d", MaxWorkersLimit, c.Worker.MaxWorkers)
	}
	if c.Download.MaxAttempts < 1 {
		return domain.NewConfigurationError("download max_attempts must be >= 1, got %d", c.Download.MaxAttempts)
	}
	if c.Proxy.FailureThreshold < 1 {
		return domain.NewConfigurationError("proxy failure_threshold must be >= 1, got %d", c.Proxy.FailureThreshold)
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
