package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const DefaultBaseURL = "https://api.bosonnlp.com"

// Config holds all application configuration
type Config struct {
	// API settings
	BaseURL     string        `mapstructure:"url"`
	Token       string        `mapstructure:"token"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	Compress    bool          `mapstructure:"compress"`

	// Submission settings
	PushChunkSize int `mapstructure:"push_chunk_size"`

	// Wait settings
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	MaxPollInterval      time.Duration `mapstructure:"max_poll_interval"`
	WaitTimeout          time.Duration `mapstructure:"wait_timeout"`
	MaxTransportFailures int           `mapstructure:"max_transport_failures"`
	NotFoundGrace        int           `mapstructure:"not_found_grace"`

	// Batch settings
	Concurrency int `mapstructure:"concurrency"`

	LogLevel string `mapstructure:"log_level"`
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		BaseURL:              DefaultBaseURL,
		HTTPTimeout:          60 * time.Second,
		Compress:             true,
		PushChunkSize:        100,
		PollInterval:         time.Second,
		MaxPollInterval:      64 * time.Second,
		WaitTimeout:          30 * time.Minute,
		MaxTransportFailures: 3,
		NotFoundGrace:        1,
		Concurrency:          4,
		LogLevel:             "info",
	}
}

// Load builds a configuration from defaults, an optional config file and
// BOSONNLP_* environment variables, in increasing order of precedence.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	v := viper.New()
	v.SetEnvPrefix("BOSONNLP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about
	v.SetDefault("url", cfg.BaseURL)
	v.SetDefault("token", cfg.Token)
	v.SetDefault("http_timeout", cfg.HTTPTimeout)
	v.SetDefault("compress", cfg.Compress)
	v.SetDefault("push_chunk_size", cfg.PushChunkSize)
	v.SetDefault("poll_interval", cfg.PollInterval)
	v.SetDefault("max_poll_interval", cfg.MaxPollInterval)
	v.SetDefault("wait_timeout", cfg.WaitTimeout)
	v.SetDefault("max_transport_failures", cfg.MaxTransportFailures)
	v.SetDefault("not_found_grace", cfg.NotFoundGrace)
	v.SetDefault("concurrency", cfg.Concurrency)
	v.SetDefault("log_level", cfg.LogLevel)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base URL must be an absolute http(s) URL, got: %q", c.BaseURL)
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP timeout must be positive, got: %s", c.HTTPTimeout)
	}

	if c.PushChunkSize < 1 || c.PushChunkSize > 100 {
		return fmt.Errorf("push chunk size must be between 1 and 100, got: %d", c.PushChunkSize)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got: %s", c.PollInterval)
	}

	if c.MaxPollInterval < 0 {
		return fmt.Errorf("max poll interval must be non-negative, got: %s", c.MaxPollInterval)
	}

	if c.WaitTimeout <= 0 {
		return fmt.Errorf("wait timeout must be positive, got: %s", c.WaitTimeout)
	}

	if c.MaxTransportFailures < 1 {
		return fmt.Errorf("max transport failures must be at least 1, got: %d", c.MaxTransportFailures)
	}

	if c.NotFoundGrace < 0 {
		return fmt.Errorf("not found grace must be non-negative, got: %d", c.NotFoundGrace)
	}

	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got: %d", c.Concurrency)
	}

	return nil
}

// RequireToken reports a missing API token; the mock server does not need one.
func (c *Config) RequireToken() error {
	if c.Token == "" {
		return fmt.Errorf("API token is required: set BOSONNLP_TOKEN or pass --token")
	}
	return nil
}
