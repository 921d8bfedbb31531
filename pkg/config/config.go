// Package config provides configuration loading and validation for the bridge.
// Precedence, lowest to highest: built-in defaults, an optional YAML file,
// then environment variables (with .env support for local runs).
package config

import (
	"fmt"
	"time"
)

// Default values mirroring the knobs of the request pipeline.
const (
	DefaultBaseURL        = "https://api.digitalocean.com/v2/ai"
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultBaseBackoff    = 500 * time.Millisecond
	DefaultMaxBackoff     = 60 * time.Second
	DefaultRateQPS        = 5.0
	DefaultRateBurst      = 10
	DefaultRateCooldown   = 5 * time.Second
	DefaultOpsAddr        = ":8090"
	DefaultDBPath         = "agentbridge.db"
)

// Config holds the full configuration surface of the bridge.
//
//nolint:govet // fieldalignment: grouped by concern for readability
type Config struct {
	// Telegram front end.
	TelegramToken string `yaml:"telegram_token"`

	// Agent Service credentials and addressing.
	APIKey         string `yaml:"api_key"`
	AgentID        string `yaml:"agent_id"`
	BaseURL        string `yaml:"base_url"`
	AgentEndpoint  string `yaml:"agent_endpoint"`
	AgentAccessKey string `yaml:"agent_access_key"`

	// Request pipeline tuning.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	BaseBackoff    time.Duration `yaml:"base_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	RateQPS        float64       `yaml:"rate_qps"`
	RateBurst      int           `yaml:"rate_burst"`
	RateCooldown   time.Duration `yaml:"rate_cooldown"`

	// Operational surface.
	OpsAddr string `yaml:"ops_addr"` // Empty disables the ops HTTP server
	DBPath  string `yaml:"db_path"`
}

// Defaults returns a config populated with built-in defaults.
func Defaults() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		RequestTimeout: DefaultRequestTimeout,
		MaxRetries:     DefaultMaxRetries,
		BaseBackoff:    DefaultBaseBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		RateQPS:        DefaultRateQPS,
		RateBurst:      DefaultRateBurst,
		RateCooldown:   DefaultRateCooldown,
		OpsAddr:        DefaultOpsAddr,
		DBPath:         DefaultDBPath,
	}
}

// EndpointMode reports whether direct-endpoint mode will be selected: both
// the endpoint URL and its access key must be present.
func (c *Config) EndpointMode() bool {
	return c.AgentEndpoint != "" && c.AgentAccessKey != ""
}

// Validate checks that the configuration can actually drive the bridge.
func (c *Config) Validate() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("telegram bot token is required (TELEGRAM_BOT_TOKEN)")
	}
	if !c.EndpointMode() && (c.APIKey == "" || c.AgentID == "") {
		return fmt.Errorf("session mode requires both an API key (DO_API_KEY) and an agent id (DO_AGENT_ID); " +
			"alternatively set AGENT_ENDPOINT and AGENT_ACCESS_KEY for endpoint mode")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}
	if c.BaseBackoff <= 0 || c.MaxBackoff <= 0 {
		return fmt.Errorf("backoff bounds must be positive (base=%v, max=%v)", c.BaseBackoff, c.MaxBackoff)
	}
	if c.BaseBackoff > c.MaxBackoff {
		return fmt.Errorf("base backoff %v exceeds max backoff %v", c.BaseBackoff, c.MaxBackoff)
	}
	if c.RateQPS <= 0 {
		return fmt.Errorf("rate limit qps must be positive, got %v", c.RateQPS)
	}
	if c.RateBurst < 1 {
		return fmt.Errorf("rate limit burst must be at least 1, got %d", c.RateBurst)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %v", c.RequestTimeout)
	}
	return nil
}
