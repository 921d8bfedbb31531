package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"agentbridge/pkg/logx"
)

// Load builds the effective configuration. configPath and envPath may be
// empty; a missing YAML file is only an error when it was explicitly
// requested. The .env file is a convenience for local runs and its absence
// is never an error.
func Load(configPath, envPath string) (*Config, error) {
	logger := logx.NewLogger("config")

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envPath, err)
		}
	} else if err := godotenv.Load(); err == nil {
		logger.Debug("loaded environment from .env")
	}

	cfg := Defaults()

	if configPath != "" {
		if err := loadFile(&cfg, configPath); err != nil {
			return nil, err
		}
		logger.Info("loaded config file %s", configPath)
	} else if _, err := os.Stat("agentbridge.yaml"); err == nil {
		if err := loadFile(&cfg, "agentbridge.yaml"); err != nil {
			return nil, err
		}
		logger.Info("loaded config file agentbridge.yaml")
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// fileConfig mirrors Config for YAML decoding; durations are Go duration
// strings ("30s", "500ms") since yaml cannot decode time.Duration directly.
type fileConfig struct {
	TelegramToken  *string  `yaml:"telegram_token"`
	APIKey         *string  `yaml:"api_key"`
	AgentID        *string  `yaml:"agent_id"`
	BaseURL        *string  `yaml:"base_url"`
	AgentEndpoint  *string  `yaml:"agent_endpoint"`
	AgentAccessKey *string  `yaml:"agent_access_key"`
	RequestTimeout *string  `yaml:"request_timeout"`
	MaxRetries     *int     `yaml:"max_retries"`
	BaseBackoff    *string  `yaml:"base_backoff"`
	MaxBackoff     *string  `yaml:"max_backoff"`
	RateQPS        *float64 `yaml:"rate_qps"`
	RateBurst      *int     `yaml:"rate_burst"`
	RateCooldown   *string  `yaml:"rate_cooldown"`
	OpsAddr        *string  `yaml:"ops_addr"`
	DBPath         *string  `yaml:"db_path"`
}

func loadFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	applyString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	applyString(&cfg.TelegramToken, fc.TelegramToken)
	applyString(&cfg.APIKey, fc.APIKey)
	applyString(&cfg.AgentID, fc.AgentID)
	applyString(&cfg.BaseURL, fc.BaseURL)
	applyString(&cfg.AgentEndpoint, fc.AgentEndpoint)
	applyString(&cfg.AgentAccessKey, fc.AgentAccessKey)
	applyString(&cfg.OpsAddr, fc.OpsAddr)
	applyString(&cfg.DBPath, fc.DBPath)

	if fc.MaxRetries != nil {
		cfg.MaxRetries = *fc.MaxRetries
	}
	if fc.RateQPS != nil {
		cfg.RateQPS = *fc.RateQPS
	}
	if fc.RateBurst != nil {
		cfg.RateBurst = *fc.RateBurst
	}

	applyDuration := func(dst *time.Duration, src *string, field string) error {
		if src == nil {
			return nil
		}
		d, err := time.ParseDuration(*src)
		if err != nil {
			return fmt.Errorf("parse %s in %s: %w", field, path, err)
		}
		*dst = d
		return nil
	}
	if err := applyDuration(&cfg.RequestTimeout, fc.RequestTimeout, "request_timeout"); err != nil {
		return err
	}
	if err := applyDuration(&cfg.BaseBackoff, fc.BaseBackoff, "base_backoff"); err != nil {
		return err
	}
	if err := applyDuration(&cfg.MaxBackoff, fc.MaxBackoff, "max_backoff"); err != nil {
		return err
	}
	return applyDuration(&cfg.RateCooldown, fc.RateCooldown, "rate_cooldown")
}

// applyEnv overlays environment variables onto cfg. Variable names follow
// the original deployment surface of the bot.
func applyEnv(cfg *Config) {
	setString(&cfg.TelegramToken, "TELEGRAM_BOT_TOKEN")
	setString(&cfg.APIKey, "DO_API_KEY")
	setString(&cfg.AgentID, "DO_AGENT_ID")
	setString(&cfg.BaseURL, "DO_API_BASE_URL")
	setString(&cfg.AgentEndpoint, "AGENT_ENDPOINT")
	setString(&cfg.AgentAccessKey, "AGENT_ACCESS_KEY")
	setString(&cfg.OpsAddr, "OPS_ADDR")
	setString(&cfg.DBPath, "DB_PATH")

	setSeconds(&cfg.RequestTimeout, "REQUEST_TIMEOUT")
	setSeconds(&cfg.BaseBackoff, "API_BASE_BACKOFF")
	setSeconds(&cfg.MaxBackoff, "API_MAX_BACKOFF")
	setSeconds(&cfg.RateCooldown, "API_RATE_LIMIT_COOLDOWN")

	setInt(&cfg.MaxRetries, "API_MAX_RETRIES")
	setInt(&cfg.RateBurst, "API_RATE_LIMIT_BURST")
	setFloat(&cfg.RateQPS, "API_RATE_LIMIT_QPS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logx.Warnf("ignoring %s=%q: %v", key, v, err)
		return
	}
	*dst = n
}

func setFloat(dst *float64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logx.Warnf("ignoring %s=%q: %v", key, v, err)
		return
	}
	*dst = f
}

// setSeconds parses a duration expressed as seconds (matching the original
// deployment surface), falling back to Go duration syntax.
func setSeconds(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logx.Warnf("ignoring %s=%q: %v", key, v, err)
		return
	}
	*dst = d
}
