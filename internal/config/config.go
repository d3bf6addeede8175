// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration. It is populated from a
// yaml file plus PAGEPILOT_* environment overrides via viper.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Replay  ReplayConfig  `mapstructure:"replay" yaml:"replay"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // megabytes, per rotation
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// AgentConfig bounds the decision loop.
type AgentConfig struct {
	MaxSteps            int `mapstructure:"max_steps" yaml:"max_steps"`
	SnapshotTokenBudget int `mapstructure:"snapshot_token_budget" yaml:"snapshot_token_budget"`
	MaxConcurrentTasks  int `mapstructure:"max_concurrent_tasks" yaml:"max_concurrent_tasks"`
}

// LLMConfig configures the model client.
type LLMConfig struct {
	Provider        string        `mapstructure:"provider" yaml:"provider"`
	Model           string        `mapstructure:"model" yaml:"model"`
	APIKey          string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint        string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout      time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature     float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	RequestsPerMin  int           `mapstructure:"requests_per_min" yaml:"requests_per_min"`
}

// BrowserConfig configures the chromedp driver.
type BrowserConfig struct {
	Headless           bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors    bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout      time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	ReadinessTimeout   time.Duration `mapstructure:"readiness_timeout" yaml:"readiness_timeout"`
	ReadinessPollEvery time.Duration `mapstructure:"readiness_poll_every" yaml:"readiness_poll_every"`
}

// CacheConfig selects the action-cache store backend.
type CacheConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // "memory", "sqlite" or "postgres"
	Path    string `mapstructure:"path" yaml:"path"`       // sqlite file path
	DSN     string `mapstructure:"dsn" yaml:"dsn"`         // postgres connection string
}

// ReplayConfig tunes the replay engine.
type ReplayConfig struct {
	MaxXPathRetries int  `mapstructure:"max_xpath_retries" yaml:"max_xpath_retries"`
	Debug           bool `mapstructure:"debug" yaml:"debug"`
}

// Load reads configuration from the given file (or ./config.yaml when empty),
// applies env overrides and defaults, and validates the result.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PAGEPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be positive, got %d", c.Agent.MaxSteps)
	}
	if c.Agent.SnapshotTokenBudget <= 0 {
		return fmt.Errorf("agent.snapshot_token_budget must be positive, got %d", c.Agent.SnapshotTokenBudget)
	}
	if c.Replay.MaxXPathRetries < 1 {
		return fmt.Errorf("replay.max_xpath_retries must be at least 1, got %d", c.Replay.MaxXPathRetries)
	}
	switch c.Cache.Backend {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "postgres" && c.Cache.DSN == "" {
		return fmt.Errorf("cache.dsn is required for the postgres backend")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "pagepilot")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("agent.max_steps", 40)
	v.SetDefault("agent.snapshot_token_budget", 8000)
	v.SetDefault("agent.max_concurrent_tasks", 4)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.api_timeout", 90*time.Second)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_output_tokens", 2048)
	v.SetDefault("llm.requests_per_min", 30)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", 45*time.Second)
	v.SetDefault("browser.action_timeout", 15*time.Second)
	v.SetDefault("browser.readiness_timeout", 5*time.Second)
	v.SetDefault("browser.readiness_poll_every", 50*time.Millisecond)

	v.SetDefault("cache.backend", "sqlite")
	v.SetDefault("cache.path", "pagepilot-cache.db")

	v.SetDefault("replay.max_xpath_retries", 3)
}
