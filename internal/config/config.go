package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Dedupe    DedupeConfig    `yaml:"dedupe" mapstructure:"dedupe"`
	Selector  SelectorConfig  `yaml:"selector" mapstructure:"selector"`
	Roles     RolesConfig     `yaml:"roles" mapstructure:"roles"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key             string  `yaml:"key" mapstructure:"key"`
	Model           string  `yaml:"model" mapstructure:"model"`
	MaxTokens       int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs     int     `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	RequestsPerSec  float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// ExtractConfig configures per-node extraction behavior.
type ExtractConfig struct {
	Concurrency      int     `yaml:"concurrency" mapstructure:"concurrency"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	BackoffMult      float64 `yaml:"backoff_mult" mapstructure:"backoff_mult"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// DedupeConfig configures duplicate detection.
type DedupeConfig struct {
	Threshold       float64 `yaml:"threshold" mapstructure:"threshold"`
	AmbiguityMargin float64 `yaml:"ambiguity_margin" mapstructure:"ambiguity_margin"`
}

// SelectorConfig configures which actions reach the final checklist.
type SelectorConfig struct {
	IncludeFlagged  bool     `yaml:"include_flagged" mapstructure:"include_flagged"`
	MinLevel        string   `yaml:"min_level" mapstructure:"min_level"`
	ExcludeSubjects []string `yaml:"exclude_subjects" mapstructure:"exclude_subjects"`
}

// RolesConfig configures role resolution.
type RolesConfig struct {
	TaxonomyPath   string  `yaml:"taxonomy_path" mapstructure:"taxonomy_path"`
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks that the fields required for the given mode are set.
// Mode is "extract" or "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Dedupe.Threshold < 0 || c.Dedupe.Threshold > 1 {
		problems = append(problems, "dedupe.threshold must be between 0 and 1")
	}
	if c.Dedupe.AmbiguityMargin < 0 || c.Dedupe.AmbiguityMargin > 1 {
		problems = append(problems, "dedupe.ambiguity_margin must be between 0 and 1")
	}
	if c.Extract.Concurrency < 1 || c.Extract.Concurrency > 32 {
		problems = append(problems, "extract.concurrency must be between 1 and 32")
	}

	switch mode {
	case "extract":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	case "serve":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CHECKLIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "checklist.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.request_timeout_secs", 60)
	v.SetDefault("extract.concurrency", 4)
	v.SetDefault("extract.max_attempts", 3)
	v.SetDefault("extract.initial_backoff_ms", 500)
	v.SetDefault("extract.max_backoff_ms", 30000)
	v.SetDefault("extract.backoff_mult", 2.0)
	v.SetDefault("extract.breaker_threshold", 5)
	v.SetDefault("extract.breaker_reset_secs", 30)
	v.SetDefault("dedupe.threshold", 0.85)
	v.SetDefault("dedupe.ambiguity_margin", 0.10)
	v.SetDefault("selector.include_flagged", false)
	v.SetDefault("roles.fuzzy_threshold", 0.6)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
