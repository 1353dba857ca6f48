package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Interview InterviewConfig `yaml:"interview" mapstructure:"interview"`
	Voice     VoiceConfig     `yaml:"voice" mapstructure:"voice"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings. The conductor streams with
// the sonnet model; validator and extractor run one-shot on haiku; the
// planner uses opus.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	OpusModel   string `yaml:"opus_model" mapstructure:"opus_model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// InterviewConfig configures the orchestration engine.
type InterviewConfig struct {
	// ConfidenceThreshold is the minimum validator confidence required to
	// advance the active question when the goal is met.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`

	// HistoryLimit bounds the turn history handed to the conductor.
	HistoryLimit int `yaml:"history_limit" mapstructure:"history_limit"`

	// StreamBuffer sizes the bounded channel between the conductor's
	// producer goroutine and the event consumer.
	StreamBuffer int `yaml:"stream_buffer" mapstructure:"stream_buffer"`
}

// VoiceConfig configures the external voice session integration.
type VoiceConfig struct {
	AgentID string `yaml:"agent_id" mapstructure:"agent_id"`
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// MinTurnsForResume is the minimum number of exchanged turns before a
	// disconnect is treated as a genuine session end worth resuming.
	// Shorter sessions are treated as transient noise.
	MinTurnsForResume int `yaml:"min_turns_for_resume" mapstructure:"min_turns_for_resume"`

	// ProgressPushInterval floors the time between contextual progress
	// pushes into a live session.
	ProgressPushInterval time.Duration `yaml:"progress_push_interval" mapstructure:"progress_push_interval"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "forge.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.opus_model", "claude-opus-4-6")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("interview.confidence_threshold", 0.7)
	v.SetDefault("interview.history_limit", 40)
	v.SetDefault("interview.stream_buffer", 64)
	v.SetDefault("voice.base_url", "https://api.elevenlabs.io")
	v.SetDefault("voice.min_turns_for_resume", 4)
	v.SetDefault("voice.progress_push_interval", 5*time.Second)

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

// Validate checks that the configuration required for the given mode is
// present and in range. Modes: "serve" (HTTP server), "forge" (CLI
// interview commands).
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "serve", "forge":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Anthropic.Key == "" {
		problems = append(problems, "anthropic.key is required")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if c.Interview.ConfidenceThreshold < 0 || c.Interview.ConfidenceThreshold > 1 {
		problems = append(problems, "interview.confidence_threshold must be between 0 and 1")
	}
	if c.Interview.HistoryLimit < 0 {
		problems = append(problems, "interview.history_limit must be >= 0")
	}

	if mode == "serve" {
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Voice.MinTurnsForResume < 1 {
			problems = append(problems, "voice.min_turns_for_resume must be >= 1")
		}
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
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
