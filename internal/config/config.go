package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Validate.
const (
	DefaultSession    = "collab"
	DefaultRedisURL   = "redis://localhost:6379"
	DefaultRedisImage = "redis:7-alpine"
	DefaultRedisPort  = 6379
	DefaultHealthAddr = ":8080"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"

	DefaultConstantFeedback = true
)

// Environment variables that override file values.
const (
	EnvSession  = "COLLAB_SESSION"
	EnvRedisURL = "REDIS_URL"
	EnvIndex    = "COLLAB_INDEX"
	EnvLogLevel = "COLLAB_LOG_LEVEL"
)

// CollabConfig represents the top-level collab.yml configuration
type CollabConfig struct {
	Version     string             `yaml:"version"`
	Session     string             `yaml:"session"`
	RedisURL    string             `yaml:"redis_url"`
	Coordinator *CoordinatorConfig `yaml:"coordinator,omitempty"`
	Participant *ParticipantConfig `yaml:"participant,omitempty"`
	Logging     *LoggingConfig     `yaml:"logging,omitempty"`
	Services    *ServicesConfig    `yaml:"services,omitempty"`
}

// CoordinatorConfig configures the coordinator process
type CoordinatorConfig struct {
	Experiment       string `yaml:"experiment,omitempty"` // Experiment definition opened at startup
	ConstantFeedback *bool  `yaml:"constant_feedback,omitempty"` // Default: true
	TrialLog         string `yaml:"trial_log,omitempty"`   // JSONL trial log path; empty disables it
	HealthAddr       string `yaml:"health_addr,omitempty"` // Default: ":8080"; "-" disables the server
}

// ParticipantConfig configures a participant process
type ParticipantConfig struct {
	Index            *int  `yaml:"index,omitempty"`
	ConstantFeedback *bool `yaml:"constant_feedback,omitempty"` // Default: true
}

// LoggingConfig selects the log level and handler
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // text or json
}

// ServicesConfig specifies service-level overrides
type ServicesConfig struct {
	Redis *ServiceOverride `yaml:"redis,omitempty"`
}

// ServiceOverride allows overriding the default service image and host port
type ServiceOverride struct {
	Image string `yaml:"image,omitempty"`
	Port  int    `yaml:"port,omitempty"`
}

// Default returns a validated configuration with every default applied.
func Default() *CollabConfig {
	cfg := &CollabConfig{Version: "1.0"}
	// Defaults always validate.
	_ = cfg.Validate()
	return cfg
}

// Validate performs strict validation on the configuration and applies
// defaults for omitted sections.
func (c *CollabConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Session == "" {
		c.Session = DefaultSession
	}
	if strings.ContainsAny(c.Session, ": \t\n") {
		return fmt.Errorf("invalid session name '%s': must not contain colons or whitespace", c.Session)
	}

	if c.RedisURL == "" {
		c.RedisURL = DefaultRedisURL
	}
	if _, err := redis.ParseURL(c.RedisURL); err != nil {
		return fmt.Errorf("invalid redis_url: %w", err)
	}

	if c.Coordinator == nil {
		c.Coordinator = &CoordinatorConfig{}
	}
	if c.Coordinator.HealthAddr == "" {
		c.Coordinator.HealthAddr = DefaultHealthAddr
	}
	if c.Coordinator.ConstantFeedback == nil {
		c.Coordinator.ConstantFeedback = boolPtr(DefaultConstantFeedback)
	}

	if c.Participant == nil {
		c.Participant = &ParticipantConfig{}
	}
	if c.Participant.ConstantFeedback == nil {
		c.Participant.ConstantFeedback = boolPtr(DefaultConstantFeedback)
	}
	if c.Participant.Index != nil && *c.Participant.Index < 0 {
		return fmt.Errorf("participant.index must be >= 0, got %d", *c.Participant.Index)
	}

	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging.format: %s (must be 'text' or 'json')", c.Logging.Format)
	}

	if c.Services == nil {
		c.Services = &ServicesConfig{}
	}
	if c.Services.Redis == nil {
		c.Services.Redis = &ServiceOverride{}
	}
	if c.Services.Redis.Image == "" {
		c.Services.Redis.Image = DefaultRedisImage
	}
	if c.Services.Redis.Port == 0 {
		c.Services.Redis.Port = DefaultRedisPort
	}
	if c.Services.Redis.Port < 1 || c.Services.Redis.Port > 65535 {
		return fmt.Errorf("services.redis.port must be between 1 and 65535, got %d", c.Services.Redis.Port)
	}

	return nil
}

// ApplyEnv overrides file values with the COLLAB_* and REDIS_URL
// environment variables. getenv is usually os.Getenv.
func (c *CollabConfig) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvSession); v != "" {
		c.Session = v
	}
	if v := getenv(EnvRedisURL); v != "" {
		c.RedisURL = v
	}
	if v := getenv(EnvIndex); v != "" {
		index, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("failed to parse %s as integer: %w", EnvIndex, err)
		}
		if c.Participant == nil {
			c.Participant = &ParticipantConfig{}
		}
		c.Participant.Index = &index
	}
	if v := getenv(EnvLogLevel); v != "" {
		if c.Logging == nil {
			c.Logging = &LoggingConfig{}
		}
		c.Logging.Level = v
	}
	return nil
}

// RedisOptions parses the configured Redis URL.
func (c *CollabConfig) RedisOptions() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis_url: %w", err)
	}
	return opts, nil
}

// Load reads collab.yml from the specified path, applies environment
// overrides and validates the result
func Load(path string) (*CollabConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config CollabConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return finish(&config)
}

// LoadOrDefault behaves like Load but starts from the defaults when path
// does not exist.
func LoadOrDefault(path string) (*CollabConfig, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return finish(&CollabConfig{Version: "1.0"})
	}
	return cfg, err
}

func finish(config *CollabConfig) (*CollabConfig, error) {
	if err := config.ApplyEnv(os.Getenv); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func boolPtr(b bool) *bool { return &b }
