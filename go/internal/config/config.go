package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the clockd configuration. Values come from an optional YAML file
// and are then overridden by environment variables.
type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"server"`

	Log struct {
		Level   string `yaml:"level"`
		Console bool   `yaml:"console"`
	} `yaml:"log"`

	Clock struct {
		DefaultMinutes    float64       `yaml:"default_minutes"`
		TickInterval      time.Duration `yaml:"tick_interval"`
		BroadcastInterval time.Duration `yaml:"broadcast_interval"`
	} `yaml:"clock"`

	WebSocket struct {
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		MaxMessageSize int64         `yaml:"max_message_size"`
	} `yaml:"websocket"`

	NATS struct {
		URL           string        `yaml:"url"`
		StreamName    string        `yaml:"stream_name"`
		SubjectPrefix string        `yaml:"subject_prefix"`
		MaxAge        time.Duration `yaml:"max_age"`
	} `yaml:"nats"`
}

// Default returns the built-in configuration
func Default() *Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Server.ReadTimeout = 10 * time.Second
	cfg.Server.WriteTimeout = 10 * time.Second
	cfg.Server.IdleTimeout = 120 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Server.AllowedOrigins = []string{"*"}

	cfg.Log.Level = "info"
	cfg.Log.Console = true

	cfg.Clock.DefaultMinutes = 10
	cfg.Clock.TickInterval = 100 * time.Millisecond
	cfg.Clock.BroadcastInterval = time.Second

	cfg.WebSocket.WriteTimeout = 10 * time.Second
	cfg.WebSocket.ReadTimeout = 60 * time.Second
	cfg.WebSocket.PingInterval = 30 * time.Second
	cfg.WebSocket.MaxMessageSize = 1024

	cfg.NATS.StreamName = "CLOCK_EVENTS"
	cfg.NATS.SubjectPrefix = "clock.events"
	cfg.NATS.MaxAge = 24 * time.Hour
	return &cfg
}

// Load reads path (if it exists) over the defaults, then applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Clock.DefaultMinutes = getEnvAsFloat("CLOCK_DEFAULT_MINUTES", c.Clock.DefaultMinutes)
	c.Clock.TickInterval = getEnvAsDuration("CLOCK_TICK_INTERVAL", c.Clock.TickInterval)
	c.Clock.BroadcastInterval = getEnvAsDuration("CLOCK_BROADCAST_INTERVAL", c.Clock.BroadcastInterval)
	c.WebSocket.MaxMessageSize = int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", int(c.WebSocket.MaxMessageSize)))
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.StreamName = getEnv("NATS_STREAM", c.NATS.StreamName)
	c.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	if !(c.Clock.DefaultMinutes > 0) || math.IsInf(c.Clock.DefaultMinutes, 0) {
		return fmt.Errorf("default minutes must be positive and finite, got %v", c.Clock.DefaultMinutes)
	}
	if c.Clock.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.Clock.TickInterval)
	}
	if c.Clock.BroadcastInterval <= 0 {
		return fmt.Errorf("broadcast interval must be positive, got %s", c.Clock.BroadcastInterval)
	}
	return nil
}

// LogLevel returns the parsed log level, defaulting to info
func (c *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
