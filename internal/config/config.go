// Package config loads service configuration from an optional YAML file and
// environment variables. Environment variables take precedence.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the configuration shared by the server and the CLI.
type Config struct {
	Port             int           `yaml:"port"`
	LogLevel         string        `yaml:"logLevel"`
	APIKey           string        `yaml:"apiKey"`
	JWTSecret        string        `yaml:"jwtSecret"`
	DatabaseURL      string        `yaml:"databaseURL"` // empty keeps history in memory
	AutoMigrate      bool          `yaml:"autoMigrate"`
	KafkaBrokers     string        `yaml:"kafkaBrokers"`
	KafkaTopic       string        `yaml:"kafkaTopic"`
	CloudProvider    string        `yaml:"cloudProvider"` // aws, gcp or empty
	AWSRegion        string        `yaml:"awsRegion"`
	GCPProject       string        `yaml:"gcpProject"`
	GCPZone          string        `yaml:"gcpZone"`
	ShutdownTimeout  time.Duration `yaml:"shutdownTimeout"`
	SessionIdleTTL   time.Duration `yaml:"sessionIdleTTL"`
	DefaultRequester string        `yaml:"defaultRequester"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:             8080,
		LogLevel:         "info",
		AutoMigrate:      true,
		KafkaTopic:       "ecoscan.history",
		AWSRegion:        "us-east-1",
		ShutdownTimeout:  15 * time.Second,
		SessionIdleTTL:   2 * time.Hour,
		DefaultRequester: "anonymous",
	}
}

// Load reads the file named by ECOSCAN_CONFIG, if any, then applies
// environment overrides.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("ECOSCAN_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.overlayEnv()
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}

func (c *Config) overlayEnv() {
	c.Port = GetEnvInt("PORT", c.Port)
	c.LogLevel = GetEnv("LOG_LEVEL", c.LogLevel)
	c.APIKey = GetEnv("API_KEY", c.APIKey)
	c.JWTSecret = GetEnv("JWT_SECRET", c.JWTSecret)
	c.DatabaseURL = GetEnv("DATABASE_URL", c.DatabaseURL)
	c.AutoMigrate = GetEnvBool("AUTO_MIGRATE", c.AutoMigrate)
	c.KafkaBrokers = GetEnv("KAFKA_BROKERS", c.KafkaBrokers)
	c.KafkaTopic = GetEnv("KAFKA_TOPIC", c.KafkaTopic)
	c.CloudProvider = GetEnv("CLOUD_PROVIDER", c.CloudProvider)
	c.AWSRegion = GetEnv("AWS_REGION", c.AWSRegion)
	c.GCPProject = GetEnv("GCP_PROJECT", c.GCPProject)
	c.GCPZone = GetEnv("GCP_ZONE", c.GCPZone)
	c.ShutdownTimeout = GetEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.SessionIdleTTL = GetEnvDuration("SESSION_IDLE_TTL", c.SessionIdleTTL)
	c.DefaultRequester = GetEnv("DEFAULT_REQUESTER", c.DefaultRequester)
}

// SlogLevel parses the configured log level string into an slog.Level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Addr returns the listen address as ":PORT".
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// AuthEnabled reports whether protected routes require credentials.
func (c Config) AuthEnabled() bool {
	return c.APIKey != "" || c.JWTSecret != ""
}

// GetEnv returns the value of the environment variable or fallback.
func GetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable or fallback.
func GetEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// GetEnvDuration returns the duration value of the environment variable or fallback.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// GetEnvBool returns the boolean value of the environment variable or fallback.
func GetEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
