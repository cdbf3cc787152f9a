// Package config handles loading and managing application configuration
// from YAML files, an optional .env file and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSecretKey is the development secret. Validate refuses it in production.
const DefaultSecretKey = "dev-secret-key-change-in-production"

// Config holds all application configuration values.
type Config struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	DataDir         string   `yaml:"data_dir"`
	DatabasePath    string   `yaml:"database_path"`
	SecretKey       string   `yaml:"secret_key"`
	Environment     string   `yaml:"environment"`
	Debug           *bool    `yaml:"debug"`
	BaseURL         string   `yaml:"base_url"`
	LogoPath        string   `yaml:"logo_path"`
	WebhookURL      string   `yaml:"webhook_url"`
	LogLevel        string   `yaml:"log_level"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// Duration is a wrapper around time.Duration that supports YAML unmarshalling
// from human-readable strings like "30s", "5m", "1h".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            5001,
		DataDir:         ".",
		SecretKey:       DefaultSecretKey,
		Environment:     "development",
		LogoPath:        filepath.Join("static", "logo.png"),
		LogLevel:        "",
		ShutdownTimeout: Duration{10 * time.Second},
	}
}

// Load reads configuration from the YAML file at path, falling back to
// defaults if the file does not exist. A .env file in the working directory
// is loaded into the process environment first; environment variables then
// override any file or default values.
func Load(path string) (*Config, error) {
	// Missing .env is the normal case outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.finalize()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to cfg.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("SECRET_KEY"); v != "" {
		cfg.SecretKey = v
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.Environment = v
	} else if v := os.Getenv("FLASK_ENV"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("DEBUG"); v != "" {
		if b, ok := parseBool(v); ok {
			cfg.Debug = &b
		}
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v, ok := os.LookupEnv("LOGO_PATH"); ok {
		cfg.LogoPath = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.WebhookURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = Duration{d}
		}
	}
}

// finalize fills in values derived from other settings.
func (c *Config) finalize() {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	if c.Debug == nil {
		debug := !c.IsProduction()
		c.Debug = &debug
	}
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, "members.db")
	}
	if c.LogLevel == "" {
		if *c.Debug {
			c.LogLevel = "debug"
		} else {
			c.LogLevel = "info"
		}
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	}
	return false, false
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// DebugEnabled reports whether debug mode is on.
func (c *Config) DebugEnabled() bool {
	return c.Debug != nil && *c.Debug
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the configuration for values the server cannot start with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.SecretKey == "" {
		return errors.New("secret key must not be empty")
	}
	if c.IsProduction() && c.SecretKey == DefaultSecretKey {
		return errors.New("SECRET_KEY must be set in production")
	}
	return nil
}

// EnsureDataDir creates the DataDir and the directory holding the database
// file if they do not already exist.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir %s: %w", c.DataDir, err)
	}
	dbDir := filepath.Dir(c.DatabasePath)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return fmt.Errorf("creating database dir %s: %w", dbDir, err)
	}
	return nil
}
