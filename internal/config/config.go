// Package config loads console configuration from a YAML file with
// COLLEXA_* environment overrides on top. A missing file is not an
// error; the defaults point at the hosted platform.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	API  APIConfig  `yaml:"api"`
	Auth AuthConfig `yaml:"auth"`
	Team string     `yaml:"team"`
	Log  LogConfig  `yaml:"log"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// AuthConfig identifies the identity-provider project the console
// belongs to. The console never speaks the auth protocol itself; these
// values only shape the login instructions shown to the user.
type AuthConfig struct {
	ProjectID      string `yaml:"project_id"`
	PublishableKey string `yaml:"publishable_key"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "https://api.collexa.dev",
			Timeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the standard config location,
// $XDG_CONFIG_HOME/collexa/config.yaml or the platform equivalent.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "collexa", "config.yaml")
}

// Load reads the config file at path, then applies environment
// overrides. The file must exist; use LoadOrDefault when it may not.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but treats a missing file as empty:
// defaults plus environment overrides.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	cfg := defaultConfig()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers COLLEXA_* variables over the file values. A .env in
// the working directory is picked up first, which keeps local mock
// setups out of the real config file.
func (c *Config) applyEnv() {
	_ = godotenv.Load(".env")

	c.API.BaseURL = getEnv("COLLEXA_API_URL", c.API.BaseURL)
	c.API.Timeout = getEnvAsDuration("COLLEXA_API_TIMEOUT", c.API.Timeout)
	c.Auth.ProjectID = getEnv("COLLEXA_AUTH_PROJECT_ID", c.Auth.ProjectID)
	c.Auth.PublishableKey = getEnv("COLLEXA_AUTH_PUBLISHABLE_KEY", c.Auth.PublishableKey)
	c.Team = getEnv("COLLEXA_TEAM_ID", c.Team)
	c.Log.Level = getEnv("COLLEXA_LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("COLLEXA_LOG_FILE", c.Log.File)
	if getEnvAsBool("COLLEXA_DEBUG", false) {
		c.Log.Level = "debug"
	}
}

// Validate rejects configurations the clients cannot work with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level %q: %w", c.Log.Level, err)
	}
	return nil
}

// EventsURL derives the WebSocket endpoint for the live event feed
// from the API base URL.
func (c *Config) EventsURL() string {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = "/v1/events"
	return u.String()
}

// BuildLogger constructs the console logger. Production encoding goes
// to the configured file, or to stderr when none is set. TUI sessions
// must pass a file so log lines don't tear the display.
func (c *Config) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level %q: %w", c.Log.Level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	if c.Log.File != "" {
		zcfg.OutputPaths = []string{c.Log.File}
		zcfg.ErrorOutputPaths = []string{c.Log.File}
	} else {
		zcfg.OutputPaths = []string{"stderr"}
	}
	return zcfg.Build()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
