// Package config loads Hadra's settings from an optional YAML file with
// environment overrides on top.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Media   MediaConfig   `yaml:"media"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type StorageConfig struct {
	// Driver is one of memory, file, sqlite or postgres
	Driver   string         `yaml:"driver"`
	Path     string         `yaml:"path"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type MediaConfig struct {
	// EncodeTimeout bounds how long reading one attachment may take
	EncodeTimeout time.Duration `yaml:"encode_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Storage: StorageConfig{
			Driver: DriverFile,
			Path:   "./data",
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     "5432",
				User:     "hadra",
				Password: "hadra_dev_password",
				Name:     "hadra",
			},
		},
		Auth: AuthConfig{
			JWTSecret:  "dev-secret-change-me",
			SessionTTL: 24 * time.Hour,
		},
		Media: MediaConfig{EncodeTimeout: 30 * time.Second},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path when it is non-empty, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverPostgres:
	case DriverFile, DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s driver", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver %q is not one of memory, file, sqlite, postgres", c.Storage.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl must be positive")
	}
	if c.Media.EncodeTimeout <= 0 {
		return fmt.Errorf("media.encode_timeout must be positive")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("HADRA_PORT", c.Server.Port)
	c.Storage.Driver = getEnv("HADRA_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.Path = getEnv("HADRA_STORAGE_PATH", c.Storage.Path)
	c.Storage.Postgres.Host = getEnv("DB_HOST", c.Storage.Postgres.Host)
	c.Storage.Postgres.Port = getEnv("DB_PORT", c.Storage.Postgres.Port)
	c.Storage.Postgres.User = getEnv("DB_USER", c.Storage.Postgres.User)
	c.Storage.Postgres.Password = getEnv("DB_PASSWORD", c.Storage.Postgres.Password)
	c.Storage.Postgres.Name = getEnv("DB_NAME", c.Storage.Postgres.Name)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Log.Level = getEnv("HADRA_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("HADRA_LOG_FORMAT", c.Log.Format)
}

// SlogLevel maps the configured level name onto a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level %q is not one of debug, info, warn, error", l.Level)
}

// NewLogger builds the process logger from the log settings.
func (l LogConfig) NewLogger() *slog.Logger {
	level, err := l.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return fallback
}
