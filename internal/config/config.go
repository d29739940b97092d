package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	// Remote collaborators
	GetAPIURI   string        `env:"GET_API_URI"`
	PostAPIURI  string        `env:"POST_API_URI"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`

	// Windowing
	SessionGap time.Duration `env:"SESSION_GAP" envDefault:"10m"`
	Workers    int           `env:"SESSIONIZE_WORKERS" envDefault:"4"`

	// Logging
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT"`

	// Local agent
	ServerAddress string `env:"BROWSETRACE_ADDRESS" envDefault:"127.0.0.1:8123"`
	DatabasePath  string `env:"BROWSETRACE_DB_PATH"`
}

// Load reads .env files and then the process environment.
func Load() (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// loadEnvFiles loads ENV_FILE if set, otherwise .env.local and .env.
// Missing files are ignored; variables already set in the environment win.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// GapMillis returns the session gap in milliseconds.
func (c *Config) GapMillis() uint64 {
	return uint64(c.SessionGap / time.Millisecond)
}

func (c *Config) Validate() error {
	if c.SessionGap < time.Millisecond {
		return fmt.Errorf("SESSION_GAP must be at least 1ms, got %s", c.SessionGap)
	}
	if c.Workers < 1 {
		return fmt.Errorf("SESSIONIZE_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("HTTP_TIMEOUT must not be negative, got %s", c.HTTPTimeout)
	}
	for name, raw := range map[string]string{"GET_API_URI": c.GetAPIURI, "POST_API_URI": c.PostAPIURI} {
		if raw == "" {
			continue
		}
		if err := validateURI(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func validateURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URI %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URI %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URI %q has no host", raw)
	}
	return nil
}

// ResolveDatabasePath returns DatabasePath, or events.db inside the
// platform application directory, creating that directory if needed.
func (c *Config) ResolveDatabasePath() (string, error) {
	if c.DatabasePath != "" {
		return c.DatabasePath, nil
	}
	homeDirectory, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	var applicationDirectory string
	switch runtime.GOOS {
	case "darwin":
		applicationDirectory = filepath.Join(homeDirectory, "Library", "Application Support", "BrowserTrace")
	case "windows":
		applicationDirectory = filepath.Join(homeDirectory, "AppData", "Roaming", "BrowserTrace")
	default: // linux and others
		applicationDirectory = filepath.Join(homeDirectory, ".local", "share", "BrowserTrace")
	}
	if err := os.MkdirAll(applicationDirectory, 0o755); err != nil {
		return "", fmt.Errorf("failed to create application directory: %w", err)
	}
	return filepath.Join(applicationDirectory, "events.db"), nil
}
