// Package config loads vulnlab settings.
//
// Settings live at $XDG_CONFIG_HOME/vulnlab/config.yaml (defaults to
// ~/.config/vulnlab/config.yaml). A missing file yields defaults; individual
// fields can be overridden through VULNLAB_* environment variables so the
// server is deployable without a config file at all.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Compose invocation styles. Auto probes `docker compose` first and falls
// back to the legacy standalone binary.
const (
	ComposeAuto   = "auto"
	ComposeModern = "docker compose"
	ComposeLegacy = "docker-compose"
)

// Config is the full settings surface consumed by the registry core.
type Config struct {
	// Root is the directory tree scanned for compose manifests.
	Root string `yaml:"root"`
	// CachePath is the durable registry cache (sqlite file).
	CachePath string `yaml:"cache-path,omitempty"`
	// CacheTTL bounds how old a cached scan may be before a rebuild.
	CacheTTL time.Duration `yaml:"cache-ttl,omitempty"`
	// Listen is the HTTP API bind address.
	Listen string `yaml:"listen,omitempty"`
	// Compose selects the CLI invocation style; see ComposeAuto.
	Compose string `yaml:"compose,omitempty"`
	// ScanWorkers bounds concurrent per-environment probing during a scan.
	ScanWorkers int    `yaml:"scan-workers,omitempty"`
	LogLevel    string `yaml:"log-level,omitempty"`
	LogFormat   string `yaml:"log-format,omitempty"`
}

// Path returns the config file location, respecting XDG_CONFIG_HOME.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "vulnlab", "config.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "vulnlab", "config.yaml")
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Root:        "./vulhub",
		CachePath:   defaultCachePath(),
		CacheTTL:    24 * time.Hour,
		Listen:      ":5000",
		Compose:     ComposeAuto,
		ScanWorkers: 4,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Load reads the config file and applies environment overrides. A missing
// file is not an error.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to disk, creating directories as needed.
func (c *Config) Save() error {
	p := Path()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("VULNLAB_ROOT"); v != "" {
		c.Root = v
	}
	if v := os.Getenv("VULNLAB_CACHE"); v != "" {
		c.CachePath = v
	}
	if v := os.Getenv("VULNLAB_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("VULNLAB_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.CacheTTL = d
		}
	}
	if v := os.Getenv("VULNLAB_COMPOSE"); v != "" {
		c.Compose = v
	}
}

func (c *Config) validate() error {
	switch c.Compose {
	case "", ComposeAuto, ComposeModern, ComposeLegacy:
	default:
		return fmt.Errorf("invalid compose style %q (want %q, %q or %q)",
			c.Compose, ComposeAuto, ComposeModern, ComposeLegacy)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache-ttl must not be negative")
	}
	if c.ScanWorkers < 1 {
		c.ScanWorkers = 1
	}
	return nil
}

func defaultCachePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".local", "share", "vulnlab", "cache.db")
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "vulnlab", "cache.db")
}
