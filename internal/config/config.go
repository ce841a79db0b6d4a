// Package config loads and persists application settings from a TOML file
// under the user's config directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Mirrors the service is known to operate, in default rank order.
var DefaultMirrors = []string{"kxx.moe", "kzz.moe", "koz.moe"}

// Config holds all user-configurable settings.
type Config struct {
	DownloadDir        string   `toml:"download_dir"`
	DefaultFormat      string   `toml:"default_format"`
	PreferredMirror    string   `toml:"preferred_mirror"`
	Mirrors            []string `toml:"mirrors"`
	MirrorFailover     bool     `toml:"mirror_failover"`
	RateLimitDelay     float64  `toml:"rate_limit_delay"` // seconds
	MaxRetries         int      `toml:"max_retries"`
	MaxDownloadWorkers int      `toml:"max_download_workers"`
	ProxyURL           string   `toml:"proxy_url"`
	LogLevel           string   `toml:"log_level"`
	LogFormat          string   `toml:"log_format"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DownloadDir:        filepath.Join(home, "kmoe-library"),
		DefaultFormat:      "epub",
		PreferredMirror:    DefaultMirrors[0],
		Mirrors:            append([]string(nil), DefaultMirrors...),
		MirrorFailover:     true,
		RateLimitDelay:     1.0,
		MaxRetries:         3,
		MaxDownloadWorkers: 2,
		LogLevel:           "info",
		LogFormat:          "console",
	}
}

// DefaultPath returns the standard location of the config file.
func DefaultPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// DataDir returns the application data directory (session, journal).
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "kmoe")
}

// Load reads the config file at path. A missing file yields defaults; a
// present but unparsable or invalid file is a fatal error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the loaded values for obvious misconfiguration.
func (c *Config) Validate() error {
	if c.DownloadDir == "" {
		return errors.New("download_dir must not be empty")
	}
	if _, ok := validFormats[c.DefaultFormat]; !ok {
		return fmt.Errorf("default_format %q (valid: epub, mobi)", c.DefaultFormat)
	}
	if len(c.Mirrors) == 0 {
		return errors.New("mirrors must list at least one host")
	}
	if c.RateLimitDelay < 0 {
		return errors.New("rate_limit_delay must not be negative")
	}
	if c.MaxRetries < 1 {
		return errors.New("max_retries must be at least 1")
	}
	if c.MaxDownloadWorkers < 1 {
		return errors.New("max_download_workers must be at least 1")
	}
	return nil
}

var validFormats = map[string]struct{}{"epub": {}, "mobi": {}}

// RateLimit returns the configured delay as a duration.
func (c *Config) RateLimit() time.Duration {
	return time.Duration(c.RateLimitDelay * float64(time.Second))
}

// Save writes the config atomically (temp file then rename).
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
