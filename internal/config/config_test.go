package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)

	assert.Equal(t, "epub", cfg.DefaultFormat)
	assert.Equal(t, DefaultMirrors, cfg.Mirrors)
	assert.Equal(t, DefaultMirrors[0], cfg.PreferredMirror)
	assert.True(t, cfg.MirrorFailover)
	assert.Equal(t, time.Second, cfg.RateLimit())
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 2, cfg.MaxDownloadWorkers)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
download_dir = "/data/comics"
default_format = "mobi"
mirrors = ["kzz.moe"]
preferred_mirror = "kzz.moe"
rate_limit_delay = 0.5
max_download_workers = 4
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/comics", cfg.DownloadDir)
	assert.Equal(t, "mobi", cfg.DefaultFormat)
	assert.Equal(t, []string{"kzz.moe"}, cfg.Mirrors)
	assert.Equal(t, 500*time.Millisecond, cfg.RateLimit())
	assert.Equal(t, 4, cfg.MaxDownloadWorkers)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad format", `default_format = "pdf"`},
		{"no mirrors", `mirrors = []`},
		{"negative delay", `rate_limit_delay = -1.0`},
		{"zero workers", `max_download_workers = 0`},
		{"unparsable", `default_format = `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.DefaultFormat = "mobi"
	cfg.MaxRetries = 5
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	cfg := Default()
	cfg.Mirrors = nil
	err := Save(filepath.Join(t.TempDir(), "config.toml"), cfg)
	assert.Error(t, err)
}
