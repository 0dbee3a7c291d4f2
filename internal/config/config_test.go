package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_CreatesDefault(t *testing.T) {
	clearEnv(t, "PORT", "DATA_DIR", "OCRDESK_STORAGE", "LOG_LEVEL")
	path := filepath.Join(t.TempDir(), "conf", "ocrdesk.xml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.Equal(t, 4444, cfg.Server.Port)
	assert.Equal(t, BackendJSON, cfg.Storage.Backend)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "data", "history"), cfg.Storage.HistoryDirectory)
}

func TestLoadConfig_ReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ocrdesk.xml")

	cfg := DefaultConfig()
	cfg.OCR.Languages = "eng+deu"
	cfg.OCR.MaxConcurrentJobs = 3
	require.NoError(t, cfg.Save(path))

	t.Setenv("PORT", "9100")
	t.Setenv("OCRDESK_STORAGE", "DuckDB")

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, got.Server.Port)
	assert.Equal(t, BackendDuckDB, got.Storage.Backend)
	assert.Equal(t, 3, got.OCR.MaxConcurrentJobs)
	assert.Equal(t, []string{"eng", "deu"}, got.LanguageList())
	assert.Equal(t, "0.0.0.0:9100", got.GetServerAddr())
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ocrdesk.xml")
	cfg := DefaultConfig()
	cfg.Storage.Backend = "postgres"
	require.NoError(t, cfg.Save(path))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "storage backend")
}

func TestLoadClientConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server: http://ocr.local:8000
quiet_period: 250ms
default_type: text
editor:
  jpeg_quality: 80
`), 0644))

	clearEnv(t, "OCRDESK_SERVER", "OCRDESK_QUIET_PERIOD", "OCRDESK_EDITOR")
	t.Setenv("OCRDESK_LOG_LEVEL", "debug")

	cfg, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://ocr.local:8000", cfg.Server)
	assert.Equal(t, 250*time.Millisecond, cfg.QuietPeriod)
	assert.Equal(t, "text", cfg.DefaultType)
	assert.Equal(t, 80, cfg.Editor.JPEGQuality)
	assert.True(t, cfg.Editor.Enabled, "unset keys keep their defaults")
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadClientConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadClientConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadClientConfig_EnvServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: http://a\n"), 0644))
	t.Setenv("OCRDESK_SERVER", "http://b")

	cfg, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://b", cfg.Server)
}

func TestClientConfig_Validate(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.DefaultType = "poem"
	assert.Error(t, cfg.Validate())

	cfg = DefaultClientConfig()
	cfg.QuietPeriod = 0
	assert.Error(t, cfg.Validate())
}
