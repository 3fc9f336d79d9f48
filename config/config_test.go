package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
http:
  port: 9090
  timeout: 5s
log:
  level: debug
  format: console
models:
  dir: ./artifacts
  default_encoding: onehot-v1
  watch: true
  reload_debounce: 250ms
prediction:
  labels:
    0: "No Disease"
    1: "Disease"
database:
  path: audit.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, int64(1<<20), cfg.HTTP.MaxBodyBytes)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "./artifacts", cfg.Models.Dir)
	assert.Equal(t, "onehot-v1", cfg.Models.DefaultEncoding)
	assert.True(t, cfg.Models.Watch)
	assert.Equal(t, 250*time.Millisecond, cfg.Models.ReloadDebounce)
	assert.Equal(t, 1024, cfg.Prediction.CacheSize)
	assert.Equal(t, "Disease", cfg.Prediction.Labels[1])
	assert.Equal(t, "audit.db", cfg.Database.Path)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
http:
  port: 70000
log:
  level: shouty
prediction:
  cache_size: -1
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http.port")
	assert.Contains(t, err.Error(), "cache_size")
	assert.Contains(t, err.Error(), "shouty")
}

func TestLoadVariants(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
models:
  dir: ./models
  variants:
    - {dir: optimize_non_pca, label: Non-PCA}
    - {dir: optimize_pca, label: PCA}
`))
	require.NoError(t, err)
	assert.Equal(t, []ModelVariant{
		{Dir: "optimize_non_pca", Label: "Non-PCA"},
		{Dir: "optimize_pca", Label: "PCA"},
	}, cfg.Models.Variants)

	_, err = Load(writeConfig(t, `
models:
  variants:
    - {dir: a, label: PCA}
    - {dir: b, label: pca}
    - {dir: c}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "models.variants[1]")
	assert.Contains(t, err.Error(), "models.variants[2]")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
