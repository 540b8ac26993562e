package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 100, cfg.Indexing.MaxFileSizeMB)
	assert.Equal(t, int64(100*1024*1024), cfg.MaxFileSize())
	assert.Equal(t, 100, cfg.Indexing.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Indexing.ParseTimeout)
	assert.Equal(t, 100, cfg.Search.CacheSize)
	assert.Contains(t, cfg.Indexing.ExcludedPaths, "node_modules")
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Indexing.BatchSize, cfg.Indexing.BatchSize)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
indexing:
  max_file_size_mb: 25
  batch_size: 10
  excluded_paths: ["tmp"]
search:
  cache_size: 7
logging:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Indexing.MaxFileSizeMB)
	assert.Equal(t, 10, cfg.Indexing.BatchSize)
	assert.Equal(t, []string{"tmp"}, cfg.Indexing.ExcludedPaths)
	assert.Equal(t, 7, cfg.Search.CacheSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched sections keep defaults
	assert.Equal(t, 30*time.Second, cfg.Indexing.ParseTimeout)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("indexing: [not a map"), 0o644))

	_, err := Load(path)
	assert.Equal(t, qerrors.ErrCodeConfigInvalid, qerrors.GetCode(err))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("QUARRY_WORKERS", "3")
	t.Setenv("QUARRY_BATCH_SIZE", "17")
	t.Setenv("QUARRY_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Indexing.Workers)
	assert.Equal(t, 17, cfg.Indexing.BatchSize)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Indexing.MaxFileSizeMB = 0 },
		func(c *Config) { c.Indexing.BatchSize = -1 },
		func(c *Config) { c.Indexing.Workers = -2 },
		func(c *Config) { c.Indexing.ParseTimeout = 0 },
		func(c *Config) { c.Search.CacheSize = 0 },
	}
	for i, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), "case %d", i)
	}
}

func TestEffectiveWorkers(t *testing.T) {
	cfg := Default()
	cfg.Indexing.Workers = 0
	assert.Positive(t, cfg.EffectiveWorkers())

	cfg.Indexing.Workers = 5
	assert.Equal(t, 5, cfg.EffectiveWorkers())
}
