// Package config loads and validates Quarry configuration.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	qerrors "github.com/quarrysearch/quarry/internal/errors"
)

// Config represents the complete Quarry configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Indexing IndexingConfig `yaml:"indexing" json:"indexing"`
	Search   SearchConfig   `yaml:"search" json:"search"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// IndexingConfig configures scanning and the parse pipeline.
type IndexingConfig struct {
	// MaxFileSizeMB is the largest file the scanner will accept, in megabytes.
	MaxFileSizeMB int `yaml:"max_file_size_mb" json:"max_file_size_mb"`

	// ExcludedExtensions are file extensions never indexed (with leading dot).
	ExcludedExtensions []string `yaml:"excluded_extensions" json:"excluded_extensions"`

	// ExcludedPaths are case-insensitive substrings; any path containing one
	// is skipped during scanning.
	ExcludedPaths []string `yaml:"excluded_paths" json:"excluded_paths"`

	// BatchSize is the number of documents buffered before a batch commit.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// Workers is the parse worker pool size. Zero means runtime.NumCPU().
	Workers int `yaml:"workers" json:"workers"`

	// ParseTimeout bounds a single parse task in parallel mode.
	ParseTimeout time.Duration `yaml:"parse_timeout" json:"parse_timeout"`
}

// SearchConfig configures the query engine.
type SearchConfig struct {
	// CacheSize is the capacity of the LRU result cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// DefaultLimit is the page size used when the caller does not set one.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Indexing: IndexingConfig{
			MaxFileSizeMB:      100,
			ExcludedExtensions: []string{".exe", ".dll", ".so", ".dylib", ".bin", ".iso"},
			ExcludedPaths:      []string{"node_modules", ".git", "__pycache__", "$recycle.bin"},
			BatchSize:          100,
			Workers:            runtime.NumCPU(),
			ParseTimeout:       30 * time.Second,
		},
		Search: SearchConfig{
			CacheSize:    100,
			DefaultLimit: 20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file, layering file values over
// defaults and environment overrides over both. A missing file is not an
// error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Fall through to defaults
		case err != nil:
			return nil, qerrors.Wrap(qerrors.ErrCodeConfigNotFound, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, qerrors.New(qerrors.ErrCodeConfigInvalid,
					fmt.Sprintf("invalid config file %s: %v", path, err), err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides layers environment variables over file configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QUARRY_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Indexing.Workers = n
		}
	}
	if v := os.Getenv("QUARRY_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Indexing.BatchSize = n
		}
	}
	if v := os.Getenv("QUARRY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Indexing.MaxFileSizeMB <= 0 {
		return qerrors.New(qerrors.ErrCodeConfigInvalid,
			"indexing.max_file_size_mb must be positive", nil)
	}
	if c.Indexing.BatchSize <= 0 {
		return qerrors.New(qerrors.ErrCodeConfigInvalid,
			"indexing.batch_size must be positive", nil)
	}
	if c.Indexing.Workers < 0 {
		return qerrors.New(qerrors.ErrCodeConfigInvalid,
			"indexing.workers must not be negative", nil)
	}
	if c.Indexing.ParseTimeout <= 0 {
		return qerrors.New(qerrors.ErrCodeConfigInvalid,
			"indexing.parse_timeout must be positive", nil)
	}
	if c.Search.CacheSize <= 0 {
		return qerrors.New(qerrors.ErrCodeConfigInvalid,
			"search.cache_size must be positive", nil)
	}
	return nil
}

// MaxFileSize returns the maximum file size in bytes.
func (c *Config) MaxFileSize() int64 {
	return int64(c.Indexing.MaxFileSizeMB) * 1024 * 1024
}

// EffectiveWorkers returns the worker pool size, defaulting to NumCPU.
func (c *Config) EffectiveWorkers() int {
	if c.Indexing.Workers > 0 {
		return c.Indexing.Workers
	}
	return runtime.NumCPU()
}
