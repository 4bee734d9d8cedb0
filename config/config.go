// Package config loads service settings from defaults, an optional YAML
// file and WILLDOLATER_ environment variables, in increasing precedence.
//
// Nested keys map to environment variables by upper-casing and replacing
// dots with underscores, so pipeline.acquire_timeout is read from
// WILLDOLATER_PIPELINE_ACQUIRE_TIMEOUT. Lists are comma separated.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jmgilman/willdolater/errors"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "WILLDOLATER"

// Driver names.
const (
	DriverCLI     = "cli"
	DriverNative  = "native"
	DriverRipgrep = "ripgrep"
)

// Config holds all service settings.
type Config struct {
	Cache    CacheConfig    `mapstructure:"cache"`
	Git      GitConfig      `mapstructure:"git"`
	Search   SearchConfig   `mapstructure:"search"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Progress ProgressConfig `mapstructure:"progress"`
	Log      LogConfig      `mapstructure:"log"`
}

// CacheConfig configures the working copy cache and its janitor.
type CacheConfig struct {
	// Dir holds the working copies and the cache index.
	Dir string `mapstructure:"dir"`
	// Retention is how long an unused working copy is kept.
	Retention       time.Duration `mapstructure:"retention"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
}

// GitConfig selects and tunes the git driver.
type GitConfig struct {
	// Driver is cli or native.
	Driver string `mapstructure:"driver"`
	Binary string `mapstructure:"binary"`
	// CloneDepth limits clone history. Zero clones everything.
	CloneDepth  int    `mapstructure:"clone_depth"`
	// CloneFilter is passed to git clone --filter. cli driver only.
	CloneFilter string `mapstructure:"clone_filter"`
}

// SearchConfig selects the search driver and the markers it looks for.
type SearchConfig struct {
	// Driver is ripgrep or native.
	Driver     string   `mapstructure:"driver"`
	Binary     string   `mapstructure:"binary"`
	// Patterns are literal markers unless Regex is set.
	Patterns   []string `mapstructure:"patterns"`
	Regex      bool     `mapstructure:"regex"`
	MaxColumns int      `mapstructure:"max_columns"`
}

// PipelineConfig bounds the stages of a request.
type PipelineConfig struct {
	AcquireTimeout       time.Duration `mapstructure:"acquire_timeout"`
	AttributeTimeout     time.Duration `mapstructure:"attribute_timeout"`
	AttributeConcurrency int           `mapstructure:"attribute_concurrency"`
	ProgressInterval     time.Duration `mapstructure:"progress_interval"`
	ProgressEvery        int           `mapstructure:"progress_every"`
	// ContextLines around the winner are returned. Negative disables.
	ContextLines int `mapstructure:"context_lines"`
}

// ProgressConfig configures the progress bus.
type ProgressConfig struct {
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
	// Retention is how long finished requests and their events are kept.
	Retention     time.Duration `mapstructure:"retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// LogConfig configures the service logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the built-in settings.
func Default() *Config {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}

	return &Config{
		Cache: CacheConfig{
			Dir:             filepath.Join(dir, "willdolater"),
			Retention:       7 * 24 * time.Hour,
			JanitorInterval: 24 * time.Hour,
		},
		Git: GitConfig{
			Driver: DriverCLI,
			Binary: "git",
		},
		Search: SearchConfig{
			Driver:     DriverRipgrep,
			Binary:     "rg",
			Patterns:   []string{"TODO"},
			MaxColumns: 1000,
		},
		Pipeline: PipelineConfig{
			AcquireTimeout:       10 * time.Minute,
			AttributeTimeout:     30 * time.Second,
			AttributeConcurrency: 8,
			ProgressInterval:     250 * time.Millisecond,
			ProgressEvery:        200,
			ContextLines:         2,
		},
		Progress: ProgressConfig{
			SubscriberBuffer: 64,
			Retention:        time.Hour,
			SweepInterval:    10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads settings from path, if not empty, and the environment, on top
// of Default. A missing file is an error when path is given explicitly.
// The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WithContext(
				errors.Wrap(err, errors.CodeInvalidConfig, "failed to read config file"),
				"path", path,
			)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key individually. Viper only consults the
// environment for keys it knows about.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("cache.dir", cfg.Cache.Dir)
	v.SetDefault("cache.retention", cfg.Cache.Retention)
	v.SetDefault("cache.janitor_interval", cfg.Cache.JanitorInterval)

	v.SetDefault("git.driver", cfg.Git.Driver)
	v.SetDefault("git.binary", cfg.Git.Binary)
	v.SetDefault("git.clone_depth", cfg.Git.CloneDepth)
	v.SetDefault("git.clone_filter", cfg.Git.CloneFilter)

	v.SetDefault("search.driver", cfg.Search.Driver)
	v.SetDefault("search.binary", cfg.Search.Binary)
	v.SetDefault("search.patterns", cfg.Search.Patterns)
	v.SetDefault("search.regex", cfg.Search.Regex)
	v.SetDefault("search.max_columns", cfg.Search.MaxColumns)

	v.SetDefault("pipeline.acquire_timeout", cfg.Pipeline.AcquireTimeout)
	v.SetDefault("pipeline.attribute_timeout", cfg.Pipeline.AttributeTimeout)
	v.SetDefault("pipeline.attribute_concurrency", cfg.Pipeline.AttributeConcurrency)
	v.SetDefault("pipeline.progress_interval", cfg.Pipeline.ProgressInterval)
	v.SetDefault("pipeline.progress_every", cfg.Pipeline.ProgressEvery)
	v.SetDefault("pipeline.context_lines", cfg.Pipeline.ContextLines)

	v.SetDefault("progress.subscriber_buffer", cfg.Progress.SubscriberBuffer)
	v.SetDefault("progress.retention", cfg.Progress.Retention)
	v.SetDefault("progress.sweep_interval", cfg.Progress.SweepInterval)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}
