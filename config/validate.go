package config

import (
	"fmt"
	"strings"

	"github.com/jmgilman/willdolater/errors"
	"github.com/jmgilman/willdolater/search"
)

// Validate checks every setting and reports all problems at once with
// errors.CodeInvalidConfig. The problems are listed under the "problems"
// context key.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Cache.Dir) == "" {
		add("cache.dir is required")
	}
	if c.Cache.Retention <= 0 {
		add("cache.retention must be positive")
	}
	if c.Cache.JanitorInterval <= 0 {
		add("cache.janitor_interval must be positive")
	}

	switch c.Git.Driver {
	case DriverCLI:
		if c.Git.Binary == "" {
			add("git.binary is required for the cli driver")
		}
	case DriverNative:
		if c.Git.CloneFilter != "" {
			add("git.clone_filter is not supported by the native driver")
		}
	default:
		add("git.driver must be %q or %q, got %q", DriverCLI, DriverNative, c.Git.Driver)
	}
	if c.Git.CloneDepth < 0 {
		add("git.clone_depth must not be negative")
	}

	switch c.Search.Driver {
	case DriverRipgrep:
		if c.Search.Binary == "" {
			add("search.binary is required for the ripgrep driver")
		}
	case DriverNative:
	default:
		add("search.driver must be %q or %q, got %q", DriverRipgrep, DriverNative, c.Search.Driver)
	}
	if _, err := search.NewPatterns(c.Search.Patterns, c.Search.Regex); err != nil {
		add("search.patterns: %v", err)
	}
	if c.Search.MaxColumns < 0 {
		add("search.max_columns must not be negative")
	}

	if c.Pipeline.AcquireTimeout < 0 {
		add("pipeline.acquire_timeout must not be negative")
	}
	if c.Pipeline.AttributeTimeout < 0 {
		add("pipeline.attribute_timeout must not be negative")
	}
	if c.Pipeline.AttributeConcurrency < 1 {
		add("pipeline.attribute_concurrency must be at least 1")
	}
	if c.Pipeline.ProgressInterval < 0 || c.Pipeline.ProgressEvery < 0 {
		add("pipeline.progress_interval and pipeline.progress_every must not be negative")
	}

	if c.Progress.SubscriberBuffer < 1 {
		add("progress.subscriber_buffer must be at least 1")
	}
	if c.Progress.Retention <= 0 {
		add("progress.retention must be positive")
	}
	if c.Progress.SweepInterval <= 0 {
		add("progress.sweep_interval must be positive")
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		add("log.format must be text or json, got %q", c.Log.Format)
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.WithContext(
		errors.Newf(errors.CodeInvalidConfig, "invalid configuration: %s", strings.Join(problems, "; ")),
		"problems", problems,
	)
}
