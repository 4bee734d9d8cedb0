package exec

import (
	"context"
	"time"
)

//go:generate go run github.com/matryer/moq@v0.5.3 -out mocks/executor.go -pkg mocks . Executor

// Executor runs external commands. Configuration methods return the executor
// so calls can be chained.
type Executor interface {
	// WithEnv adds environment variables for the next run.
	WithEnv(env map[string]string) Executor

	// WithDir sets the working directory for the next run.
	WithDir(dir string) Executor

	// WithContext sets the context that bounds the next run.
	WithContext(ctx context.Context) Executor

	// WithTimeout bounds the next run to d.
	WithTimeout(d time.Duration) Executor

	// WithDisableColors sets the conventional no-color variables for the
	// next run.
	WithDisableColors() Executor

	// Run executes args[0] with the remaining args and captures its output.
	Run(args ...string) (*Result, error)

	// Stream executes args like Run but hands each stdout line to onLine as
	// it is produced. Returning an error from onLine stops the process and
	// Stream returns that error unchanged.
	Stream(onLine func(line string) error, args ...string) (*Result, error)

	// Clone returns an independent copy carrying the global configuration.
	Clone() Executor
}

// Result is the outcome of a finished command. Stdout is empty for Stream
// runs.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Option configures a Command for every run.
type Option func(*Command)

// WithEnv sets environment variables for every run.
func WithEnv(env map[string]string) Option {
	return func(c *Command) {
		for k, v := range env {
			c.global.env[k] = v
		}
	}
}

// WithDir sets the default working directory.
func WithDir(dir string) Option {
	return func(c *Command) {
		c.global.dir = dir
	}
}

// WithDisableColors disables colored output for every run.
func WithDisableColors() Option {
	return func(c *Command) {
		c.global.disableColors = true
	}
}
