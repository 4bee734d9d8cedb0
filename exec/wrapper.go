package exec

import (
	"context"
	"time"
)

// CommandWrapper prefixes every invocation with a fixed binary.
type CommandWrapper struct {
	executor Executor
	binary   string
}

// NewWrapper wraps executor so Run("status") executes "<binary> status".
func NewWrapper(executor Executor, binary string) *CommandWrapper {
	return &CommandWrapper{executor: executor, binary: binary}
}

// Binary returns the wrapped binary name.
func (w *CommandWrapper) Binary() string {
	return w.binary
}

// WithEnv sets environment variables for the wrapped executor.
func (w *CommandWrapper) WithEnv(env map[string]string) Executor {
	w.executor = w.executor.WithEnv(env)
	return w
}

// WithDir sets the working directory for the wrapped executor.
func (w *CommandWrapper) WithDir(dir string) Executor {
	w.executor = w.executor.WithDir(dir)
	return w
}

// WithContext sets the context for the wrapped executor.
func (w *CommandWrapper) WithContext(ctx context.Context) Executor {
	w.executor = w.executor.WithContext(ctx)
	return w
}

// WithTimeout sets the timeout for the wrapped executor.
func (w *CommandWrapper) WithTimeout(d time.Duration) Executor {
	w.executor = w.executor.WithTimeout(d)
	return w
}

// WithDisableColors disables colors in the wrapped executor.
func (w *CommandWrapper) WithDisableColors() Executor {
	w.executor = w.executor.WithDisableColors()
	return w
}

// Run executes the binary with args.
func (w *CommandWrapper) Run(args ...string) (*Result, error) {
	return w.executor.Run(append([]string{w.binary}, args...)...)
}

// Stream executes the binary with args and passes each stdout line to
// onLine.
func (w *CommandWrapper) Stream(onLine func(line string) error, args ...string) (*Result, error) {
	return w.executor.Stream(onLine, append([]string{w.binary}, args...)...)
}

// Clone returns an independent copy of the wrapper.
func (w *CommandWrapper) Clone() Executor {
	return &CommandWrapper{executor: w.executor.Clone(), binary: w.binary}
}
