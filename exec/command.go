package exec

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"os"
	osexec "os/exec"
	"time"
)

// maxLineSize bounds a single streamed line.
const maxLineSize = 4 << 20

// Command is the os/exec backed Executor.
type Command struct {
	global  settings
	local   settings
	ctx     context.Context
	timeout time.Duration
}

// New creates a Command. Options configure every run.
func New(opts ...Option) *Command {
	c := &Command{
		global: newSettings(),
		local:  newSettings(),
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithEnv sets environment variables for the command.
func (c *Command) WithEnv(env map[string]string) Executor {
	for k, v := range env {
		c.local.env[k] = v
	}
	return c
}

// WithDir sets the working directory.
func (c *Command) WithDir(dir string) Executor {
	c.local.dir = dir
	return c
}

// WithContext sets the context that can kill the process.
func (c *Command) WithContext(ctx context.Context) Executor {
	c.ctx = ctx
	return c
}

// WithTimeout bounds the run time. Zero means no limit.
func (c *Command) WithTimeout(d time.Duration) Executor {
	c.timeout = d
	return c
}

// WithDisableColors asks the command not to emit ANSI colors.
func (c *Command) WithDisableColors() Executor {
	c.local.disableColors = true
	return c
}

// Run executes the command and captures stdout and stderr.
func (c *Command) Run(args ...string) (*Result, error) {
	cmd, ctx, cancel, err := c.prepare(args)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode(cmd),
	}
	if runErr != nil {
		return res, newExecError(ctx, args, res, runErr)
	}
	return res, nil
}

// Stream executes the command and hands each stdout line to onLine.
func (c *Command) Stream(onLine func(line string) error, args ...string) (*Result, error) {
	cmd, ctx, cancel, err := c.prepare(args)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ExecError{Command: args, ExitCode: -1, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, newExecError(ctx, args, &Result{ExitCode: -1}, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var stopErr error
	for scanner.Scan() {
		if stopErr = onLine(scanner.Text()); stopErr != nil {
			break
		}
	}
	scanErr := scanner.Err()

	if stopErr != nil || scanErr != nil {
		// Unblock and terminate the child before reaping it.
		cancel()
	}
	waitErr := cmd.Wait()

	res := &Result{Stderr: stderr.String(), ExitCode: exitCode(cmd)}
	switch {
	case stopErr != nil:
		return res, stopErr
	case scanErr != nil:
		return res, &ExecError{Command: args, ExitCode: res.ExitCode, Stderr: res.Stderr, Err: scanErr}
	case waitErr != nil:
		return res, newExecError(ctx, args, res, waitErr)
	}
	return res, nil
}

// Clone returns a Command sharing the global configuration and none of the
// pending per-call settings.
func (c *Command) Clone() Executor {
	return &Command{
		global: c.global.clone(),
		local:  newSettings(),
		ctx:    context.Background(),
	}
}

// prepare builds the os/exec command and consumes the per-call settings.
func (c *Command) prepare(args []string) (*osexec.Cmd, context.Context, context.CancelFunc, error) {
	eff := merge(c.global, c.local)
	ctx, timeout := c.ctx, c.timeout
	c.local = newSettings()
	c.ctx = context.Background()
	c.timeout = 0

	if len(args) == 0 {
		return nil, nil, nil, &ExecError{Command: args, ExitCode: -1, Err: osexec.ErrNotFound}
	}

	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	cmd := osexec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = eff.dir
	cmd.Env = eff.environ(os.Environ())
	return cmd, ctx, cancel, nil
}

func exitCode(cmd *osexec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}

func newExecError(ctx context.Context, args []string, res *Result, err error) *ExecError {
	// Report the context error rather than "signal: killed" when the run was
	// cut short by cancellation or timeout.
	if ctxErr := ctx.Err(); ctxErr != nil && !stderrors.Is(err, ctxErr) {
		err = ctxErr
	}
	return &ExecError{
		Command:  args,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Err:      err,
	}
}
