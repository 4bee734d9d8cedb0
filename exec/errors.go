package exec

import (
	"context"
	stderrors "errors"
	"fmt"
	osexec "os/exec"
)

// ExecError describes a command that could not be started or exited
// unsuccessfully.
type ExecError struct {
	Command  []string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("command %v failed with exit code %d: %v", e.Command, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("command %v failed with exit code %d", e.Command, e.ExitCode)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// AsExecError extracts an *ExecError from err's chain.
func AsExecError(err error) (*ExecError, bool) {
	var execErr *ExecError
	if stderrors.As(err, &execErr) {
		return execErr, true
	}
	return nil, false
}

// IsNotFound reports whether err means the binary could not be located.
func IsNotFound(err error) bool {
	return stderrors.Is(err, osexec.ErrNotFound)
}

// IsExitCode reports whether err is an ExecError for a process that ran and
// exited with code.
func IsExitCode(err error, code int) bool {
	execErr, ok := AsExecError(err)
	return ok && execErr.ExitCode == code && !IsInterrupted(err)
}

// IsInterrupted reports whether the run was stopped by its context.
func IsInterrupted(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}
