package git

import (
	"context"
	stderrors "errors"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/jmgilman/willdolater/errors"
	"github.com/jmgilman/willdolater/exec"
)

// wrapError classifies err and wraps it with message. It returns nil for a
// nil err.
func wrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, classifyError(err), message)
}

// classifyError maps go-git, exec and context failures to error codes.
//
//nolint:gocyclo,cyclop // flat mapping table
func classifyError(err error) errors.ErrorCode {
	var pe errors.PlatformError
	switch {
	case stderrors.Is(err, context.Canceled):
		return errors.CodeCancelled
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.CodeTimeout
	case stderrors.As(err, &pe):
		return pe.Code()

	case stderrors.Is(err, gogit.ErrRepositoryNotExists),
		stderrors.Is(err, transport.ErrRepositoryNotFound),
		stderrors.Is(err, transport.ErrEmptyRemoteRepository),
		stderrors.Is(err, plumbing.ErrReferenceNotFound),
		stderrors.Is(err, gogit.ErrRemoteNotFound):
		return errors.CodeNotFound

	case stderrors.Is(err, transport.ErrAuthenticationRequired),
		stderrors.Is(err, transport.ErrAuthorizationFailed):
		return errors.CodeUnauthorized

	case stderrors.Is(err, gogit.ErrRepositoryAlreadyExists):
		return errors.CodeConflict

	case stderrors.Is(err, object.ErrFileNotFound):
		return errors.CodeNotAttributable
	}

	if execErr, ok := exec.AsExecError(err); ok {
		if exec.IsNotFound(err) {
			return errors.CodeExecutionFailed
		}
		return classifyStderr(execErr.Stderr)
	}
	return errors.CodeInternal
}

// stderrPatterns maps fragments of git's diagnostic output to codes. Order
// matters: the first match wins.
var stderrPatterns = []struct {
	fragment string
	code     errors.ErrorCode
}{
	{"has only", errors.CodeNotAttributable},
	{"no such path", errors.CodeNotAttributable},
	{"no such ref", errors.CodeNotFound},
	{"Repository not found", errors.CodeNotFound},
	{"does not appear to be a git repository", errors.CodeNotFound},
	{"not a git repository", errors.CodeNotFound},
	{"not found", errors.CodeNotFound},
	{"Authentication failed", errors.CodeUnauthorized},
	{"could not read Username", errors.CodeUnauthorized},
	{"Permission denied (publickey)", errors.CodeUnauthorized},
	{"Could not resolve host", errors.CodeNetwork},
	{"Connection refused", errors.CodeNetwork},
	{"Connection timed out", errors.CodeNetwork},
	{"Could not read from remote repository", errors.CodeNetwork},
	{"unable to access", errors.CodeNetwork},
	{"early EOF", errors.CodeNetwork},
	{"No space left on device", errors.CodeInternal},
	{"already exists and is not an empty directory", errors.CodeConflict},
}

func classifyStderr(stderr string) errors.ErrorCode {
	for _, p := range stderrPatterns {
		if strings.Contains(stderr, p.fragment) {
			return p.code
		}
	}
	return errors.CodeExecutionFailed
}

// mapExecError wraps a failed git invocation, keeping the tail of stderr as
// context for diagnosis.
func mapExecError(err error, message string) error {
	if err == nil {
		return nil
	}
	wrapped := wrapError(err, message)
	if execErr, ok := exec.AsExecError(err); ok && execErr.Stderr != "" {
		wrapped = errors.WithContext(wrapped, "stderr", lastLine(execErr.Stderr))
	}
	return wrapped
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
