package git

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jmgilman/willdolater/errors"
	"github.com/jmgilman/willdolater/exec"
)

// CLIDriver implements Driver with the git binary.
type CLIDriver struct {
	command exec.Executor
	binary  string
	depth   int
	filter  string
}

// CLIOption configures a CLIDriver.
type CLIOption func(*CLIDriver)

// WithExecutor sets the executor used to run git. It is cloned for every
// invocation, so a single executor may back concurrent calls.
func WithExecutor(e exec.Executor) CLIOption {
	return func(d *CLIDriver) {
		d.command = e
	}
}

// WithBinary sets the git binary name or path.
func WithBinary(binary string) CLIOption {
	return func(d *CLIDriver) {
		if binary != "" {
			d.binary = binary
		}
	}
}

// WithCloneDepth limits clones to the given number of commits. Zero clones
// full history. Shallow history makes attribution stop at the shallow
// boundary, so old lines attribute to the boundary commit.
func WithCloneDepth(depth int) CLIOption {
	return func(d *CLIDriver) {
		d.depth = depth
	}
}

// WithCloneFilter passes a partial clone filter such as "blob:none".
func WithCloneFilter(filter string) CLIOption {
	return func(d *CLIDriver) {
		d.filter = filter
	}
}

// NewCLIDriver returns a Driver that runs git. Prompts for credentials are
// disabled so an unreachable private remote fails instead of hanging.
func NewCLIDriver(opts ...CLIOption) *CLIDriver {
	d := &CLIDriver{
		command: exec.New(
			exec.WithDisableColors(),
			exec.WithEnv(map[string]string{"GIT_TERMINAL_PROMPT": "0"}),
		),
		binary: "git",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *CLIDriver) git(ctx context.Context, dir string) exec.Executor {
	return exec.NewWrapper(d.command.Clone(), d.binary).WithContext(ctx).WithDir(dir)
}

// Clone runs a single-branch clone of the remote default branch.
func (d *CLIDriver) Clone(ctx context.Context, remote Identifier, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return wrapError(err, "failed to create clone parent directory")
	}

	args := []string{"clone", "--single-branch", "--no-tags", "--quiet"}
	if d.depth > 0 {
		args = append(args, "--depth", strconv.Itoa(d.depth))
	}
	if d.filter != "" {
		args = append(args, "--filter="+d.filter)
	}
	args = append(args, "--", remote.CloneURL(), dest)

	if _, err := d.git(ctx, "").Run(args...); err != nil {
		return mapExecError(err, "failed to clone repository")
	}
	return nil
}

// Update fetches origin and hard-resets the working copy to the remote
// default branch, then removes untracked and ignored files.
func (d *CLIDriver) Update(ctx context.Context, path string) error {
	if _, err := d.git(ctx, path).Run("fetch", "--prune", "--no-tags", "--quiet", "origin"); err != nil {
		return mapExecError(err, "failed to fetch from origin")
	}

	target, err := d.remoteHead(ctx, path)
	if err != nil {
		return err
	}

	if _, err := d.git(ctx, path).Run("reset", "--hard", "--quiet", target); err != nil {
		return mapExecError(err, "failed to reset working copy")
	}
	if _, err := d.git(ctx, path).Run("clean", "-ffdxq"); err != nil {
		return mapExecError(err, "failed to clean working copy")
	}
	return nil
}

// remoteHead resolves the remote-tracking ref of the default branch, such as
// "origin/main". It refreshes origin/HEAD from the remote when possible and
// falls back to the tracking ref of the current branch.
func (d *CLIDriver) remoteHead(ctx context.Context, path string) (string, error) {
	// set-head needs network access; a stale origin/HEAD is still usable.
	_, _ = d.git(ctx, path).Run("remote", "set-head", "origin", "--auto")

	res, err := d.git(ctx, path).Run("symbolic-ref", "--quiet", "--short", "refs/remotes/origin/HEAD")
	if err == nil {
		if ref := strings.TrimSpace(res.Stdout); ref != "" {
			return ref, nil
		}
	}
	if ctxErr := errors.FromContext(ctx); ctxErr != nil {
		return "", ctxErr
	}

	res, err = d.git(ctx, path).Run("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", mapExecError(err, "failed to resolve current branch")
	}
	branch := strings.TrimSpace(res.Stdout)
	if branch == "" || branch == "HEAD" {
		return "", errors.New(errors.CodeNotFound, "working copy has no branch checked out")
	}
	return "origin/" + branch, nil
}

// AttributeLine runs 'git blame --porcelain' for a single line.
func (d *CLIDriver) AttributeLine(ctx context.Context, path, file string, line int) (*Attribution, error) {
	if line < 1 {
		return nil, notAttributable(file, line, "line numbers start at 1")
	}

	lineRange := strconv.Itoa(line) + "," + strconv.Itoa(line)
	res, err := d.git(ctx, path).Run("blame", "--porcelain", "-L", lineRange, "--", file)
	if err != nil {
		mapped := mapExecError(err, "failed to blame "+file)
		if errors.GetCode(mapped) == errors.CodeNotAttributable {
			return nil, errors.WithContextMap(mapped, map[string]interface{}{"file": file, "line": line})
		}
		return nil, mapped
	}

	attr, err := parseBlamePorcelain(res.Stdout)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeAttributionFailed, "failed to parse blame output for %s:%d", file, line)
	}
	if attr.Commit == uncommittedHash {
		return nil, notAttributable(file, line, "line is not committed")
	}
	return attr, nil
}
