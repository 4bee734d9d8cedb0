package search

import (
	"context"
	stderrors "errors"
	"iter"
	"strconv"
	"strings"

	"github.com/jmgilman/willdolater/errors"
	"github.com/jmgilman/willdolater/exec"
)

// errStopped ends a stream when the consumer stops iterating.
var errStopped = stderrors.New("search stopped by consumer")

// previewMarker is appended by rg to lines cut by --max-columns-preview.
const previewMarker = " [... omitted end of long line]"

// RipgrepDriver implements Driver with the rg binary.
//
// The working copies it searches are cleaned of untracked and ignored
// files before scanning, so every file rg sees outside .git is tracked.
// Ignore files are therefore disabled rather than consulted.
type RipgrepDriver struct {
	command    exec.Executor
	binary     string
	maxColumns int
}

// RipgrepOption configures a RipgrepDriver.
type RipgrepOption func(*RipgrepDriver)

// WithExecutor sets the executor used to run rg.
func WithExecutor(e exec.Executor) RipgrepOption {
	return func(d *RipgrepDriver) {
		d.command = e
	}
}

// WithBinary sets the rg binary name or path.
func WithBinary(binary string) RipgrepOption {
	return func(d *RipgrepDriver) {
		if binary != "" {
			d.binary = binary
		}
	}
}

// WithMaxColumns bounds the reported length of matching lines.
func WithMaxColumns(n int) RipgrepOption {
	return func(d *RipgrepDriver) {
		d.maxColumns = n
	}
}

// NewRipgrepDriver returns a Driver backed by ripgrep.
func NewRipgrepDriver(opts ...RipgrepOption) *RipgrepDriver {
	d := &RipgrepDriver{
		command:    exec.New(exec.WithDisableColors()),
		binary:     "rg",
		maxColumns: DefaultMaxColumns,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// args builds the rg command line. --sort path makes output order stable at
// the cost of a single search thread.
func (d *RipgrepDriver) args(patterns Patterns) []string {
	args := []string{
		"--no-config",
		"--null",
		"--line-number",
		"--no-heading",
		"--color=never",
		"--case-sensitive",
		"--sort", "path",
		"--hidden",
		"--no-ignore",
		"--glob", "!.git/",
	}
	if d.maxColumns > 0 {
		args = append(args, "--max-columns", strconv.Itoa(d.maxColumns), "--max-columns-preview")
	}
	if !patterns.IsRegex() {
		args = append(args, "--fixed-strings")
	}
	for _, m := range patterns.Markers() {
		args = append(args, "-e", m)
	}
	return append(args, "--", ".")
}

// Find streams rg output from root.
func (d *RipgrepDriver) Find(ctx context.Context, root string, patterns Patterns) iter.Seq2[Match, error] {
	return func(yield func(Match, error) bool) {
		if patterns.IsZero() {
			yield(Match{}, errors.New(errors.CodeInvalidInput, "no search patterns"))
			return
		}

		var parseErr error
		rg := exec.NewWrapper(d.command.Clone(), d.binary).WithContext(ctx).WithDir(root)
		_, err := rg.Stream(func(line string) error {
			m, err := parseRipgrepLine(line, d.maxColumns)
			if err != nil {
				parseErr = err
				return err
			}
			if !yield(m, nil) {
				return errStopped
			}
			return nil
		}, d.args(patterns)...)

		switch {
		case err == nil:
		case stderrors.Is(err, errStopped):
		case parseErr != nil:
			yield(Match{}, errors.Wrap(parseErr, errors.CodeExecutionFailed, "unexpected ripgrep output"))
		case exec.IsExitCode(err, 1):
			// Exit status 1 means nothing matched.
		default:
			yield(Match{}, mapRipgrepError(ctx, err))
		}
	}
}

func mapRipgrepError(ctx context.Context, err error) error {
	if ctxErr := errors.FromContext(ctx); ctxErr != nil {
		return ctxErr
	}
	wrapped := errors.Wrap(err, errors.CodeExecutionFailed, "ripgrep failed")
	if execErr, ok := exec.AsExecError(err); ok && execErr.Stderr != "" {
		return errors.WithContext(wrapped, "stderr", strings.TrimSpace(execErr.Stderr))
	}
	return wrapped
}

// parseRipgrepLine parses "path\x00line:text", the --null --line-number
// output format.
func parseRipgrepLine(line string, maxColumns int) (Match, error) {
	file, rest, ok := strings.Cut(line, "\x00")
	if !ok {
		return Match{}, errors.Newf(errors.CodeExecutionFailed, "missing path separator in %q", line)
	}
	num, text, ok := strings.Cut(rest, ":")
	if !ok {
		return Match{}, errors.Newf(errors.CodeExecutionFailed, "missing line number in %q", line)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 {
		return Match{}, errors.Newf(errors.CodeExecutionFailed, "invalid line number %q", num)
	}

	file = strings.TrimPrefix(file, "./")
	text = strings.TrimSuffix(text, previewMarker)
	return Match{File: file, Line: n, Text: clip(text, maxColumns)}, nil
}
