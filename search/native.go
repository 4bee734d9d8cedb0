package search

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"iter"
	"os"

	"github.com/go-git/go-git/v5/utils/binary"

	"github.com/jmgilman/willdolater/errors"
	"github.com/jmgilman/willdolater/git"
)

// maxLineLength is the longest line NativeDriver reads. Scanning a file
// stops at the first longer line, which in practice means minified or
// generated content.
const maxLineLength = 4 << 20

// NativeDriver implements Driver by reading the files recorded in the git
// index of the working copy. Files are visited in index order, which is
// sorted by path.
type NativeDriver struct {
	maxColumns int
}

// NativeOption configures a NativeDriver.
type NativeOption func(*NativeDriver)

// WithNativeMaxColumns bounds the reported length of matching lines.
func WithNativeMaxColumns(n int) NativeOption {
	return func(d *NativeDriver) {
		d.maxColumns = n
	}
}

// NewNativeDriver returns an in-process Driver.
func NewNativeDriver(opts ...NativeOption) *NativeDriver {
	d := &NativeDriver{maxColumns: DefaultMaxColumns}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Find scans every tracked, non-binary file under root.
func (d *NativeDriver) Find(ctx context.Context, root string, patterns Patterns) iter.Seq2[Match, error] {
	return func(yield func(Match, error) bool) {
		if patterns.IsZero() {
			yield(Match{}, errors.New(errors.CodeInvalidInput, "no search patterns"))
			return
		}

		repo, err := git.Open(root)
		if err != nil {
			yield(Match{}, err)
			return
		}
		files, err := repo.TrackedFiles()
		if err != nil {
			yield(Match{}, err)
			return
		}

		fs := repo.Filesystem()
		for _, name := range files {
			if err := errors.FromContext(ctx); err != nil {
				yield(Match{}, err)
				return
			}

			f, err := fs.Open(name)
			if os.IsNotExist(err) {
				// Deleted from the worktree but still staged.
				continue
			}
			if err != nil {
				yield(Match{}, errors.WithContext(
					errors.Wrap(err, errors.CodeInternal, "failed to open tracked file"), "file", name))
				return
			}

			cont, err := d.scanFile(f, name, patterns, yield)
			f.Close()
			if err != nil {
				yield(Match{}, err)
				return
			}
			if !cont {
				return
			}
		}
	}
}

// scanFile yields the matches in one file. It returns false once the
// consumer stops.
func (d *NativeDriver) scanFile(f io.ReadSeeker, name string, patterns Patterns, yield func(Match, error) bool) (bool, error) {
	isBinary, err := binary.IsBinary(f)
	if err != nil {
		return false, errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to read tracked file"), "file", name)
	}
	if isBinary {
		return true, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false, errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to rewind tracked file"), "file", name)
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)

	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSuffix(scanner.Bytes(), []byte{'\r'})
		if !patterns.Match(text) {
			continue
		}
		if !yield(Match{File: name, Line: line, Text: clip(string(text), d.maxColumns)}, nil) {
			return false, nil
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return true, nil
		}
		return false, errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to read tracked file"), "file", name)
	}
	return true, nil
}
