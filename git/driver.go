package git

import (
	"context"
	"time"

	"github.com/jmgilman/willdolater/errors"
)

// Attribution is the history of a single line: the commit that last
// changed it and who authored that change.
type Attribution struct {
	Commit     string
	Author     string
	Email      string
	AuthoredAt time.Time
	Summary    string
}

// Driver performs the version-control operations the pipeline needs.
//
// Clone creates a working copy of remote at dest, checked out at the remote's
// default branch. Update brings an existing working copy at path to the tip
// of the remote default branch, discarding local changes and untracked
// files. AttributeLine reports the commit that introduced the given 1-based
// line of file, relative to the working copy root.
//
// AttributeLine returns an error with errors.CodeNotAttributable when the
// history cannot account for the line. Any other error means the operation
// itself failed.
type Driver interface {
	Clone(ctx context.Context, remote Identifier, dest string) error
	Update(ctx context.Context, path string) error
	AttributeLine(ctx context.Context, path, file string, line int) (*Attribution, error)
}

// IsNotAttributable reports whether err says the line has no attributable
// history.
func IsNotAttributable(err error) bool {
	return errors.HasCode(err, errors.CodeNotAttributable)
}

func notAttributable(file string, line int, reason string) error {
	return errors.WithContextMap(
		errors.Newf(errors.CodeNotAttributable, "%s:%d: %s", file, line, reason),
		map[string]interface{}{"file": file, "line": line},
	)
}
