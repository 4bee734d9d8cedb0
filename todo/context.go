package todo

import (
	"bufio"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/jmgilman/willdolater/errors"
)

// DefaultContextLines is the number of lines shown on each side of the
// winning candidate.
const DefaultContextLines = 2

// ReadContext returns up to radius lines either side of the 1-based line in
// file, read through fs.
func ReadContext(fs billy.Filesystem, file string, line, radius int) (*Snippet, error) {
	if line < 1 {
		return nil, errors.Newf(errors.CodeInvalidInput, "line %d is out of range", line)
	}
	if radius < 0 {
		radius = 0
	}

	f, err := fs.Open(file)
	if err != nil {
		return nil, errors.WithContext(errors.Wrap(err, errors.CodeNotFound, "failed to open file for context"), "file", file)
	}
	defer f.Close()

	first := max(1, line-radius)
	last := line + radius

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)

	snippet := &Snippet{StartLine: first}
	for n := 1; n <= last && scanner.Scan(); n++ {
		if n >= first {
			snippet.Lines = append(snippet.Lines, strings.TrimRight(scanner.Text(), "\r"))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WithContext(errors.Wrap(err, errors.CodeInternal, "failed to read file for context"), "file", file)
	}
	if len(snippet.Lines) == 0 || first+len(snippet.Lines)-1 < line {
		return nil, errors.WithContext(errors.Newf(errors.CodeInvalidInput, "line %d is past the end of the file", line), "file", file)
	}
	return snippet, nil
}
