package git

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// uncommittedHash is the hash git blame reports for lines not yet committed.
const uncommittedHash = "0000000000000000000000000000000000000000"

// parseBlamePorcelain parses the output of 'git blame --porcelain -L n,n'.
//
// The porcelain format for a single line looks like:
//
//	<40-hex sha> <orig line> <final line> <group size>
//	author Jane Doe
//	author-mail <jane@example.com>
//	author-time 1577836800
//	author-tz +0100
//	committer ...
//	summary Add parser
//	filename src/parse.go
//	\t<line content>
//
// Header lines after the first may be absent when a commit was already
// described earlier in the same output, which cannot happen for a single
// line range.
func parseBlamePorcelain(output string) (*Attribution, error) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 64*1024), 4<<20)

	if !scanner.Scan() {
		return nil, fmt.Errorf("empty blame output")
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 3 || len(fields[0]) < 40 {
		return nil, fmt.Errorf("malformed blame header %q", scanner.Text())
	}

	attr := &Attribution{Commit: fields[0]}
	var (
		authorTime int64
		authorTZ   string
		haveTime   bool
	)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "\t") {
			break // line content terminates the header
		}

		key, value, _ := strings.Cut(line, " ")
		switch key {
		case "author":
			attr.Author = value
		case "author-mail":
			attr.Email = strings.TrimSuffix(strings.TrimPrefix(value, "<"), ">")
		case "author-time":
			t, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed author-time %q: %w", value, err)
			}
			authorTime, haveTime = t, true
		case "author-tz":
			authorTZ = value
		case "summary":
			attr.Summary = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !haveTime {
		return nil, fmt.Errorf("blame output for %s has no author-time", attr.Commit)
	}

	attr.AuthoredAt = time.Unix(authorTime, 0).In(parseTZ(authorTZ))
	return attr, nil
}

// parseTZ converts git's ±hhmm offset to a fixed zone, defaulting to UTC.
func parseTZ(tz string) *time.Location {
	if len(tz) != 5 || (tz[0] != '+' && tz[0] != '-') {
		return time.UTC
	}
	hours, err1 := strconv.Atoi(tz[1:3])
	mins, err2 := strconv.Atoi(tz[3:5])
	if err1 != nil || err2 != nil {
		return time.UTC
	}
	offset := hours*3600 + mins*60
	if tz[0] == '-' {
		offset = -offset
	}
	return time.FixedZone(tz, offset)
}
