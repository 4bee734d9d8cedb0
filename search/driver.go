package search

import (
	"context"
	"iter"
	"strings"
	"unicode/utf8"
)

// DefaultMaxColumns bounds the length of reported match text.
const DefaultMaxColumns = 1000

// Match is one line that contains a marker.
type Match struct {
	// File is the slash-separated path relative to the working copy root.
	File string
	// Line is 1-based.
	Line int
	// Text is the line with surrounding whitespace trimmed.
	Text string
}

// Driver searches the tracked, non-binary files of a working copy.
//
// Find returns a single-use sequence. Matches arrive in a deterministic
// order for a given working copy state. A failure ends the sequence with a
// non-nil error; finding nothing is not a failure. Stopping the iteration
// early releases any resources the search holds.
type Driver interface {
	Find(ctx context.Context, root string, patterns Patterns) iter.Seq2[Match, error]
}

// clip trims text and shortens it to at most maxColumns bytes without
// splitting a UTF-8 sequence.
func clip(text string, maxColumns int) string {
	text = strings.TrimSpace(text)
	if maxColumns <= 0 || len(text) <= maxColumns {
		return text
	}
	cut := maxColumns
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
