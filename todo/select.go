package todo

import (
	"iter"
)

// Less orders attributed candidates oldest first. Equal authored times
// fall back to file path and then line number.
func Less(a, b Attributed) bool {
	if !a.AuthoredAt.Equal(b.AuthoredAt) {
		return a.AuthoredAt.Before(b.AuthoredAt)
	}
	if a.File != b.File {
		return a.File < b.File
	}
	return a.Line < b.Line
}

// Select returns the oldest candidate in seq. The result does not depend on
// the order of seq.
func Select(seq iter.Seq[Attributed]) (Attributed, bool) {
	var (
		best  Attributed
		found bool
	)
	for a := range seq {
		if !found || Less(a, best) {
			best, found = a, true
		}
	}
	return best, found
}
