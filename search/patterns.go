package search

import (
	"regexp"
	"strings"

	"github.com/jmgilman/willdolater/errors"
)

// DefaultPatterns is the marker set used when none is configured.
var DefaultPatterns = []string{"TODO"}

// Patterns is a validated, case-sensitive set of markers. Literal markers
// match as plain substrings; with regex enabled each marker is an RE2
// expression.
type Patterns struct {
	exprs []string
	regex bool
	re    *regexp.Regexp
}

// NewPatterns validates markers and compiles them into a single matcher.
func NewPatterns(markers []string, regex bool) (Patterns, error) {
	if len(markers) == 0 {
		return Patterns{}, errors.New(errors.CodeInvalidInput, "at least one search pattern is required")
	}

	alternatives := make([]string, 0, len(markers))
	for _, m := range markers {
		if m == "" {
			return Patterns{}, errors.New(errors.CodeInvalidInput, "search patterns must not be empty")
		}
		if strings.ContainsAny(m, "\n\r") {
			return Patterns{}, errors.Newf(errors.CodeInvalidInput, "search pattern %q spans lines", m)
		}

		expr := m
		if !regex {
			expr = regexp.QuoteMeta(m)
		} else if _, err := regexp.Compile(m); err != nil {
			return Patterns{}, errors.Wrapf(err, errors.CodeInvalidInput, "invalid search pattern %q", m)
		}
		alternatives = append(alternatives, "(?:"+expr+")")
	}

	re, err := regexp.Compile(strings.Join(alternatives, "|"))
	if err != nil {
		return Patterns{}, errors.Wrap(err, errors.CodeInvalidInput, "failed to compile search patterns")
	}

	return Patterns{
		exprs: append([]string(nil), markers...),
		regex: regex,
		re:    re,
	}, nil
}

// MustPatterns is NewPatterns for constants and tests.
func MustPatterns(markers []string, regex bool) Patterns {
	p, err := NewPatterns(markers, regex)
	if err != nil {
		panic(err)
	}
	return p
}

// Markers returns the configured markers.
func (p Patterns) Markers() []string {
	return append([]string(nil), p.exprs...)
}

// IsRegex reports whether the markers are regular expressions.
func (p Patterns) IsRegex() bool {
	return p.regex
}

// IsZero reports whether p was never initialized.
func (p Patterns) IsZero() bool {
	return p.re == nil
}

// Match reports whether line contains any marker.
func (p Patterns) Match(line []byte) bool {
	return p.re.Match(line)
}

// MatchString reports whether line contains any marker.
func (p Patterns) MatchString(line string) bool {
	return p.re.MatchString(line)
}
