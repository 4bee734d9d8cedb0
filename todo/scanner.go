package todo

import (
	"context"
	"iter"

	"github.com/jmgilman/willdolater/errors"
	"github.com/jmgilman/willdolater/logging"
	"github.com/jmgilman/willdolater/search"
)

// Scanner turns search matches into candidates.
type Scanner struct {
	driver   search.Driver
	patterns search.Patterns
	cadence  Cadence
	logger   *logging.Logger
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithScanCadence sets how often Scan reports its running count.
func WithScanCadence(c Cadence) ScannerOption {
	return func(s *Scanner) {
		s.cadence = c
	}
}

// WithScanLogger sets the scanner's logger.
func WithScanLogger(logger *logging.Logger) ScannerOption {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// NewScanner returns a Scanner that searches with driver for patterns.
func NewScanner(driver search.Driver, patterns search.Patterns, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		driver:   driver,
		patterns: patterns,
		cadence:  DefaultCadence,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan lazily yields the candidates under root in the driver's order.
// report, if not nil, receives the running count at the configured cadence.
//
// A failed search ends the sequence with a CodeScanFailed error. A
// cancelled context ends it with the context's error instead.
func (s *Scanner) Scan(ctx context.Context, root string, report func(found int)) iter.Seq2[Candidate, error] {
	return func(yield func(Candidate, error) bool) {
		limiter := s.cadence.limiter()
		found := 0

		for m, err := range s.driver.Find(ctx, root, s.patterns) {
			if err != nil {
				yield(Candidate{}, s.wrap(ctx, err))
				return
			}

			found++
			if report != nil {
				n := found
				limiter.Do(func() { report(n) })
			}
			if !yield(Candidate{File: m.File, Line: m.Line, Text: m.Text}, nil) {
				return
			}
		}
	}
}

// Collect runs Scan to completion.
func (s *Scanner) Collect(ctx context.Context, root string, report func(found int)) ([]Candidate, error) {
	var out []Candidate
	for c, err := range s.Scan(ctx, root, report) {
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	s.logger.Debug(ctx, "scan finished", "candidates", len(out))
	return out, nil
}

func (s *Scanner) wrap(ctx context.Context, err error) error {
	if ctxErr := errors.FromContext(ctx); ctxErr != nil {
		return ctxErr
	}
	if errors.IsCancelled(err) {
		return err
	}
	return errors.Wrap(err, errors.CodeScanFailed, "marker search failed")
}
