package todo

import (
	"time"

	"golang.org/x/time/rate"
)

// Candidate is a line that matched a marker.
type Candidate struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Attributed is a candidate together with the commit that last changed its
// line.
type Attributed struct {
	Candidate
	Commit     string    `json:"commit"`
	Author     string    `json:"author"`
	Email      string    `json:"email,omitempty"`
	AuthoredAt time.Time `json:"authored_at"`
	Summary    string    `json:"summary,omitempty"`
}

// Snippet is a run of source lines around a candidate.
type Snippet struct {
	// StartLine is the 1-based number of Lines[0].
	StartLine int      `json:"start_line"`
	Lines     []string `json:"lines"`
}

// Result is the outcome of one scan. Oldest is nil when the repository has
// no attributable candidates, which is not an error.
type Result struct {
	Repository string      `json:"repository"`
	Oldest     *Attributed `json:"oldest,omitempty"`
	Context    *Snippet    `json:"context,omitempty"`
	Permalink  string      `json:"permalink,omitempty"`

	// Candidates counts every matching line examined; Attributed counts
	// those whose history could be resolved.
	Candidates int `json:"candidates"`
	Attributed int `json:"attributed"`
}

// Cadence bounds how often progress callbacks fire: the first call always
// fires, then every Every calls or once Interval has passed, whichever is
// sooner.
type Cadence struct {
	Every    int
	Interval time.Duration
}

// DefaultCadence reports every 200 items or four times a second.
var DefaultCadence = Cadence{Every: 200, Interval: 250 * time.Millisecond}

func (c Cadence) limiter() *rate.Sometimes {
	if c.Every <= 0 && c.Interval <= 0 {
		return &rate.Sometimes{Every: 1}
	}
	return &rate.Sometimes{First: 1, Every: c.Every, Interval: c.Interval}
}
