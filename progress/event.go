// Package progress records per-request event logs and fans them out to
// subscribers.
//
// Each request has an append-only log. Subscribers replay the log from the
// first event and then follow it live until a terminal event. Every
// subscriber reads from its own cursor, so a slow or vanished subscriber
// never holds up the publisher or the other subscribers.
package progress

import (
	"time"

	"github.com/jmgilman/willdolater/errors"
	"github.com/jmgilman/willdolater/todo"
)

// Stage is the phase of a request an event belongs to.
type Stage string

const (
	// StageAcquiring covers cloning or updating the working copy.
	StageAcquiring Stage = "acquiring"
	// StageScanning covers the marker search.
	StageScanning Stage = "scanning"
	// StageAttributing covers blaming each candidate.
	StageAttributing Stage = "attributing"
	// StageComplete is terminal and carries the result.
	StageComplete Stage = "complete"
	// StageFailed is terminal and carries the error.
	StageFailed Stage = "failed"
)

// Terminal reports whether no event may follow one in stage s.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}

// Event is one entry in a request's log.
type Event struct {
	RequestID string    `json:"request_id"`
	Seq       int       `json:"seq"`
	Time      time.Time `json:"time"`
	Stage     Stage     `json:"stage"`
	Message   string    `json:"message"`

	// Percent is nil when the stage has no meaningful completion ratio.
	Percent *int `json:"percent,omitempty"`

	// Error is set on failed events, Result on complete ones.
	Error  *errors.ErrorResponse `json:"error,omitempty"`
	Result *todo.Result          `json:"result,omitempty"`
}

// Terminal reports whether e ends its log.
func (e Event) Terminal() bool {
	return e.Stage.Terminal()
}

// Percent returns a pointer to p clamped to [0, 100], for Event.Percent.
func Percent(p int) *int {
	p = min(max(p, 0), 100)
	return &p
}

// Completed builds the terminal event for a successful request.
func Completed(result *todo.Result, message string) Event {
	return Event{Stage: StageComplete, Message: message, Percent: Percent(100), Result: result}
}

// Failed builds the terminal event for a failed request.
func Failed(err error) Event {
	msg := "request failed"
	if err != nil {
		msg = err.Error()
	}
	return Event{Stage: StageFailed, Message: msg, Error: errors.ToJSON(err)}
}
