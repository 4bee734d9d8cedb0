// Package todo finds the oldest surviving marker line in a working copy.
//
// The work happens in three steps. A Scanner searches tracked files for
// candidates, an Attributor resolves each candidate to the commit that last
// changed its line, and Select reduces the attributed candidates to the
// oldest one. Attribution uses the authored time of the commit; ties go to
// the smaller file path and then the smaller line number, so the result is
// stable for a given repository state.
package todo
