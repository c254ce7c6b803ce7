// Package feed folds inbound status frames into display-ready session
// state and derives outbound commands from user intents.
//
// Every function here is pure: inputs are never modified and a fresh
// State is returned on each transition.
package feed

import (
	"slices"

	"github.com/danmuck/promecieus/internal/protocol/wire"
)

// State is one immutable snapshot of the session.
type State struct {
	PendingInput string
	Log          []wire.Frame
	ActiveJobID  string
	Quota        wire.Quota
}

// HasActiveJob reports whether a job is being tracked.
func (s State) HasActiveJob() bool {
	return s.ActiveJobID != ""
}

// Clone returns a copy that shares no backing storage with s.
func (s State) Clone() State {
	s.Log = slices.Clone(s.Log)
	return s
}

// Count returns the number of log entries with the given action.
func (s State) Count(action wire.Action) int {
	n := 0
	for _, entry := range s.Log {
		if entry.Action == action {
			n++
		}
	}
	return n
}
