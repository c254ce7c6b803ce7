package feed

import (
	"slices"

	"github.com/danmuck/promecieus/internal/protocol/wire"
)

// Reduce folds one inbound frame into state. Unknown actions return the
// state unchanged. A malformed rquota payload returns the state unchanged
// together with wire.ErrMalformedQuota.
func Reduce(state State, event wire.Frame) (State, error) {
	switch event.Action {
	case wire.ActionStatus, wire.ActionFailure, wire.ActionProgress, wire.ActionLink:
		state.Log = appendEntry(state.Log, event)
		return state, nil
	case wire.ActionDone:
		log := appendEntry(state.Log, event)
		state.Log = slices.DeleteFunc(log, func(entry wire.Frame) bool {
			return entry.Action == wire.ActionProgress
		})
		return state, nil
	case wire.ActionAppLabel:
		state.Log = appendEntry(state.Log, event)
		state.ActiveJobID = event.Message
		return state, nil
	case wire.ActionRQuota:
		quota, err := wire.ParseQuota(event.Message)
		if err != nil {
			return state, err
		}
		state.Quota = quota
		return state, nil
	default:
		return state, nil
	}
}

// ReduceAll folds events in order, skipping the ones Reduce rejects.
func ReduceAll(state State, events ...wire.Frame) State {
	for _, event := range events {
		next, err := Reduce(state, event)
		if err != nil {
			continue
		}
		state = next
	}
	return state
}

// WithInput replaces the pending input.
func WithInput(state State, text string) State {
	state.PendingInput = text
	return state
}

// Submit derives the "new" command from the pending input and clears the
// log. It reports false, leaving state untouched, when the input is empty.
func Submit(state State) (wire.Frame, State, bool) {
	if state.PendingInput == "" {
		return wire.Frame{}, state, false
	}
	cmd := wire.Frame{Action: wire.ActionNew, Message: state.PendingInput}
	state.Log = []wire.Frame{}
	return cmd, state, true
}

// Delete derives the "delete" command for the active job, drops the
// oldest log entry and clears the active job. It reports false when no
// job is active.
func Delete(state State) (wire.Frame, State, bool) {
	if !state.HasActiveJob() {
		return wire.Frame{}, state, false
	}
	cmd := wire.Frame{Action: wire.ActionDelete, Message: state.ActiveJobID}
	// The oldest entry is assumed to be the app-label that introduced the job.
	if len(state.Log) > 0 {
		state.Log = slices.Clone(state.Log[1:])
	}
	state.ActiveJobID = ""
	return cmd, state, true
}

func appendEntry(log []wire.Frame, entry wire.Frame) []wire.Frame {
	out := make([]wire.Frame, 0, len(log)+1)
	out = append(out, log...)
	return append(out, entry)
}
