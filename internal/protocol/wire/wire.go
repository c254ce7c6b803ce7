// Package wire owns the JSON frame contract of the /ws/status endpoint.
//
// One frame per websocket text message, shaped {"action", "message"}.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Action identifies the kind of one frame.
type Action string

// Outbound actions, client -> service.
const (
	ActionConnect Action = "connect"
	ActionNew     Action = "new"
	ActionDelete  Action = "delete"
)

// Inbound actions, service -> client.
const (
	ActionStatus   Action = "status"
	ActionProgress Action = "progress"
	ActionFailure  Action = "failure"
	ActionDone     Action = "done"
	ActionLink     Action = "link"
	ActionAppLabel Action = "app-label"
	ActionRQuota   Action = "rquota"
)

// StatusPath is the websocket endpoint path served by the job service.
const StatusPath = "/ws/status"

var (
	ErrMalformedFrame = errors.New("wire: malformed frame")
	ErrMalformedQuota = errors.New("wire: malformed rquota payload")
)

// Frame is one wire event in either direction.
type Frame struct {
	Action  Action `json:"action"`
	Message string `json:"message"`
}

func (f Frame) String() string {
	return fmt.Sprintf("%s(%q)", f.Action, f.Message)
}

// IsOutbound reports whether a is a client -> service action.
func IsOutbound(a Action) bool {
	switch a {
	case ActionConnect, ActionNew, ActionDelete:
		return true
	}
	return false
}

// IsInbound reports whether a is a known service -> client action.
func IsInbound(a Action) bool {
	switch a {
	case ActionStatus, ActionProgress, ActionFailure, ActionDone, ActionLink, ActionAppLabel, ActionRQuota:
		return true
	}
	return false
}

func Connect() Frame {
	return Frame{Action: ActionConnect, Message: ""}
}

func EncodeFrame(f Frame) ([]byte, error) {
	if strings.TrimSpace(string(f.Action)) == "" {
		return nil, fmt.Errorf("%w: missing action", ErrMalformedFrame)
	}
	return json.Marshal(f)
}

// DecodeFrame parses one frame. Unknown actions decode successfully; the
// caller decides how to treat them.
func DecodeFrame(data []byte) (Frame, error) {
	var raw struct {
		Action  *string `json:"action"`
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if raw.Action == nil || strings.TrimSpace(*raw.Action) == "" {
		return Frame{}, fmt.Errorf("%w: missing action", ErrMalformedFrame)
	}
	f := Frame{Action: Action(strings.TrimSpace(*raw.Action))}
	if raw.Message != nil {
		f.Message = *raw.Message
	}
	return f, nil
}
