// Package render draws controller snapshots for a terminal. It only reads
// snapshots; intents go back through the controller.
package render

import (
	"strings"

	"github.com/danmuck/promecieus/internal/controller"
	"github.com/danmuck/promecieus/internal/protocol/wire"
)

const (
	defaultBarWidth = 24
	spinnerGlyph    = "◐"
)

type View struct {
	styles   styles
	barWidth int
}

func NewView() *View {
	return &View{styles: newStyles(), barWidth: defaultBarWidth}
}

// Render returns the full screen for snap.
func (v *View) Render(snap controller.Snapshot) string {
	var b strings.Builder
	b.WriteString(v.styles.title.Render("PromeCIeus"))
	b.WriteString("  ")
	if snap.Connected {
		b.WriteString(v.styles.online.Render("● connected"))
	} else {
		b.WriteString(v.styles.offline.Render("○ reconnecting"))
	}
	b.WriteString("\n")

	state := snap.State
	if state.HasActiveJob() {
		b.WriteString(v.styles.hint.Render("delete " + state.ActiveJobID + " with: delete"))
	} else {
		b.WriteString(v.styles.hint.Render("feed me Prow URLs..."))
	}
	b.WriteString("\n")

	if quota := v.Quota(state.Quota); quota != "" {
		b.WriteString(quota)
		b.WriteString("\n")
	}

	// The log stays hidden until a job is tracked.
	if !state.HasActiveJob() {
		return b.String()
	}
	for _, entry := range state.Log {
		line := v.Message(entry)
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// Message renders one log entry. Unknown actions render as "".
func (v *View) Message(f wire.Frame) string {
	text := strings.TrimSpace(f.Message)
	switch f.Action {
	case wire.ActionStatus:
		return v.styles.info.Render("[info] " + text)
	case wire.ActionProgress:
		return v.styles.info.Render("[info] " + spinnerGlyph + " " + text)
	case wire.ActionFailure:
		return v.styles.danger.Render("[fail] " + text)
	case wire.ActionDone:
		return v.styles.success.Render("[done] " + text)
	case wire.ActionLink:
		return "[link] " + v.styles.link.Render(text)
	default:
		return ""
	}
}

// Quota renders the resource quota bar labelled used/hard.
func (v *View) Quota(q wire.Quota) string {
	if q.Hard <= 0 && q.Used <= 0 {
		return ""
	}
	width := v.barWidth
	filled := 0
	if q.Hard > 0 {
		filled = int(int64(width) * min(q.Used, q.Hard) / q.Hard)
	}
	bar := v.styles.barFill.Render(strings.Repeat("█", filled)) +
		v.styles.barEmpty.Render(strings.Repeat("░", width-filled))
	return v.styles.quotaLabel.Render("Current resource quota ") + bar + " " + v.styles.barText.Render(q.String())
}
