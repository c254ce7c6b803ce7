package render

import (
	"strings"
	"testing"

	"github.com/danmuck/promecieus/internal/controller"
	"github.com/danmuck/promecieus/internal/feed"
	"github.com/danmuck/promecieus/internal/protocol/wire"
	"github.com/danmuck/promecieus/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
)

func TestRenderHidesLogWithoutActiveJob(t *testing.T) {
	testlog.Start(t)
	v := NewView()
	out := v.Render(controller.Snapshot{
		State: feed.State{Log: []wire.Frame{{Action: wire.ActionStatus, Message: "queued"}}},
	})
	assert.Contains(t, out, "PromeCIeus")
	assert.Contains(t, out, "reconnecting")
	assert.NotContains(t, out, "queued")
}

func TestRenderActiveJob(t *testing.T) {
	testlog.Start(t)
	v := NewView()
	out := v.Render(controller.Snapshot{
		Connected: true,
		State: feed.State{
			ActiveJobID: "abcdefgh",
			Quota:       wire.Quota{Used: 3, Hard: 10},
			Log: []wire.Frame{
				{Action: wire.ActionAppLabel, Message: "abcdefgh"},
				{Action: wire.ActionStatus, Message: "deploying"},
				{Action: wire.ActionProgress, Message: "waiting for pods"},
				{Action: wire.ActionLink, Message: "https://abcdefgh.apps.example"},
				{Action: wire.ActionFailure, Message: "oops"},
				{Action: wire.ActionDone, Message: "ready"},
			},
		},
	})
	assert.Contains(t, out, "connected")
	assert.Contains(t, out, "delete abcdefgh")
	assert.Contains(t, out, "3/10")
	assert.Contains(t, out, "[info] deploying")
	assert.Contains(t, out, spinnerGlyph+" waiting for pods")
	assert.Contains(t, out, "https://abcdefgh.apps.example")
	assert.Contains(t, out, "[fail] oops")
	assert.Contains(t, out, "[done] ready")
	assert.Equal(t, 5, strings.Count(out, "\n")-3, "app-label renders as an empty element")
}

func TestMessageUnknownActionIsEmpty(t *testing.T) {
	testlog.Start(t)
	v := NewView()
	assert.Equal(t, "", v.Message(wire.Frame{Action: "mystery", Message: "x"}))
	assert.Equal(t, "", v.Message(wire.Frame{Action: wire.ActionAppLabel, Message: "x"}))
}

func TestQuotaBar(t *testing.T) {
	testlog.Start(t)
	v := NewView()
	assert.Equal(t, "", v.Quota(wire.Quota{}))
	out := v.Quota(wire.Quota{Used: 12, Hard: 10})
	assert.Contains(t, out, "12/10")
	assert.Equal(t, defaultBarWidth, strings.Count(out, "█"))
	out = v.Quota(wire.Quota{Used: 0, Hard: 4})
	assert.Equal(t, 0, strings.Count(out, "█"))
	assert.Equal(t, defaultBarWidth, strings.Count(out, "░"))
}
