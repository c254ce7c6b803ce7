package controller

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/promecieus/internal/conn"
	"github.com/danmuck/promecieus/internal/protocol/wire"
	"github.com/danmuck/promecieus/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeManager struct {
	opens  atomic.Int32
	sent   chan wire.Frame
	events chan conn.Event
	state  atomic.Int32
	once   sync.Once
}

func newFakeManager() *fakeManager {
	return &fakeManager{
		sent:   make(chan wire.Frame, 16),
		events: make(chan conn.Event, 16),
	}
}

func (f *fakeManager) Open()                     { f.opens.Add(1) }
func (f *fakeManager) Send(frame wire.Frame)     { f.sent <- frame }
func (f *fakeManager) Events() <-chan conn.Event { return f.events }
func (f *fakeManager) State() conn.State         { return conn.State(f.state.Load()) }
func (f *fakeManager) Run(ctx context.Context) error {
	<-ctx.Done()
	f.once.Do(func() { close(f.events) })
	return nil
}

func (f *fakeManager) deliver(action wire.Action, message string) {
	f.events <- conn.Event{Kind: conn.EventMessage, Frame: wire.Frame{Action: action, Message: message}}
}

func startController(t *testing.T) (*Controller, *fakeManager) {
	t.Helper()
	mgr := newFakeManager()
	c := New(mgr, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Errorf("controller did not stop")
		}
	})
	return c, mgr
}

func nextSent(t *testing.T, mgr *fakeManager) wire.Frame {
	t.Helper()
	select {
	case f := <-mgr.sent:
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for outbound frame")
		return wire.Frame{}
	}
}

func TestNewOpensExactlyOnce(t *testing.T) {
	testlog.Start(t)
	c, mgr := startController(t)
	assert.Equal(t, int32(1), mgr.opens.Load())
	snap := c.Snapshot()
	assert.False(t, snap.Connected)
	assert.Empty(t, snap.State.Log)
	assert.False(t, snap.State.HasActiveJob())
}

func TestControllerFoldsInboundInOrder(t *testing.T) {
	testlog.Start(t)
	c, mgr := startController(t)
	mgr.events <- conn.Event{Kind: conn.EventOpen, ConnID: "c1"}
	mgr.deliver(wire.ActionAppLabel, "j1")
	mgr.deliver(wire.ActionProgress, "10%")
	mgr.deliver(wire.ActionProgress, "50%")
	mgr.deliver(wire.ActionRQuota, `{"used":3,"hard":10}`)
	mgr.deliver(wire.ActionDone, "complete")

	require.Eventually(t, func() bool {
		return c.Snapshot().State.Count(wire.ActionDone) == 1
	}, 2*time.Second, 5*time.Millisecond)

	snap := c.Snapshot()
	assert.True(t, snap.Connected)
	assert.Equal(t, "j1", snap.State.ActiveJobID)
	assert.Equal(t, wire.Quota{Used: 3, Hard: 10}, snap.State.Quota)
	assert.Equal(t, []wire.Frame{
		{Action: wire.ActionAppLabel, Message: "j1"},
		{Action: wire.ActionDone, Message: "complete"},
	}, snap.State.Log)
}

func TestControllerDropsMalformedQuota(t *testing.T) {
	testlog.Start(t)
	c, mgr := startController(t)
	mgr.deliver(wire.ActionRQuota, `{"used":1,"hard":4}`)
	mgr.deliver(wire.ActionRQuota, `garbage`)
	mgr.deliver(wire.ActionStatus, "still alive")

	require.Eventually(t, func() bool {
		return c.Snapshot().State.Count(wire.ActionStatus) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, wire.Quota{Used: 1, Hard: 4}, c.Snapshot().State.Quota)
}

func TestControllerSubmit(t *testing.T) {
	testlog.Start(t)
	c, mgr := startController(t)
	mgr.deliver(wire.ActionStatus, "previous run")
	require.Eventually(t, func() bool { return len(c.Snapshot().State.Log) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Submit("foo"))
	assert.Equal(t, wire.Frame{Action: wire.ActionNew, Message: "foo"}, nextSent(t, mgr))
	snap := c.Snapshot()
	assert.Empty(t, snap.State.Log)
	assert.Equal(t, "foo", snap.State.PendingInput)
}

func TestControllerRejectsEmptySubmitAndDelete(t *testing.T) {
	testlog.Start(t)
	c, mgr := startController(t)
	require.NoError(t, c.Submit(""))
	require.NoError(t, c.DeleteActive())
	require.NoError(t, c.SetInput("marker"))
	require.Eventually(t, func() bool { return c.Snapshot().State.PendingInput == "marker" }, 2*time.Second, 5*time.Millisecond)
	select {
	case f := <-mgr.sent:
		t.Fatalf("unexpected outbound frame %v", f)
	default:
	}
}

func TestControllerDeleteActive(t *testing.T) {
	testlog.Start(t)
	c, mgr := startController(t)
	mgr.deliver(wire.ActionAppLabel, "j7")
	mgr.deliver(wire.ActionLink, "https://j7.apps.example")
	require.Eventually(t, func() bool { return len(c.Snapshot().State.Log) == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.DeleteActive())
	assert.Equal(t, wire.Frame{Action: wire.ActionDelete, Message: "j7"}, nextSent(t, mgr))
	snap := c.Snapshot()
	assert.False(t, snap.State.HasActiveJob())
	assert.Equal(t, []wire.Frame{{Action: wire.ActionLink, Message: "https://j7.apps.example"}}, snap.State.Log)
}

func TestControllerSubscribeReceivesLatest(t *testing.T) {
	testlog.Start(t)
	c, mgr := startController(t)
	updates, unsub := c.Subscribe()
	defer unsub()

	first := <-updates
	assert.False(t, first.State.HasActiveJob())

	mgr.deliver(wire.ActionAppLabel, "j9")
	mgr.events <- conn.Event{Kind: conn.EventClosed, ConnID: "c1"}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-updates:
			if snap.State.ActiveJobID == "j9" && !snap.Connected && snap.Seq >= 2 {
				return
			}
		case <-deadline:
			t.Fatalf("never observed latest snapshot: %+v", c.Snapshot())
		}
	}
}

func TestControllerIntentQueueFull(t *testing.T) {
	testlog.Start(t)
	mgr := newFakeManager()
	c := New(mgr, Options{IntentBuffer: 1})
	require.NoError(t, c.SetInput("a"))
	assert.ErrorIs(t, c.SetInput("b"), ErrIntentQueueFull)
}

func TestControllerStopsWhenManagerStops(t *testing.T) {
	testlog.Start(t)
	mgr := newFakeManager()
	c := New(mgr, Options{})
	updates, _ := c.Subscribe()
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	mgr.once.Do(func() { close(mgr.events) })
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("controller did not stop after events closed")
	}
	for range updates {
	}
	assert.ErrorIs(t, c.Run(context.Background()), ErrAlreadyRunning)
}
