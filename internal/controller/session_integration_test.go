package controller_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danmuck/promecieus/internal/config"
	"github.com/danmuck/promecieus/internal/conn"
	"github.com/danmuck/promecieus/internal/controller"
	"github.com/danmuck/promecieus/internal/jobservice"
	"github.com/danmuck/promecieus/internal/protocol/session"
	"github.com/danmuck/promecieus/internal/protocol/wire"
	"github.com/danmuck/promecieus/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, snaps <-chan controller.Snapshot, what string, ok func(controller.Snapshot) bool) controller.Snapshot {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap, open := <-snaps:
			if !open {
				t.Fatalf("subscription closed while waiting for %s", what)
			}
			if ok(snap) {
				return snap
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func TestSessionAgainstJobService(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultServiceConfig()
	cfg.StepDelay = "0s"
	cfg.CorsOrigins = nil
	cfg.QuotaHard = 2
	svc := jobservice.New(cfg)
	srv := httptest.NewServer(svc.Router())
	defer svc.Close()
	defer srv.Close()

	dialer, err := conn.NewWebsocketDialer(srv.URL, session.DefaultConfig())
	require.NoError(t, err)
	c := controller.New(conn.NewManager(dialer, conn.Options{}), controller.Options{})
	snaps, unsubscribe := c.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	waitFor(t, snaps, "initial quota", func(s controller.Snapshot) bool {
		return s.Connected && s.State.Quota == wire.Quota{Used: 0, Hard: 2}
	})

	require.True(t, c.Connected())
	require.NoError(t, c.Submit(config.DefaultProwPrefix+"/gcs/logs/e2e/1"))
	snap := waitFor(t, snaps, "done", func(s controller.Snapshot) bool {
		return s.State.Count(wire.ActionDone) == 1
	})
	require.True(t, snap.State.HasActiveJob())
	require.Equal(t, wire.ActionAppLabel, snap.State.Log[0].Action)
	require.Equal(t, snap.State.ActiveJobID, snap.State.Log[0].Message)
	require.Zero(t, snap.State.Count(wire.ActionProgress))
	require.Equal(t, 1, snap.State.Count(wire.ActionLink))

	require.Equal(t, int64(1), snap.State.Quota.Used)
	label := snap.State.ActiveJobID

	require.NoError(t, c.DeleteActive())
	snap = waitFor(t, snaps, "quota after delete", func(s controller.Snapshot) bool {
		return !s.State.HasActiveJob() && s.State.Quota.Used == 0
	})
	require.Empty(t, svc.Apps())
	require.Contains(t, snap.State.Log, wire.Frame{Action: wire.ActionStatus, Message: "Removed app " + label})
}
