package observability

import (
	"testing"
	"time"

	"github.com/danmuck/promecieus/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordConnAttempt()
	RecordConnOpen()
	RecordConnClose("remote")
	RecordRetryScheduled(250 * time.Millisecond)
	RecordFrame(DirectionOutbound, "connect")
	RecordFrameDropped(DirectionInbound, "malformed")
	RecordHTTPRequest("jobservice", "GET", "/health", 200, 12*time.Millisecond)
	SetLiveApps(2)

	if got := testutil.ToFloat64(liveApps); got != 2 {
		t.Fatalf("live apps gauge=%v", got)
	}
	before := testutil.ToFloat64(frames.WithLabelValues(DirectionInbound, "status"))
	RecordFrame(DirectionInbound, "status")
	if got := testutil.ToFloat64(frames.WithLabelValues(DirectionInbound, "status")); got != before+1 {
		t.Fatalf("frames counter=%v want %v", got, before+1)
	}
}
