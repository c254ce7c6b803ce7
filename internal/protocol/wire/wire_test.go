package wire

import (
	"errors"
	"testing"

	"github.com/danmuck/promecieus/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrameShape(t *testing.T) {
	testlog.Start(t)
	payload, err := EncodeFrame(Connect())
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"connect","message":""}`, string(payload))

	payload, err = EncodeFrame(Frame{Action: ActionNew, Message: "https://prow.example/view/1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"new","message":"https://prow.example/view/1"}`, string(payload))

	_, err = EncodeFrame(Frame{Message: "x"})
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeFrame(t *testing.T) {
	testlog.Start(t)
	f, err := DecodeFrame([]byte(`{"action":"app-label","message":"job-42"}`))
	require.NoError(t, err)
	assert.Equal(t, Frame{Action: ActionAppLabel, Message: "job-42"}, f)

	f, err = DecodeFrame([]byte(`{"action":"mystery"}`))
	require.NoError(t, err)
	assert.Equal(t, Action("mystery"), f.Action)
	assert.False(t, IsInbound(f.Action))

	for _, raw := range []string{`not json`, `{"message":"x"}`, `{"action":""}`, `[]`} {
		_, err := DecodeFrame([]byte(raw))
		assert.Truef(t, errors.Is(err, ErrMalformedFrame), "raw=%s err=%v", raw, err)
	}
}

func TestParseQuota(t *testing.T) {
	testlog.Start(t)
	q, err := ParseQuota(`{"used":3,"hard":10}`)
	require.NoError(t, err)
	assert.Equal(t, Quota{Used: 3, Hard: 10}, q)
	assert.Equal(t, "3/10", q.String())

	for _, raw := range []string{``, `{`, `{"used":3}`, `{"used":-1,"hard":2}`, `{"used":"3","hard":10}`} {
		_, err := ParseQuota(raw)
		assert.ErrorIsf(t, err, ErrMalformedQuota, "raw=%q", raw)
	}

	f := QuotaFrame(Quota{Used: 1, Hard: 5})
	assert.Equal(t, ActionRQuota, f.Action)
	assert.JSONEq(t, `{"used":1,"hard":5}`, f.Message)
}

func TestActionDirections(t *testing.T) {
	testlog.Start(t)
	for _, a := range []Action{ActionConnect, ActionNew, ActionDelete} {
		assert.True(t, IsOutbound(a))
		assert.False(t, IsInbound(a))
	}
	for _, a := range []Action{ActionStatus, ActionProgress, ActionFailure, ActionDone, ActionLink, ActionAppLabel, ActionRQuota} {
		assert.True(t, IsInbound(a))
		assert.False(t, IsOutbound(a))
	}
}
