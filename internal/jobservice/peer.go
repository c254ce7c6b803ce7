package jobservice

import (
	"sync"
	"time"

	"github.com/danmuck/promecieus/internal/observability"
	"github.com/danmuck/promecieus/internal/protocol/wire"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const peerWriteTimeout = 5 * time.Second

// peer is one websocket client. Writes are serialized by mu; gorilla
// allows a single concurrent writer.
type peer struct {
	id   string
	conn *websocket.Conn
	log  zerolog.Logger

	mu     sync.Mutex
	closed bool
}

func (p *peer) send(f wire.Frame) {
	data, err := wire.EncodeFrame(f)
	if err != nil {
		p.log.Error().Err(err).Msg("jobservice.peer encode failed")
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		observability.RecordFrameDropped(observability.DirectionOutbound, "closed")
		return
	}
	_ = p.conn.SetWriteDeadline(time.Now().Add(peerWriteTimeout))
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		p.log.Warn().Err(err).Str("action", string(f.Action)).Msg("jobservice.peer write failed")
		observability.RecordFrameDropped(observability.DirectionOutbound, "write")
		return
	}
	observability.RecordFrame(observability.DirectionOutbound, string(f.Action))
}

func (p *peer) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	_ = p.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
		time.Now().Add(time.Second),
	)
	_ = p.conn.Close()
}
