package conn

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/danmuck/promecieus/internal/logging"
	"github.com/danmuck/promecieus/internal/observability"
	"github.com/danmuck/promecieus/internal/protocol/session"
	"github.com/danmuck/promecieus/internal/protocol/wire"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the lifecycle phase of the current connection instance.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventKind identifies a lifecycle notification delivered to the owner.
type EventKind int

const (
	EventOpen EventKind = iota
	EventMessage
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is one notification from the Manager. Frame is set for
// EventMessage, Err for EventClosed when the closure had a cause.
type Event struct {
	Kind   EventKind
	ConnID string
	Frame  wire.Frame
	Err    error
}

// Timer is the subset of *time.Timer the Manager needs.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// TimerFunc starts a one-shot timer.
type TimerFunc func(d time.Duration) Timer

type stdTimer struct {
	t *time.Timer
}

func (s stdTimer) C() <-chan time.Time { return s.t.C }
func (s stdTimer) Stop() bool          { return s.t.Stop() }

func NewStdTimer(d time.Duration) Timer {
	return stdTimer{t: time.NewTimer(d)}
}

// Options configures a Manager. Zero values select defaults.
type Options struct {
	Session     session.Config
	NewTimer    TimerFunc
	EventBuffer int
	SendBuffer  int
	Logger      *zerolog.Logger
}

var (
	ErrAlreadyRunning = errors.New("conn: manager already running")
	errClosedByOwner  = errors.New("conn: closed by owner")
)

const (
	closeReasonDial    = "dial"
	closeReasonRemote  = "remote"
	closeReasonWrite   = "write"
	closeReasonPing    = "ping"
	closeReasonOwner   = "owner"
	closeReasonRequest = "request"
)

// Manager keeps at most one live connection instance and reconnects
// with backoff whenever it closes.
type Manager struct {
	dialer   Dialer
	cfg      session.Config
	newTimer TimerFunc
	log      zerolog.Logger

	openReq  chan struct{}
	closeReq chan struct{}
	sendReq  chan wire.Frame
	internal chan loopMsg
	events   chan Event

	state   atomic.Int32
	dropped atomic.Uint64
	running atomic.Bool

	// owned by the Run goroutine
	current *instance
	delay   time.Duration
	retry   Timer
	ping    *time.Ticker
}

type instance struct {
	id        string
	transport Transport
}

type loopMsg struct {
	inst      *instance
	transport Transport
	data      []byte
	err       error
	kind      loopMsgKind
}

type loopMsgKind int

const (
	msgDialed loopMsgKind = iota
	msgInbound
	msgReadFailed
)

func NewManager(dialer Dialer, opts Options) *Manager {
	cfg := opts.Session.WithDefaults()
	newTimer := opts.NewTimer
	if newTimer == nil {
		newTimer = NewStdTimer
	}
	eventBuffer := opts.EventBuffer
	if eventBuffer <= 0 {
		eventBuffer = 64
	}
	sendBuffer := opts.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = 16
	}
	logger := logging.Component("conn")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	m := &Manager{
		dialer:   dialer,
		cfg:      cfg,
		newTimer: newTimer,
		log:      logger,
		openReq:  make(chan struct{}, 1),
		closeReq: make(chan struct{}, 1),
		sendReq:  make(chan wire.Frame, sendBuffer),
		internal: make(chan loopMsg),
		events:   make(chan Event, eventBuffer),
		delay:    cfg.Backoff.InitialDelay,
	}
	m.state.Store(int32(StateIdle))
	return m
}

// Events delivers lifecycle notifications in order. The channel is
// closed when Run returns.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// State reports the lifecycle phase of the current instance.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Dropped reports how many outbound frames were discarded because no
// connection was open.
func (m *Manager) Dropped() uint64 {
	return m.dropped.Load()
}

// Open requests a connection attempt. It is a no-op while an instance is
// connecting or open; a pending retry timer is cancelled first.
func (m *Manager) Open() {
	select {
	case m.openReq <- struct{}{}:
	default:
	}
}

// Drop force-closes the current instance. The normal retry path follows.
func (m *Manager) Drop() {
	select {
	case m.closeReq <- struct{}{}:
	default:
	}
}

// Send enqueues one outbound frame. Frames sent while no connection is
// open are logged and discarded.
func (m *Manager) Send(frame wire.Frame) {
	select {
	case m.sendReq <- frame:
	default:
		m.drop(frame, "send_queue_full")
	}
}

// Run owns the connection lifecycle until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(m.events)
	defer m.shutdown()

	for {
		var retryC <-chan time.Time
		if m.retry != nil {
			retryC = m.retry.C()
		}
		var pingC <-chan time.Time
		if m.ping != nil {
			pingC = m.ping.C
		}

		select {
		case <-ctx.Done():
			return nil
		case <-m.openReq:
			m.open(ctx)
		case <-m.closeReq:
			if m.current != nil {
				m.closed(ctx, m.current, closeReasonRequest, errClosedByOwner)
			}
		case frame := <-m.sendReq:
			m.send(ctx, frame)
		case msg := <-m.internal:
			m.handle(ctx, msg)
		case <-retryC:
			m.retry = nil
			m.log.Debug().Msg("conn.Manager retry timer fired")
			m.open(ctx)
		case <-pingC:
			if m.current != nil && m.current.transport != nil {
				if err := m.current.transport.Ping(); err != nil {
					m.closed(ctx, m.current, closeReasonPing, err)
				}
			}
		}
	}
}

func (m *Manager) open(ctx context.Context) {
	switch m.State() {
	case StateConnecting, StateOpen:
		m.log.Debug().Str("state", m.State().String()).Msg("conn.Manager open skipped")
		return
	}
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}

	inst := &instance{id: uuid.NewString()}
	m.current = inst
	m.state.Store(int32(StateConnecting))
	observability.RecordConnAttempt()
	m.log.Debug().Str("conn_id", inst.id).Msg("conn.Manager connecting")

	go func() {
		transport, err := m.dialer.Dial(ctx)
		select {
		case m.internal <- loopMsg{kind: msgDialed, inst: inst, transport: transport, err: err}:
		case <-ctx.Done():
			if transport != nil {
				_ = transport.Close()
			}
		}
	}()
}

func (m *Manager) handle(ctx context.Context, msg loopMsg) {
	if msg.inst != m.current {
		if msg.kind == msgDialed && msg.transport != nil {
			_ = msg.transport.Close()
		}
		return
	}
	switch msg.kind {
	case msgDialed:
		if msg.err != nil {
			m.closed(ctx, msg.inst, closeReasonDial, msg.err)
			return
		}
		m.opened(ctx, msg.inst, msg.transport)
	case msgInbound:
		m.inbound(ctx, msg.inst, msg.data)
	case msgReadFailed:
		m.closed(ctx, msg.inst, closeReasonRemote, msg.err)
	}
}

func (m *Manager) opened(ctx context.Context, inst *instance, transport Transport) {
	inst.transport = transport
	m.state.Store(int32(StateOpen))
	m.delay = m.cfg.Backoff.InitialDelay
	m.ping = time.NewTicker(m.cfg.PingInterval)
	observability.RecordConnOpen()
	m.log.Info().Str("conn_id", inst.id).Msg("conn.Manager connected")

	go m.readLoop(ctx, inst)
	m.emit(ctx, Event{Kind: EventOpen, ConnID: inst.id})
	m.send(ctx, wire.Connect())
}

func (m *Manager) readLoop(ctx context.Context, inst *instance) {
	for {
		data, err := inst.transport.ReadFrame()
		msg := loopMsg{kind: msgInbound, inst: inst, data: data}
		if err != nil {
			msg = loopMsg{kind: msgReadFailed, inst: inst, err: err}
		}
		select {
		case m.internal <- msg:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (m *Manager) inbound(ctx context.Context, inst *instance, data []byte) {
	frame, err := wire.DecodeFrame(data)
	if err != nil {
		observability.RecordFrameDropped(observability.DirectionInbound, "malformed")
		m.log.Warn().Str("conn_id", inst.id).Err(err).Int("bytes", len(data)).Msg("conn.Manager dropped inbound frame")
		return
	}
	observability.RecordFrame(observability.DirectionInbound, string(frame.Action))
	m.log.Trace().Str("conn_id", inst.id).Str("action", string(frame.Action)).Msg("conn.Manager inbound")
	m.emit(ctx, Event{Kind: EventMessage, ConnID: inst.id, Frame: frame})
}

func (m *Manager) send(ctx context.Context, frame wire.Frame) {
	inst := m.current
	if m.State() != StateOpen || inst == nil || inst.transport == nil {
		m.drop(frame, "not_open")
		return
	}
	payload, err := wire.EncodeFrame(frame)
	if err != nil {
		m.drop(frame, "encode")
		return
	}
	if err := inst.transport.WriteFrame(payload); err != nil {
		m.drop(frame, "write")
		m.closed(ctx, inst, closeReasonWrite, err)
		return
	}
	observability.RecordFrame(observability.DirectionOutbound, string(frame.Action))
	m.log.Debug().Str("conn_id", inst.id).Str("action", string(frame.Action)).Msg("conn.Manager sent")
}

func (m *Manager) drop(frame wire.Frame, reason string) {
	m.dropped.Add(1)
	observability.RecordFrameDropped(observability.DirectionOutbound, reason)
	m.log.Warn().
		Str("action", string(frame.Action)).
		Str("reason", reason).
		Str("state", m.State().String()).
		Msg("conn.Manager dropped outbound frame")
}

// closed tears down inst, notifies the owner and schedules a retry.
// Stale instances are ignored so each instance closes exactly once.
func (m *Manager) closed(ctx context.Context, inst *instance, reason string, cause error) {
	if inst != m.current {
		return
	}
	if inst.transport != nil {
		_ = inst.transport.Close()
	}
	if m.ping != nil {
		m.ping.Stop()
		m.ping = nil
	}
	m.current = nil
	m.state.Store(int32(StateClosed))
	observability.RecordConnClose(reason)
	m.emit(ctx, Event{Kind: EventClosed, ConnID: inst.id, Err: cause})

	if m.retry != nil {
		m.log.Debug().Str("conn_id", inst.id).Msg("conn.Manager retry already pending")
		return
	}
	delay := m.delay
	m.delay = session.Next(m.cfg.Backoff, delay)
	m.retry = m.newTimer(delay)
	observability.RecordRetryScheduled(delay)
	m.log.Warn().
		Str("conn_id", inst.id).
		Str("reason", reason).
		AnErr("cause", cause).
		Float64("retry_in_s", delay.Seconds()).
		Msg("conn.Manager socket closed, reconnect scheduled")
}

func (m *Manager) emit(ctx context.Context, ev Event) {
	select {
	case m.events <- ev:
	case <-ctx.Done():
	}
}

func (m *Manager) shutdown() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if m.ping != nil {
		m.ping.Stop()
		m.ping = nil
	}
	if m.current != nil && m.current.transport != nil {
		_ = m.current.transport.Close()
		observability.RecordConnClose(closeReasonOwner)
	}
	m.current = nil
	m.state.Store(int32(StateClosed))
	m.log.Debug().Msg("conn.Manager shutdown")
}
