// Package controller glues the connection manager to the session reducer.
//
// One loop goroutine owns the session: inbound frames and user intents are
// folded strictly in arrival order, each step replaces the stored state
// wholesale, and outbound sends happen only after the new state is stored.
package controller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/danmuck/promecieus/internal/conn"
	"github.com/danmuck/promecieus/internal/feed"
	"github.com/danmuck/promecieus/internal/logging"
	"github.com/danmuck/promecieus/internal/protocol/wire"
	"github.com/rs/zerolog"
)

var (
	ErrIntentQueueFull = errors.New("controller: intent queue full")
	ErrAlreadyRunning  = errors.New("controller: already running")
)

// Manager is the connection surface the controller drives.
type Manager interface {
	Open()
	Send(frame wire.Frame)
	Events() <-chan conn.Event
	Run(ctx context.Context) error
	State() conn.State
}

// Snapshot is what the rendering collaborator receives.
type Snapshot struct {
	Seq       uint64
	State     feed.State
	Connected bool
}

type Options struct {
	IntentBuffer     int
	SubscriberBuffer int
	Logger           *zerolog.Logger
}

type intentKind int

const (
	intentInput intentKind = iota
	intentSubmit
	intentDelete
)

type intent struct {
	kind intentKind
	text string
}

type Controller struct {
	mgr     Manager
	log     zerolog.Logger
	intents chan intent
	running atomic.Bool

	state     atomic.Pointer[feed.State]
	connected atomic.Bool
	seq       atomic.Uint64

	subMu  sync.Mutex
	subs   map[chan Snapshot]struct{}
	subBuf int
}

// New builds a controller and immediately asks the manager to open its
// connection, exactly once.
func New(mgr Manager, opts Options) *Controller {
	intentBuffer := opts.IntentBuffer
	if intentBuffer <= 0 {
		intentBuffer = 16
	}
	subBuf := opts.SubscriberBuffer
	if subBuf <= 0 {
		subBuf = 16
	}
	logger := logging.Component("controller")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	c := &Controller{
		mgr:     mgr,
		log:     logger,
		intents: make(chan intent, intentBuffer),
		subs:    make(map[chan Snapshot]struct{}),
		subBuf:  subBuf,
	}
	initial := feed.State{Log: []wire.Frame{}}
	c.state.Store(&initial)
	mgr.Open()
	return c
}

// Run drives the manager and the session loop until ctx is cancelled or
// the manager stops.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mgrErr := make(chan error, 1)
	go func() {
		mgrErr <- c.mgr.Run(ctx)
	}()
	defer c.closeSubscribers()

	events := c.mgr.Events()
	for {
		select {
		case <-ctx.Done():
			return <-mgrErr
		case ev, ok := <-events:
			if !ok {
				cancel()
				return <-mgrErr
			}
			c.handleEvent(ev)
		case in := <-c.intents:
			c.handleIntent(in)
		}
	}
}

// SetInput replaces the pending input text.
func (c *Controller) SetInput(text string) error {
	return c.enqueue(intent{kind: intentInput, text: text})
}

// Submit sets the pending input to text and sends it as a new job.
// Empty text is ignored.
func (c *Controller) Submit(text string) error {
	return c.enqueue(intent{kind: intentSubmit, text: text})
}

// DeleteActive requests deletion of the active job, if any.
func (c *Controller) DeleteActive() error {
	return c.enqueue(intent{kind: intentDelete})
}

// Snapshot returns the current session state and liveness.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		Seq:       c.seq.Load(),
		State:     c.state.Load().Clone(),
		Connected: c.connected.Load(),
	}
}

// Connected reports whether the manager's connection is currently open.
func (c *Controller) Connected() bool {
	return c.connected.Load()
}

// Subscribe registers a snapshot subscriber. The current snapshot is
// delivered first. Slow subscribers miss intermediate snapshots, never
// the latest one.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, c.subBuf)
	ch <- c.Snapshot()
	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	count := len(c.subs)
	c.subMu.Unlock()
	c.log.Debug().Int("subs", count).Msg("controller.Controller subscribe")

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			if _, ok := c.subs[ch]; ok {
				delete(c.subs, ch)
				close(ch)
			}
			c.subMu.Unlock()
		})
	}
}

func (c *Controller) enqueue(in intent) error {
	select {
	case c.intents <- in:
		return nil
	default:
		c.log.Warn().Int("kind", int(in.kind)).Msg("controller.Controller intent dropped")
		return ErrIntentQueueFull
	}
}

func (c *Controller) handleEvent(ev conn.Event) {
	switch ev.Kind {
	case conn.EventOpen:
		c.connected.Store(true)
		c.log.Info().Str("conn_id", ev.ConnID).Msg("controller.Controller connected")
		c.publish()
	case conn.EventClosed:
		c.connected.Store(false)
		c.log.Info().Str("conn_id", ev.ConnID).AnErr("cause", ev.Err).Msg("controller.Controller disconnected")
		c.publish()
	case conn.EventMessage:
		next, err := feed.Reduce(*c.state.Load(), ev.Frame)
		if err != nil {
			c.log.Warn().Err(err).Str("action", string(ev.Frame.Action)).Msg("controller.Controller dropped inbound event")
			return
		}
		c.store(next)
	}
}

func (c *Controller) handleIntent(in intent) {
	current := *c.state.Load()
	switch in.kind {
	case intentInput:
		c.store(feed.WithInput(current, in.text))
	case intentSubmit:
		cmd, next, ok := feed.Submit(feed.WithInput(current, in.text))
		if !ok {
			c.log.Debug().Msg("controller.Controller submit ignored: empty input")
			return
		}
		c.store(next)
		c.mgr.Send(cmd)
	case intentDelete:
		cmd, next, ok := feed.Delete(current)
		if !ok {
			c.log.Debug().Msg("controller.Controller delete ignored: no active job")
			return
		}
		c.store(next)
		c.mgr.Send(cmd)
	}
}

func (c *Controller) store(next feed.State) {
	c.state.Store(&next)
	c.publish()
}

func (c *Controller) publish() {
	c.seq.Add(1)
	snap := c.Snapshot()
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- snap:
		default:
			// Full: replace the oldest pending snapshot with the latest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (c *Controller) closeSubscribers() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subs {
		delete(c.subs, ch)
		close(ch)
	}
}
