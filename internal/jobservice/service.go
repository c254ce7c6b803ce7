package jobservice

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/promecieus/internal/config"
	"github.com/danmuck/promecieus/internal/logging"
	"github.com/danmuck/promecieus/internal/observability"
	"github.com/danmuck/promecieus/internal/protocol/wire"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	labelCharset = "abcdefghijklmnopqrstuvwxyz"
	labelLength  = 8
)

type app struct {
	label  string
	source string
	owner  string
	cancel context.CancelFunc
	ready  bool
}

// Service holds live apps and connected peers.
type Service struct {
	cfg       config.ServiceConfig
	step      time.Duration
	log       zerolog.Logger
	startedAt time.Time
	newLabel  func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	apps   map[string]*app
	peers  map[string]*peer
}

func New(cfg config.ServiceConfig) *Service {
	cfg = cfg.WithDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:       cfg,
		step:      cfg.Step(),
		log:       logging.Component("jobservice"),
		startedAt: time.Now(),
		newLabel:  generateAppLabel,
		ctx:       ctx,
		cancel:    cancel,
		apps:      make(map[string]*app),
		peers:     make(map[string]*peer),
	}
}

// Close stops every running pipeline and disconnects all peers.
func (s *Service) Close() {
	s.cancel()
	s.mu.Lock()
	s.closed = true
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()
	for _, p := range peers {
		p.close()
	}
	s.wg.Wait()
}

// Quota reports live apps against the configured hard limit.
func (s *Service) Quota() wire.Quota {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quotaLocked()
}

// AppInfo describes one live app for the health endpoint.
type AppInfo struct {
	Label string `json:"label"`
	Ready bool   `json:"ready"`
}

// Apps lists live apps sorted by label.
func (s *Service) Apps() []AppInfo {
	s.mu.Lock()
	out := make([]AppInfo, 0, len(s.apps))
	for _, a := range s.apps {
		out = append(out, AppInfo{Label: a.label, Ready: a.ready})
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b AppInfo) int {
		return strings.Compare(a.Label, b.Label)
	})
	return out
}

func (s *Service) quotaLocked() wire.Quota {
	return wire.Quota{Used: int64(len(s.apps)), Hard: s.cfg.QuotaHard}
}

func (s *Service) handle(p *peer, f wire.Frame) {
	switch f.Action {
	case wire.ActionConnect:
		p.send(wire.QuotaFrame(s.Quota()))
	case wire.ActionNew:
		s.startJob(p, strings.TrimSpace(f.Message))
	case wire.ActionDelete:
		s.deleteJob(p, strings.TrimSpace(f.Message))
	default:
		s.log.Warn().
			Str("peer", p.id).
			Str("action", string(f.Action)).
			Msg("jobservice.Service unsupported action")
		observability.RecordFrameDropped(observability.DirectionInbound, "unsupported")
	}
}

func (s *Service) validSource(source string) bool {
	for _, prefix := range s.cfg.ProwPrefixes {
		if strings.HasPrefix(source, prefix) {
			return true
		}
	}
	return false
}

func (s *Service) startJob(p *peer, source string) {
	if !s.validSource(source) {
		p.send(wire.Frame{
			Action:  wire.ActionFailure,
			Message: fmt.Sprintf("Not a Prow URL: %q", source),
		})
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	q := s.quotaLocked()
	if q.Used >= q.Hard {
		s.mu.Unlock()
		p.send(wire.Frame{
			Action:  wire.ActionFailure,
			Message: fmt.Sprintf("Resource quota exhausted (%s), delete an app first", q),
		})
		return
	}
	label := s.newLabel()
	for s.apps[label] != nil {
		label = s.newLabel()
	}
	ctx, cancel := context.WithCancel(s.ctx)
	a := &app{label: label, source: source, owner: p.id, cancel: cancel}
	s.apps[label] = a
	count := len(s.apps)
	s.wg.Add(1)
	s.mu.Unlock()

	observability.SetLiveApps(count)
	s.log.Info().
		Str("peer", p.id).
		Str("label", label).
		Str("source", source).
		Msg("jobservice.Service job started")

	p.send(wire.Frame{Action: wire.ActionAppLabel, Message: label})
	s.broadcastQuota()

	go func() {
		defer s.wg.Done()
		s.runPipeline(ctx, p, a)
	}()
}

func (s *Service) runPipeline(ctx context.Context, p *peer, a *app) {
	steps := []wire.Frame{
		{Action: wire.ActionStatus, Message: fmt.Sprintf("Fetching metrics from %s", a.source)},
		{Action: wire.ActionProgress, Message: "Downloading prometheus archive"},
		{Action: wire.ActionStatus, Message: fmt.Sprintf("Found prometheus archive for %s", a.label)},
		{Action: wire.ActionProgress, Message: "Starting prometheus"},
		{Action: wire.ActionLink, Message: fmt.Sprintf("https://%s.%s", a.label, s.cfg.AppDomain)},
		{Action: wire.ActionDone, Message: "Prometheus is ready"},
	}
	for _, f := range steps {
		if !s.wait(ctx) {
			s.log.Debug().Str("label", a.label).Msg("jobservice.Service pipeline cancelled")
			return
		}
		p.send(f)
	}
	s.mu.Lock()
	a.ready = true
	s.mu.Unlock()
	s.log.Info().Str("label", a.label).Msg("jobservice.Service job ready")
}

func (s *Service) wait(ctx context.Context) bool {
	if s.step <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(s.step)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Service) deleteJob(p *peer, label string) {
	s.mu.Lock()
	a, ok := s.apps[label]
	if ok {
		delete(s.apps, label)
	}
	count := len(s.apps)
	s.mu.Unlock()

	if !ok {
		p.send(wire.Frame{Action: wire.ActionStatus, Message: fmt.Sprintf("App %s not found", label)})
		s.broadcastQuota()
		return
	}
	a.cancel()
	observability.SetLiveApps(count)
	s.log.Info().
		Str("peer", p.id).
		Str("owner", a.owner).
		Str("label", label).
		Msg("jobservice.Service job deleted")
	p.send(wire.Frame{Action: wire.ActionStatus, Message: fmt.Sprintf("Removed app %s", label)})
	s.broadcastQuota()
}

func (s *Service) broadcastQuota() {
	s.mu.Lock()
	frame := wire.QuotaFrame(s.quotaLocked())
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()
	for _, p := range peers {
		p.send(frame)
	}
}

func (s *Service) addPeer(p *peer) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[p.id] = p
	return len(s.peers)
}

func (s *Service) removePeer(p *peer) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, p.id)
	return len(s.peers)
}

// generateAppLabel draws an 8-letter lowercase label from a random UUID.
func generateAppLabel() string {
	id := uuid.New()
	b := make([]byte, labelLength)
	for i := range b {
		b[i] = labelCharset[int(id[i])%len(labelCharset)]
	}
	return string(b)
}
