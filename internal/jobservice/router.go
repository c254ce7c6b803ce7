package jobservice

import (
	"net/http"
	"slices"
	"time"

	"github.com/danmuck/promecieus/internal/observability"
	"github.com/danmuck/promecieus/internal/protocol/wire"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	Version         = "0.1.0"
	maxMessageBytes = 64 << 10
)

// Router builds the HTTP surface: /health, /metrics and the websocket
// status endpoint.
func (s *Service) Router() *gin.Engine {
	observability.RegisterMetrics()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(s.log))
	r.Use(observability.RequestMetricsMiddleware(s.cfg.Name))
	corsCfg := cors.Config{
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(s.cfg.CorsOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.cfg.CorsOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET(wire.StatusPath, s.status)
	return r
}

func (s *Service) health(c *gin.Context) {
	q := s.Quota()
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startedAt).String(),
		"service": s.cfg.Name,
		"version": Version,
		"quota":   q.String(),
		"apps":    s.Apps(),
	})
}

func (s *Service) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(s.cfg.CorsOrigins) == 0 {
				return true
			}
			return slices.Contains(s.cfg.CorsOrigins, origin)
		},
	}
}

func (s *Service) status(c *gin.Context) {
	up := s.upgrader()
	ws, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("jobservice.Service upgrade failed")
		return
	}
	ws.SetReadLimit(maxMessageBytes)

	id := uuid.NewString()
	p := &peer{
		id:   id,
		conn: ws,
		log:  s.log.With().Str("peer", id).Logger(),
	}
	peers := s.addPeer(p)
	s.log.Info().Str("peer", id).Int("peers", peers).Msg("jobservice.Service peer connected")
	defer func() {
		p.close()
		peers := s.removePeer(p)
		s.log.Info().Str("peer", id).Int("peers", peers).Msg("jobservice.Service peer disconnected")
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.log.Debug().Err(err).Msg("jobservice.Service read ended")
			}
			return
		}
		f, err := wire.DecodeFrame(data)
		if err != nil {
			p.log.Warn().Err(err).Msg("jobservice.Service malformed frame dropped")
			observability.RecordFrameDropped(observability.DirectionInbound, "malformed")
			continue
		}
		observability.RecordFrame(observability.DirectionInbound, string(f.Action))
		s.handle(p, f)
	}
}
