package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"facemark/internal/attend"
	"facemark/internal/config"
	"facemark/internal/model"
)

// SessionLister lists journaled scan sessions newest-first. The sqlite
// journal implements it beyond the core Journal interface.
type SessionLister interface {
	Sessions(n int) ([]model.ScanSession, error)
}

// ServerParams collects the server's dependencies. Service is required.
// Sessions may be nil, which disables the session listing endpoint.
// Gatherer may be nil, falling back to the default prometheus registry.
type ServerParams struct {
	Service  *attend.Service
	Sessions SessionLister
	Config   config.ServeConfig
	Gatherer prometheus.Gatherer
	Logger   attend.Logger
}

// Server is the local HTTP control surface: a JSON API over the
// attendance service, a prometheus endpoint and a websocket feed of
// pipeline results. With an auth password configured, every /api and
// /ws route requires a login token.
type Server struct {
	svc      *attend.Service
	sessions SessionLister
	cfg      config.ServeConfig
	hub      *Hub
	engine   *gin.Engine
	srv      *http.Server
	log      attend.Logger
	stopFeed func()
}

// NewServer builds the router and the feed hub. Nothing listens until
// Start.
func NewServer(p ServerParams) *Server {
	if p.Logger == nil {
		p.Logger = attend.NewNopLogger()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		svc:      p.Service,
		sessions: p.Sessions,
		cfg:      p.Config,
		hub:      NewHub(p.Logger),
		log:      p.Logger,
	}
	s.engine = s.buildRouter(p.Gatherer)
	s.srv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No read/write timeouts: websocket feed connections outlive
		// any fixed request deadline.
	}
	return s
}

func (s *Server) buildRouter(gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLog())

	metricsHandler := promhttp.Handler()
	if gatherer != nil {
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	r.GET("/metrics", gin.WrapH(metricsHandler))
	r.GET("/healthz", s.handleHealthz)
	r.POST("/api/login", s.handleLogin)

	api := r.Group("/api")
	ws := r.Group("/ws")
	if s.cfg.AuthPassword != "" {
		api.Use(authRequired(s.cfg.JWTSecret))
		ws.Use(authRequired(s.cfg.JWTSecret))
	}

	api.GET("/status", s.handleStatus)
	api.GET("/subject", s.handleSubjectGet)
	api.PUT("/subject", s.handleSubjectPut)
	api.POST("/session/start", s.handleSessionStart)
	api.POST("/session/stop", s.handleSessionStop)
	api.GET("/sessions", s.handleSessions)
	api.GET("/sessions/:id/events", s.handleSessionEvents)
	api.GET("/students", s.handleStudents)
	api.POST("/students", s.handleRegisterStudent)
	api.POST("/marks", s.handleMark)
	api.POST("/marks/import", s.handleImport)
	api.GET("/attendance", s.handleAttendance)
	api.GET("/summary", s.handleSummary)
	api.GET("/report", s.handleReport)
	api.GET("/events", s.handleEvents)
	api.GET("/alerts", s.handleAlerts)
	api.GET("/alerts/current", s.handleCurrentAlert)
	api.POST("/alerts/reset", s.handleResetAlert)

	ws.GET("", func(c *gin.Context) {
		s.hub.ServeWS(c.Writer, c.Request)
	})

	return r
}

// requestLog mirrors requests into the structured log, skipping the
// polling endpoints that would drown it.
func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/healthz" || path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.engine
}

// Start runs the hub, bridges the service feed into it and serves HTTP
// until Shutdown. It blocks.
func (s *Server) Start() error {
	go s.hub.Run()
	s.startFeed()
	s.log.Info("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, detaches the feed and closes all
// websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	if s.stopFeed != nil {
		s.stopFeed()
	}
	s.hub.Stop()
	return err
}

// feedMessage is the websocket wire format. Type is "frame", "alert" or
// "alert_cleared"; the matching payload field is set, the rest omitted.
type feedMessage struct {
	Type  string              `json:"type"`
	Frame *attend.FrameResult `json:"frame,omitempty"`
	Alert *model.AlertRecord  `json:"alert,omitempty"`
}

// startFeed subscribes to the service and rebroadcasts every frame
// result, plus alert state transitions, to the hub.
func (s *Server) startFeed() {
	ch, cancel := s.svc.Subscribe()
	done := make(chan struct{})
	s.stopFeed = func() {
		cancel()
		<-done
	}

	go func() {
		defer close(done)
		alertWasActive := false
		for res := range ch {
			s.hub.Broadcast(feedMessage{Type: "frame", Frame: &res})

			fired := false
			for _, o := range res.Outcomes {
				if o.AlertFired {
					fired = true
				}
			}
			active := s.svc.IsAlertActive()
			switch {
			case fired, active && !alertWasActive:
				s.hub.Broadcast(feedMessage{Type: "alert", Alert: s.svc.CurrentAlert()})
			case alertWasActive && !active:
				s.hub.Broadcast(feedMessage{Type: "alert_cleared"})
			}
			alertWasActive = active
		}
	}()
}
