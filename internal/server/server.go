package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/log-redactor/internal/audit"
	"github.com/raaihank/log-redactor/internal/config"
	"github.com/raaihank/log-redactor/internal/logger"
	"github.com/raaihank/log-redactor/internal/ratelimit"
	"github.com/raaihank/log-redactor/internal/reload"
	"github.com/raaihank/log-redactor/internal/web"
	"github.com/raaihank/log-redactor/internal/websocket"
	"go.uber.org/zap"
)

// Name and Version are reported by /info
const (
	Name    = "log-redactor"
	Version = "0.1.0"
)

// HistoryReader serves the reload history endpoint
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]audit.Record, error)
}

// Deps are the components the server exposes. Manager is required; the
// others are optional and their endpoints are disabled when nil.
type Deps struct {
	Manager *reload.Manager
	History HistoryReader
	Hub     *websocket.Hub
	Limiter *ratelimit.Limiter
	// IPs resolves client addresses; nil uses the peer address
	IPs *ratelimit.IPResolver
}

// Server is the redaction HTTP service
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	manager *reload.Manager
	history HistoryReader
	hub     *websocket.Hub
	limiter *ratelimit.Limiter
	ips     *ratelimit.IPResolver
	router  *mux.Router
	server  *http.Server
	started time.Time
	stats   stats
}

type stats struct {
	requests   atomic.Int64
	redactions atomic.Int64
	changed    atomic.Int64
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, deps Deps) (*Server, error) {
	if deps.Manager == nil {
		return nil, errors.New("server requires a reload manager")
	}
	if log == nil {
		log = logger.NewNop()
	}

	s := &Server{
		config:  cfg,
		logger:  log.WithComponent("server"),
		manager: deps.Manager,
		history: deps.History,
		hub:     deps.Hub,
		limiter: deps.Limiter,
		ips:     deps.IPs,
		router:  mux.NewRouter(),
		started: time.Now(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/redact", s.handleRedact).Methods(http.MethodPost)
	api.HandleFunc("/rules", s.handleRules).Methods(http.MethodGet)
	api.HandleFunc("/reload", s.handleReload).Methods(http.MethodPost)
	api.HandleFunc("/reloads", s.handleReloads).Methods(http.MethodGet)

	if s.hub != nil {
		s.router.HandleFunc(s.config.WebSocket.Path, s.hub.HandleWebSocket).Methods(http.MethodGet)
		s.router.HandleFunc("/dashboard", web.Dashboard(Name, s.config.WebSocket.Path)).Methods(http.MethodGet)
	}
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until Stop is called
func (s *Server) Start() error {
	s.logger.Info("Starting log-redactor server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("websocket", s.hub != nil),
		zap.Bool("audit", s.history != nil),
	)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping log-redactor server")
	return s.server.Shutdown(ctx)
}

// Status summarises the running service
func (s *Server) Status() websocket.SystemStatusEvent {
	status := websocket.SystemStatusEvent{
		Status:          "healthy",
		Uptime:          time.Since(s.started).Round(time.Second).String(),
		TotalRequests:   s.stats.requests.Load(),
		TotalRedactions: s.stats.redactions.Load(),
		ChangedTexts:    s.stats.changed.Load(),
	}
	if rs := s.manager.Engine().RuleSet(); rs != nil {
		status.ActiveRules = rs.Len()
		status.RulesChecksum = rs.Checksum()
	} else {
		status.Status = "unconfigured"
	}
	if s.hub != nil {
		status.ConnectedClients = int(s.hub.GetStats().ActiveConnections)
	}
	return status
}

// RunStatusBroadcast pushes a system status event to websocket clients
// every interval until ctx is cancelled
func (s *Server) RunStatusBroadcast(ctx context.Context, interval time.Duration) {
	if s.hub == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.hub.BroadcastEvent(websocket.Event{
				Type:      websocket.EventTypeSystemStatus,
				Timestamp: time.Now(),
				Data:      s.Status(),
			})
		}
	}
}
