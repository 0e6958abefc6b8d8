// Package web serves the read-only status API of a running dispatcher.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/hugo-lorenzo-mato/elastask/internal/core"
	"github.com/hugo-lorenzo-mato/elastask/internal/dispatcher"
	"github.com/hugo-lorenzo-mato/elastask/internal/events"
	"github.com/hugo-lorenzo-mato/elastask/internal/web/sse"
)

// StatusSource is the part of the dispatcher the API reports on.
type StatusSource interface {
	Config() dispatcher.Config
	Stats() dispatcher.StatsSnapshot
	LastReport() *dispatcher.CycleReport
	Nodes() []core.Node
	Ownership() core.OwnershipMap
}

// Server is the HTTP status server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	config     Config
	logger     *slog.Logger
	source     StatusSource
	eventBus   *events.EventBus
	sseHandler *sse.Handler
	version    string
	started    time.Time
}

// Config holds the server configuration.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	EnableCORS      bool
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            8089,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    0, // SSE streams stay open
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		CORSOrigins:     []string{"http://localhost:5173"},
		EnableCORS:      false,
	}
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithEventBus enables the SSE endpoint.
func WithEventBus(bus *events.EventBus) ServerOption {
	return func(s *Server) {
		s.eventBus = bus
	}
}

// WithVersion sets the version reported by the API root.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// New creates a server reporting on source.
func New(cfg Config, source StatusSource, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:  cfg,
		logger:  logger,
		source:  source,
		version: "dev",
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = s.setupRouter()
	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	if s.config.EnableCORS {
		corsMiddleware := cors.New(cors.Options{
			AllowedOrigins: s.config.CORSOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		})
		r.Use(corsMiddleware.Handler)
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleAPIRoot)
		r.Get("/status", s.handleStatus)
		r.Get("/nodes", s.handleNodes)

		if s.eventBus != nil {
			r.Route("/sse", func(r chi.Router) {
				s.sseHandler = sse.RegisterRoutes(r, s.eventBus)
			})
		}
	})

	return r
}

// loggingMiddleware logs HTTP requests at debug level; the SSE stream and
// health probes would otherwise flood the info log.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Debug("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("remote_addr", r.RemoteAddr),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleAPIRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": "v1", "name": "elastask", "build": s.version})
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Uptime     string                   `json:"uptime"`
	Config     ConfigView               `json:"config"`
	Stats      dispatcher.StatsSnapshot `json:"stats"`
	LastCycle  *dispatcher.CycleReport  `json:"last_cycle,omitempty"`
	SSEClients int                      `json:"sse_clients"`
}

// ConfigView is the dispatcher configuration as reported by the API.
type ConfigView struct {
	Capacity          int    `json:"capacity"`
	MaxAttempts       int    `json:"max_attempts"`
	RetryBackoff      string `json:"retry_backoff"`
	PollingInterval   string `json:"polling_interval"`
	PageSize          int    `json:"page_size"`
	ConditionalClaims bool   `json:"conditional_claims"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	cfg := s.source.Config()
	resp := StatusResponse{
		Uptime: time.Since(s.started).Truncate(time.Second).String(),
		Config: ConfigView{
			Capacity:          cfg.Capacity,
			MaxAttempts:       cfg.MaxAttempts,
			RetryBackoff:      cfg.RetryBackoff.String(),
			PollingInterval:   cfg.PollingInterval.String(),
			PageSize:          cfg.PageSize,
			ConditionalClaims: cfg.ConditionalClaims,
		},
		Stats:     s.source.Stats(),
		LastCycle: s.source.LastReport(),
	}
	if s.sseHandler != nil {
		resp.SSEClients = s.sseHandler.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// NodeView is one entry of GET /api/v1/nodes.
type NodeView struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	Owned     int    `json:"owned"`
	Remaining int    `json:"remaining"`
}

func (s *Server) handleNodes(w http.ResponseWriter, _ *http.Request) {
	capacity := s.source.Config().Capacity
	owners := s.source.Ownership()

	nodes := s.source.Nodes()
	out := make([]NodeView, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, NodeView{
			ID:        n.ID,
			Address:   n.Address,
			Owned:     owners[n.ID],
			Remaining: owners.Remaining(n.ID, capacity),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Start listens on the configured address and serves in the background. The
// listener is opened before Start returns, so a taken port is reported here.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}
	s.httpServer.Addr = ln.Addr().String()
	s.logger.Info("starting http server", slog.String("addr", s.httpServer.Addr))

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Shutdown disconnects SSE clients and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")

	if s.sseHandler != nil {
		_ = s.sseHandler.Shutdown(ctx)
	}

	shutdownCtx := ctx
	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("http server stopped")
	return nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the server address. After Start it is the bound address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
