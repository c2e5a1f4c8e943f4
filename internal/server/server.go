// Package server exposes the telemetry pipeline over HTTP: REST queries
// for stats, history and predictions, rate-limited remediation actions,
// a Prometheus endpoint and a live WebSocket feed.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hostpulse/hostpulse/internal/audit"
	"github.com/hostpulse/hostpulse/internal/db"
	"github.com/hostpulse/hostpulse/internal/export"
	"github.com/hostpulse/hostpulse/internal/middleware"
	"github.com/hostpulse/hostpulse/internal/monitor"
	"github.com/hostpulse/hostpulse/internal/remedy"
)

// Options tune the HTTP surface.
type Options struct {
	Host             string
	Port             int
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	ShutdownTimeout  time.Duration
	AllowedOrigins   []string // WebSocket origins; empty means dev defaults
	ActionsPerMinute int      // rate limit for remediation and export
	ExportDir        string
	HistoryLimit     int // cap for /api/v1/history
}

func (o *Options) withDefaults() {
	if o.Port <= 0 {
		o.Port = 8899
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 30 * time.Second
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 10 * time.Second
	}
	if o.ActionsPerMinute <= 0 {
		o.ActionsPerMinute = 10
	}
	if o.ExportDir == "" {
		o.ExportDir = "exports"
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 1000
	}
}

// Deps are the pipeline components the handlers call into.
type Deps struct {
	Store      db.Store
	Monitor    *monitor.Monitor
	Remediator *remedy.Remediator
	Exporter   *export.Exporter
	Audit      audit.Logger // may be nil
	Log        *zap.Logger
}

// Server is the HTTP and WebSocket front of the daemon.
type Server struct {
	opts    Options
	store   db.Store
	monitor *monitor.Monitor
	remedy  *remedy.Remediator
	export  *export.Exporter
	aud     audit.Logger
	log     *zap.Logger

	hub     *Hub
	limiter *middleware.RateLimiter

	httpServer *http.Server
	wg         sync.WaitGroup

	mu      sync.RWMutex
	running bool
}

// New assembles the server. The monitor should be started separately;
// its publisher is available via Publisher.
func New(deps Deps, opts Options) (*Server, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if deps.Monitor == nil {
		return nil, fmt.Errorf("monitor cannot be nil")
	}
	opts.withDefaults()
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Server{
		opts:    opts,
		store:   deps.Store,
		monitor: deps.Monitor,
		remedy:  deps.Remediator,
		export:  deps.Exporter,
		aud:     deps.Audit,
		log:     log,
		hub:     newHub(opts.AllowedOrigins, log),
		limiter: middleware.NewRateLimiter(opts.ActionsPerMinute),
	}, nil
}

// Publisher returns the sink the monitor should publish ticks to.
func (s *Server) Publisher() monitor.Publisher {
	return s.hub
}

// Addr is the host:port the server listens on.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	mux := http.NewServeMux()
	s.registerHandlers(mux)

	s.httpServer = &http.Server{
		Addr:         s.Addr(),
		Handler:      mux,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info("http server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop drains connections and shuts the server down.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	var err error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		err = s.httpServer.Shutdown(ctx)
	}
	s.hub.closeAll()
	s.limiter.Stop()
	s.wg.Wait()
	s.log.Info("http server stopped")
	return err
}

// IsRunning reports whether Start has been called without a matching Stop.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)

	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/history", s.handleHistory)
	mux.HandleFunc("/api/v1/prediction", s.handlePrediction)
	mux.HandleFunc("/api/v1/suggestions", s.handleSuggestions)
	mux.HandleFunc("/api/v1/db/stats", s.handleDBStats)

	// Mutating endpoints share one per-client budget.
	mux.HandleFunc("/api/v1/export", s.limiter.Middleware(s.handleExport))
	mux.HandleFunc("/api/v1/actions/kill", s.limiter.Middleware(s.handleKillProcess))
	mux.HandleFunc("/api/v1/actions/optimize", s.limiter.Middleware(s.handleOptimize))

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws/live", s.hub.handleLiveSocket)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.IsRunning() || s.store.Ping(r.Context()) != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
