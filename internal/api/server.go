// Package api exposes the engine over HTTP: monitor CRUD, manual sweeps,
// scheduler control, alert acknowledgement and a live event feed.
package api

import (
	"log/slog"
	"net/http"

	"github.com/argus-mon/argus/internal/alert"
	"github.com/argus-mon/argus/internal/checker"
	"github.com/argus-mon/argus/internal/config"
	"github.com/argus-mon/argus/internal/events"
	"github.com/argus-mon/argus/internal/executor"
	"github.com/argus-mon/argus/internal/httputil"
	"github.com/argus-mon/argus/internal/metrics"
	"github.com/argus-mon/argus/internal/scheduler"
	"github.com/argus-mon/argus/internal/storage"
)

type Server struct {
	cfg       *config.Config
	store     storage.Store
	registry  *checker.Registry
	executor  *executor.Executor
	scheduler *scheduler.Scheduler
	alerts    *alert.Manager
	bus       *events.Bus
	engine    *metrics.Collector
	logger    *slog.Logger
	handler   http.Handler
	limiter   *httputil.RateLimiter
	version   string
}

func NewServer(cfg *config.Config, store storage.Store, registry *checker.Registry, exec *executor.Executor, sched *scheduler.Scheduler, alerts *alert.Manager, bus *events.Bus, logger *slog.Logger, version string) *Server {
	s := &Server{
		cfg:       cfg,
		store:     store,
		registry:  registry,
		executor:  exec,
		scheduler: sched,
		alerts:    alerts,
		bus:       bus,
		engine:    metrics.NewCollector(),
		logger:    logger,
		limiter:   httputil.NewRateLimiter(cfg.Server.RateLimitPerSec, cfg.Server.RateLimitBurst),
		version:   version,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var handler http.Handler = mux
	handler = bodyLimit(cfg.Server.MaxBodySize)(handler)
	handler = s.limiter.Middleware(writeError)(handler)
	handler = cors(cfg.Server.CORSOrigins)(handler)
	handler = logging(logger)(handler)
	handler = requestID()(handler)
	handler = recovery(logger)(handler)

	s.handler = handler
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops background helpers owned by the server.
func (s *Server) Close() {
	s.limiter.Stop()
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("GET /api/monitors", s.handleListMonitors)
	mux.HandleFunc("POST /api/monitors", s.handleCreateMonitor)
	mux.HandleFunc("GET /api/monitors/execute", s.handleExecute)
	mux.HandleFunc("GET /api/monitors/{id}", s.handleGetMonitor)
	mux.HandleFunc("PUT /api/monitors/{id}", s.handleUpdateMonitor)
	mux.HandleFunc("DELETE /api/monitors/{id}", s.handleDeleteMonitor)
	mux.HandleFunc("GET /api/monitors/{id}/observations", s.handleListObservations)
	mux.HandleFunc("GET /api/monitors/{id}/alerts", s.handleListMonitorAlerts)

	mux.HandleFunc("GET /api/alerts", s.handleListAlerts)
	mux.HandleFunc("POST /api/alerts/{id}/acknowledge", s.handleAcknowledgeAlert)

	mux.HandleFunc("GET /api/scheduler/status", s.handleSchedulerStatus)
	mux.HandleFunc("POST /api/scheduler/start", s.handleSchedulerStart)
	mux.HandleFunc("POST /api/scheduler/stop", s.handleSchedulerStop)

	mux.HandleFunc("GET /api/events/ws", s.handleEventsWS)
}
