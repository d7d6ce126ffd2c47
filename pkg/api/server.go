package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/cuemby/procpool/pkg/config"
	"github.com/cuemby/procpool/pkg/log"
	"github.com/cuemby/procpool/pkg/metrics"
	"github.com/cuemby/procpool/pkg/task"
)

// Server is the HTTP control plane of the daemon.
type Server struct {
	cfg      *config.Config
	registry *task.Registry
	engine   *gin.Engine
	http     *http.Server
	logger   zerolog.Logger
}

// NewServer wires the router, middleware, and routes. The route paths
// come from the runtime config, so a deployment can move the whole
// surface under a different prefix without touching code.
func NewServer(cfg *config.Config, registry *task.Registry) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(requestLogger(), gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	engine.Use(cors.New(corsConfig))

	s := &Server{
		cfg:      cfg,
		registry: registry,
		engine:   engine,
		logger:   log.WithComponent("api"),
	}
	s.routes()

	s.http = &http.Server{
		Addr:         cfg.Startup.Listen,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// routes registers the configured task routes plus the fixed
// operational ones.
func (s *Server) routes() {
	s.engine.GET("/", s.index)

	gets := map[string]gin.HandlerFunc{
		"tasks":            s.byState,
		"tasks_running":    s.running,
		"tasks_queued":     s.queued,
		"task":             s.get,
		"task_log":         s.taskLog,
		"help_statuses":    s.helpStatuses,
		"help_complete":    s.helpComplete,
		"help_in_progress": s.helpInProgress,
		"help_endpoints":   s.helpEndpoints,
		"config":           s.helpConfig,
	}
	posts := map[string]gin.HandlerFunc{
		"tasks_add":     s.submit,
		"tasks_query":   s.query,
		"tasks_update":  s.bulkUpdate,
		"task_update":   s.update,
		"task_interact": s.interact,
	}

	for name, handler := range gets {
		if route, ok := s.cfg.Endpoint(name); ok {
			s.engine.GET(route, handler)
		}
	}
	for name, handler := range posts {
		if route, ok := s.cfg.Endpoint(name); ok {
			s.engine.POST(route, handler)
		}
	}

	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	s.engine.GET("/healthz", gin.WrapF(metrics.HealthHandler()))
	s.engine.GET("/readyz", gin.WrapF(metrics.ReadyHandler()))
	s.engine.GET("/livez", gin.WrapF(metrics.LivenessHandler()))
}

// Start serves HTTP on the configured listen address and blocks until
// the listener fails or Stop is called.
func (s *Server) Start() error {
	s.logger.Info().Str("listen", s.http.Addr).Msg("control plane listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve HTTP API: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("stopping control plane")
	return s.http.Shutdown(ctx)
}

// Engine exposes the router for in-process tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
