// Package http provides the admin API server, the gateway server and the metrics
// server together with their gin middleware.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	aliasHTTP "github.com/allisson/topogate/internal/alias/http"
	"github.com/allisson/topogate/internal/metrics"
	topologyHTTP "github.com/allisson/topogate/internal/topology/http"
)

// HealthCheck reports whether one component is ready to serve.
type HealthCheck func(ctx context.Context) error

// RouterConfig holds the admin API middleware settings.
type RouterConfig struct {
	RateLimitEnabled        bool
	RateLimitRequestsPerSec float64
	RateLimitBurst          int
	CORSEnabled             bool
	CORSAllowOrigins        string
	MetricsNamespace        string
}

// Server is the admin API server.
type Server struct {
	server *http.Server
	router *gin.Engine
	checks map[string]HealthCheck
	logger *slog.Logger
}

// NewServer creates the admin API server. checks are run by /ready.
func NewServer(
	checks map[string]HealthCheck,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
	return &Server{
		checks: checks,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// SetupRouter registers the admin routes. ctx bounds the rate limiter's cleanup
// goroutine. metricsProvider may be nil.
func (s *Server) SetupRouter(
	ctx context.Context,
	cfg RouterConfig,
	topologyHandler *topologyHTTP.TopologyHandler,
	aliasHandler *aliasHTTP.AliasHandler,
	metricsProvider *metrics.Provider,
) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if cors := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); cors != nil {
		router.Use(cors)
	}
	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), cfg.MetricsNamespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")
	if cfg.RateLimitEnabled {
		v1.Use(RateLimitMiddleware(ctx, cfg.RateLimitRequestsPerSec, cfg.RateLimitBurst, s.logger))
	}

	topologies := v1.Group("/topologies")
	{
		topologies.GET("", topologyHandler.ListHandler)
		topologies.POST("/redeploy", topologyHandler.RedeployAllHandler)
		topologies.GET("/:name", topologyHandler.GetHandler)
		topologies.GET("/:name/versions", topologyHandler.VersionsHandler)
		topologies.POST("/:name/redeploy", topologyHandler.RedeployHandler)
	}

	aliases := v1.Group("/aliases")
	{
		aliases.GET("", aliasHandler.ListHandler)
		aliases.PUT("/:name", aliasHandler.SetHandler)
		aliases.DELETE("/:name", aliasHandler.DeleteHandler)
	}

	s.router = router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		return fmt.Errorf("admin server router is not set up")
	}
	s.server.Handler = s.router
	return listenAndServe(s.server, "admin", s.logger)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down admin server")
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ready := true
	components := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			s.logger.Warn("readiness check failed", slog.String("component", name), slog.Any("error", err))
			components[name] = "error"
			ready = false
			continue
		}
		components[name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}

func listenAndServe(server *http.Server, name string, logger *slog.Logger) error {
	logger.Info("starting "+name+" server", slog.String("addr", server.Addr))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start %s server: %w", name, err)
	}
	return nil
}
