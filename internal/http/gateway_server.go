package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/topogate/internal/gateway"
)

// GatewayServer serves proxied requests under /<gatewayPath>/<topology>/...
type GatewayServer struct {
	server *http.Server
	logger *slog.Logger
}

// NewGatewayServer creates the proxy runtime server.
func NewGatewayServer(
	host string,
	port int,
	gatewayPath string,
	handler *gateway.Handler,
	logger *slog.Logger,
) *GatewayServer {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(logger))

	prefix := "/" + strings.Trim(gatewayPath, "/")
	router.Any(prefix+"/:topology/*path", handler.ProxyHandler)

	return &GatewayServer{
		server: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// GetHandler returns the http.Handler for testing purposes.
func (s *GatewayServer) GetHandler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *GatewayServer) Start(ctx context.Context) error {
	return listenAndServe(s.server, "gateway", s.logger)
}

// Shutdown gracefully shuts down the server.
func (s *GatewayServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down gateway server")
	return s.server.Shutdown(ctx)
}
