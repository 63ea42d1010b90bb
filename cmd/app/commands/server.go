package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/allisson/topogate/internal/app"
	"github.com/allisson/topogate/internal/config"
)

// shutdownTimeout bounds the graceful shutdown of the servers.
const shutdownTimeout = 30 * time.Second

// server is one of the HTTP servers run by RunServer.
type server interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// RunServer starts the gateway services, the proxy runtime, the admin API and the
// optional metrics server. Blocks until SIGINT/SIGTERM or a server failure, then
// shuts every server down and stops the services.
func RunServer(ctx context.Context, version string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)
	logger := container.Logger()
	logger.Info("starting gateway", slog.String("version", version))

	defer closeContainer(container, logger)

	registry, err := container.Registry()
	if err != nil {
		return fmt.Errorf("failed to create service registry: %w", err)
	}
	if err := registry.Init(ctx, cfg.RegistryOptions()); err != nil {
		return err
	}
	if err := registry.Start(ctx); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	servers := map[string]server{}

	gatewayServer, err := container.GatewayServer()
	if err != nil {
		return fmt.Errorf("failed to initialize gateway server: %w", err)
	}
	servers["gateway"] = gatewayServer

	adminServer, err := container.AdminServer(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize admin server: %w", err)
	}
	servers["admin"] = adminServer

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}
	if metricsServer != nil {
		servers["metrics"] = metricsServer
	}

	return runServers(ctx, servers, logger)
}

// runServers starts every server and shuts them all down when ctx is done or
// any of them fails.
func runServers(ctx context.Context, servers map[string]server, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	for name, srv := range servers {
		g.Go(func() error {
			if err := srv.Start(gctx); err != nil {
				return fmt.Errorf("%s server error: %w", name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			logger.Info("shutdown signal received")
		} else {
			logger.Error("server error, initiating shutdown")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		var shutdownErrors []error
		for name, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				shutdownErrors = append(shutdownErrors, fmt.Errorf("%s server shutdown: %w", name, err))
			}
		}
		return errors.Join(shutdownErrors...)
	})

	return g.Wait()
}
