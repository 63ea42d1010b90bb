package app

import (
	"context"
	"fmt"

	aliasHTTP "github.com/allisson/topogate/internal/alias/http"
	"github.com/allisson/topogate/internal/config"
	"github.com/allisson/topogate/internal/gateway"
	apphttp "github.com/allisson/topogate/internal/http"
	topologyHTTP "github.com/allisson/topogate/internal/topology/http"
)

// TopologyHandler returns the admin handler for topologies. The registry must be initialized.
func (c *Container) TopologyHandler() (*topologyHTTP.TopologyHandler, error) {
	var err error
	c.topologyHandlerInit.Do(func() {
		c.topologyHandler, err = c.initTopologyHandler()
		if err != nil {
			c.storeError("topologyHandler", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.loadError("topologyHandler"); storedErr != nil {
		return nil, storedErr
	}
	return c.topologyHandler, nil
}

// AliasHandler returns the admin handler for aliases. The registry must be initialized.
func (c *Container) AliasHandler() (*aliasHTTP.AliasHandler, error) {
	var err error
	c.aliasHandlerInit.Do(func() {
		c.aliasHandler, err = c.initAliasHandler()
		if err != nil {
			c.storeError("aliasHandler", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.loadError("aliasHandler"); storedErr != nil {
		return nil, storedErr
	}
	return c.aliasHandler, nil
}

// GatewayHandler returns the proxy handler. The registry must be initialized.
func (c *Container) GatewayHandler() (*gateway.Handler, error) {
	var err error
	c.gatewayHandlerInit.Do(func() {
		c.gatewayHandler, err = c.initGatewayHandler()
		if err != nil {
			c.storeError("gatewayHandler", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.loadError("gatewayHandler"); storedErr != nil {
		return nil, storedErr
	}
	return c.gatewayHandler, nil
}

// AdminServer returns the admin API server with its routes registered.
func (c *Container) AdminServer(ctx context.Context) (*apphttp.Server, error) {
	var err error
	c.adminServerInit.Do(func() {
		c.adminServer, err = c.initAdminServer(ctx)
		if err != nil {
			c.storeError("adminServer", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.loadError("adminServer"); storedErr != nil {
		return nil, storedErr
	}
	return c.adminServer, nil
}

// GatewayServer returns the proxy runtime server.
func (c *Container) GatewayServer() (*apphttp.GatewayServer, error) {
	var err error
	c.gatewayServerInit.Do(func() {
		c.gatewayServer, err = c.initGatewayServer()
		if err != nil {
			c.storeError("gatewayServer", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.loadError("gatewayServer"); storedErr != nil {
		return nil, storedErr
	}
	return c.gatewayServer, nil
}

// MetricsServer returns the Prometheus metrics server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*apphttp.MetricsServer, error) {
	var err error
	c.metricsServerInit.Do(func() {
		c.metricsServer, err = c.initMetricsServer()
		if err != nil {
			c.storeError("metricsServer", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.loadError("metricsServer"); storedErr != nil {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// HealthChecks returns the readiness checks served by /ready.
func (c *Container) HealthChecks() (map[string]apphttp.HealthCheck, error) {
	registry, err := c.Registry()
	if err != nil {
		return nil, err
	}
	checks := map[string]apphttp.HealthCheck{
		"services": registry.Ready,
	}
	if c.config.KeystoreBackend != config.KeystoreBackendFile {
		db, err := c.DB()
		if err != nil {
			return nil, err
		}
		checks["database"] = db.PingContext
	}
	return checks, nil
}

func (c *Container) initTopologyHandler() (*topologyHTTP.TopologyHandler, error) {
	registry, err := c.Registry()
	if err != nil {
		return nil, err
	}
	if registry.Topology == nil || registry.Deployer == nil {
		return nil, fmt.Errorf("topology handler requires an initialized registry with deployment")
	}
	return topologyHTTP.NewTopologyHandler(registry.Topology, registry.Deployer, c.Logger()), nil
}

func (c *Container) initAliasHandler() (*aliasHTTP.AliasHandler, error) {
	registry, err := c.Registry()
	if err != nil {
		return nil, err
	}
	if registry.Alias == nil {
		return nil, fmt.Errorf("alias handler requires an initialized registry")
	}
	return aliasHTTP.NewAliasHandler(registry.Alias, c.Logger()), nil
}

func (c *Container) initGatewayHandler() (*gateway.Handler, error) {
	registry, err := c.Registry()
	if err != nil {
		return nil, err
	}
	if registry.Crypto == nil {
		return nil, fmt.Errorf("gateway handler requires an initialized registry")
	}
	return gateway.NewHandler(registry, registry.Crypto, c.Logger()), nil
}

func (c *Container) initAdminServer(ctx context.Context) (*apphttp.Server, error) {
	checks, err := c.HealthChecks()
	if err != nil {
		return nil, fmt.Errorf("failed to get health checks for admin server: %w", err)
	}
	topologyHandler, err := c.TopologyHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get topology handler for admin server: %w", err)
	}
	aliasHandler, err := c.AliasHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get alias handler for admin server: %w", err)
	}
	metricsProvider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for admin server: %w", err)
	}

	server := apphttp.NewServer(checks, c.config.AdminHost, c.config.AdminPort, c.Logger())
	server.SetupRouter(ctx, apphttp.RouterConfig{
		RateLimitEnabled:        c.config.RateLimitEnabled,
		RateLimitRequestsPerSec: c.config.RateLimitRequestsPerSec,
		RateLimitBurst:          c.config.RateLimitBurst,
		CORSEnabled:             c.config.CORSEnabled,
		CORSAllowOrigins:        c.config.CORSAllowOrigins,
		MetricsNamespace:        c.config.MetricsNamespace,
	}, topologyHandler, aliasHandler, metricsProvider)
	return server, nil
}

func (c *Container) initGatewayServer() (*apphttp.GatewayServer, error) {
	handler, err := c.GatewayHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get gateway handler for gateway server: %w", err)
	}
	return apphttp.NewGatewayServer(
		c.config.ServerHost,
		c.config.ServerPort,
		c.config.GatewayPath,
		handler,
		c.Logger(),
	), nil
}

func (c *Container) initMetricsServer() (*apphttp.MetricsServer, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, nil
	}
	return apphttp.NewMetricsServer(c.config.AdminHost, c.config.MetricsPort, c.Logger(), provider), nil
}
