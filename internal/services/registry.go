// Package services composes the gateway services and runs their lifecycle in
// dependency order.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/allisson/topogate/internal/alias"
	cryptoDomain "github.com/allisson/topogate/internal/crypto/domain"
	cryptoService "github.com/allisson/topogate/internal/crypto/service"
	deployDomain "github.com/allisson/topogate/internal/deploy/domain"
	deployService "github.com/allisson/topogate/internal/deploy/service"
	"github.com/allisson/topogate/internal/errors"
	keystoreService "github.com/allisson/topogate/internal/keystore/service"
	"github.com/allisson/topogate/internal/master"
	"github.com/allisson/topogate/internal/metrics"
	topologyService "github.com/allisson/topogate/internal/topology/service"
)

// Well-known service names.
const (
	MasterServiceName     = "MasterService"
	KeystoreServiceName   = "KeystoreService"
	CryptoServiceName     = "CryptoService"
	AliasServiceName      = "AliasService"
	TopologyServiceName   = "TopologyService"
	DeploymentServiceName = "DeploymentService"
)

// Config holds registry settings.
type Config struct {
	TopologyDir      string
	DeploymentDir    string
	PollInterval     time.Duration
	DeployMaxRetries int
	Algorithm        cryptoDomain.Algorithm
	// SkipDeployment composes only the secret services, for offline tooling.
	SkipDeployment bool
}

// Dependencies are the externally constructed parts of the registry.
type Dependencies struct {
	Master             master.Service
	KeystoreRepository keystoreService.Repository
	// Metrics is optional.
	Metrics metrics.BusinessMetrics
	Logger  *slog.Logger
}

// lifecycle is one registered service.
type lifecycle struct {
	name    string
	service any
	init    func(ctx context.Context) error
	start   func(ctx context.Context) error
	stop    func(ctx context.Context) error
}

// Registry owns the gateway services. Fields are set by Init.
type Registry struct {
	Master   master.Service
	Keystore KeystoreService
	Crypto   CryptoService
	Alias    alias.Service
	Topology TopologyService
	Deployer DeploymentService

	cfg    Config
	deps   Dependencies
	logger *slog.Logger

	mu          sync.Mutex
	services    []lifecycle
	started     []lifecycle
	initialized bool
}

// NewRegistry creates a Registry. Nothing is constructed until Init.
func NewRegistry(cfg Config, deps Dependencies) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{cfg: cfg, deps: deps, logger: logger}
}

// Init constructs and initializes the services in dependency order:
// Master, Keystore, Crypto, Alias, Topology, Deployment. The first failure stops
// the sequence and is returned wrapped in ErrInitialization.
func (r *Registry) Init(ctx context.Context, options map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return nil
	}
	r.services = nil
	if r.deps.Master == nil || r.deps.KeystoreRepository == nil {
		return fmt.Errorf("%w: registry requires a master service and a keystore repository",
			errors.ErrInitialization)
	}

	r.Master = r.deps.Master
	r.register(lifecycle{
		name:    MasterServiceName,
		service: r.Master,
		init:    func(ctx context.Context) error { return r.Master.Init(ctx, options) },
		start:   r.Master.Start,
		stop:    r.Master.Stop,
	})

	aeadManager := cryptoService.NewAEADManager()
	keystore := keystoreService.NewKeystoreService(
		r.deps.KeystoreRepository,
		r.Master,
		aeadManager,
		r.cfg.Algorithm,
		r.logger,
	)
	r.Keystore = keystore
	r.register(lifecycle{
		name:    KeystoreServiceName,
		service: keystore,
		init:    keystore.Init,
		start:   keystore.Start,
		stop:    keystore.Stop,
	})

	crypto := cryptoService.NewCryptoService(keystore, aeadManager, r.cfg.Algorithm, r.logger)
	r.Crypto = crypto
	r.register(lifecycle{
		name:    CryptoServiceName,
		service: crypto,
		init:    crypto.Init,
		start:   crypto.Start,
		stop:    crypto.Stop,
	})

	aliases := alias.NewService(keystore, crypto, r.logger)
	if r.deps.Metrics != nil {
		aliases = alias.NewServiceWithMetrics(aliases, r.deps.Metrics)
	}
	r.Alias = aliases
	r.register(lifecycle{
		name:    AliasServiceName,
		service: aliases,
		init:    aliases.Init,
		start:   aliases.Start,
		stop:    aliases.Stop,
	})

	if !r.cfg.SkipDeployment {
		topologies := topologyService.NewTopologyService(r.logger)
		r.Topology = topologies
		r.register(lifecycle{
			name:    TopologyServiceName,
			service: topologies,
			init: func(context.Context) error {
				return topologies.Init(r.cfg.TopologyDir, r.cfg.PollInterval)
			},
			start: topologies.Start,
			stop:  topologies.Stop,
		})

		engine := deployService.NewEngine(
			deployService.Config{Dir: r.cfg.DeploymentDir, MaxRetries: r.cfg.DeployMaxRetries},
			aliases,
			crypto,
			r.deps.Metrics,
			r.logger,
		)
		r.Deployer = engine
		r.register(lifecycle{
			name:    DeploymentServiceName,
			service: engine,
			init:    func(ctx context.Context) error { return engine.Init(ctx, topologies) },
			start:   engine.Start,
			stop:    engine.Stop,
		})
	}

	for _, svc := range r.services {
		if err := svc.init(ctx); err != nil {
			r.logger.Error("service initialization failed",
				slog.String("service", svc.name),
				slog.Any("error", err),
			)
			return fmt.Errorf("%w: %s: %w", errors.ErrInitialization, svc.name, err)
		}
		r.logger.Debug("service initialized", slog.String("service", svc.name))
	}
	r.initialized = true
	return nil
}

// Start starts the services in Init order. Services that started are recorded so
// Stop only stops those.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return fmt.Errorf("%w: registry is not initialized", errors.ErrDependencyMissing)
	}

	for _, svc := range r.services {
		if r.isStarted(svc.name) {
			continue
		}
		if err := svc.start(ctx); err != nil {
			r.logger.Error("service start failed",
				slog.String("service", svc.name),
				slog.Any("error", err),
			)
			return fmt.Errorf("%w: %s: %w", errors.ErrInitialization, svc.name, err)
		}
		r.started = append(r.started, svc)
		r.logger.Info("service started", slog.String("service", svc.name))
	}
	return nil
}

// Stop stops started services in reverse start order. Every service is stopped
// even if one fails; the failures are joined.
func (r *Registry) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for i := len(r.started) - 1; i >= 0; i-- {
		svc := r.started[i]
		if err := svc.stop(ctx); err != nil {
			r.logger.Error("service stop failed",
				slog.String("service", svc.name),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", svc.name, err))
			continue
		}
		r.logger.Info("service stopped", slog.String("service", svc.name))
	}
	r.started = nil
	return errors.Join(errs...)
}

// Ready returns nil once every registered service has started.
func (r *Registry) Ready(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized || len(r.started) != len(r.services) {
		return fmt.Errorf("%w: %d of %d services started", errors.ErrUnavailable, len(r.started), len(r.services))
	}
	return nil
}

// GetService returns the service registered under name, or nil.
func (r *Registry) GetService(name string) any {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, svc := range r.services {
		if svc.name == name {
			return svc.service
		}
	}
	return nil
}

// ServiceNames returns the registered service names in dependency order.
func (r *Registry) ServiceNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.services))
	for _, svc := range r.services {
		names = append(names, svc.name)
	}
	return names
}

// RedeployTopologies redeploys one topology, or all when name is empty.
func (r *Registry) RedeployTopologies(ctx context.Context, name string) error {
	if r.Topology == nil {
		return fmt.Errorf("%w: topology service is not available", errors.ErrDependencyMissing)
	}
	return r.Topology.Redeploy(ctx, name)
}

// LookupActiveVersion returns the version currently serving a topology.
func (r *Registry) LookupActiveVersion(name string) (*deployDomain.Version, bool) {
	if r.Deployer == nil {
		return nil, false
	}
	return r.Deployer.Lookup(name)
}

func (r *Registry) register(svc lifecycle) {
	r.services = append(r.services, svc)
}

func (r *Registry) isStarted(name string) bool {
	for _, svc := range r.started {
		if svc.name == name {
			return true
		}
	}
	return false
}
