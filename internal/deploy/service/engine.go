package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	deployDomain "github.com/allisson/topogate/internal/deploy/domain"
	"github.com/allisson/topogate/internal/errors"
	"github.com/allisson/topogate/internal/metrics"
	topologyDomain "github.com/allisson/topogate/internal/topology/domain"
)

// Config holds DeploymentEngine settings.
type Config struct {
	Dir        string
	MaxRetries int
}

// entry is the per-topology state. At most one worker runs per entry; events that
// arrive while it runs collapse into pending (latest wins) and removal.
type entry struct {
	state       deployDomain.State
	lastErr     error
	updatedAt   time.Time
	lastCreated time.Time
	// generation increments on removal so an in-flight deploy cannot publish
	// into a topology that has since been removed.
	generation uint64
	pending    *topologyDomain.Event
	removal    bool
	running    bool
}

// Engine is the DeploymentEngine.
type Engine struct {
	cfg     Config
	aliases AliasResolver
	crypto  Crypto
	metrics metrics.BusinessMetrics
	logger  *slog.Logger

	store    *ArtifactStore
	deployer Deployer
	active   *activeMap

	mu          sync.Mutex
	entries     map[string]*entry
	initialized bool
	started     bool
	stopped     bool
	runCtx      context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
}

// NewEngine creates a DeploymentEngine. businessMetrics may be nil.
func NewEngine(
	cfg Config,
	aliases AliasResolver,
	crypto Crypto,
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		cfg:     cfg,
		aliases: aliases,
		crypto:  crypto,
		metrics: businessMetrics,
		logger:  logger,
		active:  newActiveMap(),
		entries: make(map[string]*entry),
	}
}

// Init prepares the deployment directory and subscribes to topology events. Events
// received before Start are held until Start.
func (e *Engine) Init(ctx context.Context, source TopologySource) error {
	if e.aliases == nil || e.crypto == nil || source == nil {
		return errors.Wrap(errors.ErrDependencyMissing, "deployment engine requires alias, crypto and topology services")
	}
	if e.cfg.Dir == "" {
		return errors.Wrap(errors.ErrInvalidInput, "deployment directory is required")
	}

	store := NewArtifactStore(e.cfg.Dir, e.cfg.MaxRetries, e.logger)
	if err := store.Prepare(); err != nil {
		return err
	}

	var deployer Deployer = NewDeployer(NewCompiler(e.aliases, e.crypto), store, e.logger)
	if e.metrics != nil {
		deployer = NewDeployerWithMetrics(deployer, e.metrics)
	}

	e.mu.Lock()
	e.store = store
	e.deployer = deployer
	e.initialized = true
	e.mu.Unlock()

	unsubscribe := source.Subscribe(e)

	e.mu.Lock()
	e.unsubscribe = unsubscribe
	e.mu.Unlock()
	return nil
}

// Start creates the deployment key and begins processing events.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	initialized, started := e.initialized, e.started
	e.mu.Unlock()

	if !initialized {
		return errors.Wrap(errors.ErrDependencyMissing, "deployment engine is not initialized")
	}
	if started {
		return nil
	}

	if err := e.crypto.GenerateKey(ctx, deployDomain.KeyAlias); err != nil {
		return errors.Wrapf(err, "create deployment key")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.runCtx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	e.started = true
	for name, ent := range e.entries {
		e.schedule(name, ent)
	}

	e.logger.Info("deployment engine started", slog.String("dir", e.cfg.Dir))
	return nil
}

// Stop unsubscribes, cancels in-flight work and waits for workers. Removals that
// were still queued are completed before returning.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	unsubscribe, cancel := e.unsubscribe, e.cancel
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	e.mu.Lock()
	var removals []string
	for name, ent := range e.entries {
		if ent.removal {
			ent.removal = false
			removals = append(removals, name)
		}
	}
	deployer := e.deployer
	e.mu.Unlock()

	if deployer == nil {
		return nil
	}
	for _, name := range removals {
		if err := deployer.Undeploy(ctx, name); err != nil {
			e.logger.Error("failed to remove deployment", slog.String("topology", name), slog.Any("error", err))
		}
	}

	e.logger.Info("deployment engine stopped")
	return nil
}

// HandleTopologyEvent queues work for a topology event.
func (e *Engine) HandleTopologyEvent(event topologyDomain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}

	ent := e.entries[event.Name]
	if ent == nil {
		ent = &entry{state: deployDomain.Undeployed}
		e.entries[event.Name] = ent
	}

	now := time.Now()
	switch event.Kind {
	case topologyDomain.Added, topologyDomain.Updated:
		if event.Topology == nil {
			return
		}
		ev := event
		ent.pending = &ev
	case topologyDomain.Removed:
		ent.generation++
		ent.pending = nil
		ent.removal = true
		e.active.remove(event.Name)
		ent.state = deployDomain.Undeployed
		ent.lastErr = nil
		ent.updatedAt = now
		e.logger.Info("topology undeployed", slog.String("topology", event.Name))
	case topologyDomain.Error:
		ent.lastErr = event.Err
		ent.updatedAt = now
		if _, ok := e.active.lookup(event.Name); !ok && !ent.running {
			ent.state = deployDomain.Failed
		}
		return
	default:
		return
	}

	e.schedule(event.Name, ent)
}

// schedule starts a worker for the entry unless one is running. The caller holds mu.
func (e *Engine) schedule(name string, ent *entry) {
	if !e.started || e.stopped || ent.running {
		return
	}
	if ent.pending == nil && !ent.removal {
		return
	}
	ent.running = true
	e.wg.Add(1)
	go e.run(name, ent)
}

func (e *Engine) run(name string, ent *entry) {
	defer e.wg.Done()

	for {
		e.mu.Lock()
		if e.runCtx.Err() != nil {
			ent.running = false
			e.mu.Unlock()
			return
		}

		if ent.removal {
			ent.removal = false
			e.mu.Unlock()

			if err := e.deployer.Undeploy(e.runCtx, name); err != nil {
				e.logger.Error("failed to remove deployment", slog.String("topology", name), slog.Any("error", err))
				if e.runCtx.Err() != nil {
					e.mu.Lock()
					ent.removal = true
					e.mu.Unlock()
				}
			}
			continue
		}

		if ent.pending == nil {
			ent.running = false
			e.mu.Unlock()
			return
		}

		event := ent.pending
		ent.pending = nil
		generation := ent.generation
		notBefore := ent.lastCreated
		ent.state = deployDomain.Deploying
		ent.updatedAt = time.Now()
		e.mu.Unlock()

		version, err := e.deploy(event, notBefore)

		e.mu.Lock()
		if generation != ent.generation {
			if version != nil {
				ent.removal = true
			}
			e.mu.Unlock()
			continue
		}

		ent.updatedAt = time.Now()
		if err != nil {
			ent.state = deployDomain.Failed
			ent.lastErr = err
			e.logger.Error("topology deployment failed",
				slog.String("topology", name),
				slog.Any("error", err),
			)
		} else {
			ent.state = deployDomain.Active
			ent.lastErr = nil
			ent.lastCreated = version.CreatedAt
			e.active.publish(version)
			e.logger.Info("topology deployed",
				slog.String("topology", name),
				slog.String("version", version.ID()),
			)
		}
		e.mu.Unlock()
	}
}

// deploy compiles the event's topology into a new version. Added events compile
// too, so alias values always reflect the keystore at deploy time.
func (e *Engine) deploy(event *topologyDomain.Event, notBefore time.Time) (*deployDomain.Version, error) {
	return e.deployer.Deploy(e.runCtx, event.Topology, notBefore)
}

// Lookup returns the active version of a topology without blocking.
func (e *Engine) Lookup(name string) (*deployDomain.Version, bool) {
	return e.active.lookup(name)
}

// ActiveVersions returns a snapshot of all active versions.
func (e *Engine) ActiveVersions() map[string]*deployDomain.Version {
	return e.active.all()
}

// Status returns the deployment status of a topology.
func (e *Engine) Status(name string) (deployDomain.Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.entries[name]
	if !ok {
		return deployDomain.Status{}, errors.Wrapf(deployDomain.ErrDeploymentNotFound, "%s", name)
	}
	return e.status(name, ent), nil
}

// Statuses returns the status of every topology the engine has seen, sorted by name.
func (e *Engine) Statuses() []deployDomain.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]deployDomain.Status, 0, len(e.entries))
	for name, ent := range e.entries {
		out = append(out, e.status(name, ent))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Versions lists the on-disk versions of a topology, oldest first.
func (e *Engine) Versions(name string) ([]*deployDomain.Version, error) {
	e.mu.Lock()
	store := e.store
	e.mu.Unlock()

	if store == nil {
		return nil, errors.Wrap(errors.ErrDependencyMissing, "deployment engine is not initialized")
	}
	return store.Versions(name)
}

func (e *Engine) status(name string, ent *entry) deployDomain.Status {
	status := deployDomain.Status{
		Name:      name,
		State:     ent.state,
		Pending:   ent.running || ent.pending != nil || ent.removal,
		UpdatedAt: ent.updatedAt,
	}
	if v, ok := e.active.lookup(name); ok {
		status.Active = v
	}
	if ent.lastErr != nil {
		status.LastError = ent.lastErr.Error()
	}
	return status
}
