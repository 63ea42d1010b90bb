package services

import (
	"context"
	"time"

	cryptoService "github.com/allisson/topogate/internal/crypto/service"
	deployDomain "github.com/allisson/topogate/internal/deploy/domain"
	deployService "github.com/allisson/topogate/internal/deploy/service"
	topologyDomain "github.com/allisson/topogate/internal/topology/domain"
)

// KeystoreService is the contract of the keystore component.
type KeystoreService interface {
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	CreateKeystore(ctx context.Context, store string) error
	GetEntry(ctx context.Context, store, alias string) ([]byte, error)
	SetEntry(ctx context.Context, store, alias string, value []byte) error
	DeleteEntry(ctx context.Context, store, alias string) error
	ListAliases(ctx context.Context, store string) ([]string, error)
}

// CryptoService is the contract of the crypto component.
type CryptoService interface {
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	cryptoService.Crypto
}

// TopologyService is the contract of the topology watcher.
type TopologyService interface {
	Init(dir string, interval time.Duration) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	Subscribe(listener topologyDomain.Listener) func()
	Topologies() []*topologyDomain.Topology
	Topology(name string) (*topologyDomain.Topology, error)
	Redeploy(ctx context.Context, name string) error
}

// DeploymentService is the contract of the deployment engine.
type DeploymentService interface {
	Init(ctx context.Context, source deployService.TopologySource) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	Lookup(name string) (*deployDomain.Version, bool)
	ActiveVersions() map[string]*deployDomain.Version
	Status(name string) (deployDomain.Status, error)
	Statuses() []deployDomain.Status
	Versions(name string) ([]*deployDomain.Version, error)
}
