// Package service implements the DeploymentEngine: it compiles topologies into
// versioned artifact directories and keeps the active version of each topology.
package service

import (
	"context"
	"time"

	deployDomain "github.com/allisson/topogate/internal/deploy/domain"
	topologyDomain "github.com/allisson/topogate/internal/topology/domain"
)

// AliasResolver resolves alias references found in provider parameters.
type AliasResolver interface {
	GetTopologyAliasValue(ctx context.Context, topology, alias string) (string, error)
}

// Crypto protects secret parameters and signs manifests.
type Crypto interface {
	GenerateKey(ctx context.Context, alias string) error
	Encrypt(ctx context.Context, alias string, plaintext []byte) ([]byte, error)
	Sign(ctx context.Context, alias string, data []byte) ([]byte, error)
}

// Verifier checks manifest signatures.
type Verifier interface {
	Verify(ctx context.Context, alias string, data, signature []byte) (bool, error)
}

// TopologySource publishes topology events.
type TopologySource interface {
	Subscribe(listener topologyDomain.Listener) func()
}

// Deployer turns topologies into versions on disk. Calls for one topology name are
// never concurrent.
type Deployer interface {
	// Deploy compiles and writes a new version whose CreatedAt is after notBefore
	// and after every version already on disk.
	Deploy(ctx context.Context, topology *topologyDomain.Topology, notBefore time.Time) (*deployDomain.Version, error)

	// Undeploy removes every version of the topology.
	Undeploy(ctx context.Context, name string) error
}
