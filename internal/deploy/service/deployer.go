package service

import (
	"context"
	"log/slog"
	"time"

	deployDomain "github.com/allisson/topogate/internal/deploy/domain"
	topologyDomain "github.com/allisson/topogate/internal/topology/domain"
)

// artifactDeployer is the Deployer backed by a Compiler and an ArtifactStore.
type artifactDeployer struct {
	compiler *Compiler
	store    *ArtifactStore
	logger   *slog.Logger
}

// NewDeployer creates the default Deployer.
func NewDeployer(compiler *Compiler, store *ArtifactStore, logger *slog.Logger) Deployer {
	return &artifactDeployer{compiler: compiler, store: store, logger: logger}
}

func (d *artifactDeployer) Deploy(
	ctx context.Context,
	topology *topologyDomain.Topology,
	notBefore time.Time,
) (*deployDomain.Version, error) {
	artifacts, err := d.compiler.Compile(ctx, topology)
	if err != nil {
		return nil, err
	}

	// Versions left by a previous process bound createdAt as well.
	if existing, err := d.store.Versions(topology.Name); err != nil {
		d.logger.Warn("failed to list existing versions",
			slog.String("topology", topology.Name),
			slog.Any("error", err),
		)
	} else if n := len(existing); n > 0 && existing[n-1].CreatedAt.After(notBefore) {
		notBefore = existing[n-1].CreatedAt
	}

	token, err := NewToken()
	if err != nil {
		return nil, err
	}
	createdAt := time.Now().UTC()
	if !createdAt.After(notBefore) {
		createdAt = notBefore.Add(time.Nanosecond).UTC()
	}

	version := &deployDomain.Version{
		Topology:  topology.Name,
		Token:     token,
		CreatedAt: createdAt,
		Checksum:  topology.Checksum,
	}
	manifest := &deployDomain.Manifest{
		Version:            version.ID(),
		Topology:           topology.Name,
		CreatedAt:          createdAt,
		DescriptorChecksum: topology.Checksum,
	}
	if err := d.compiler.Seal(ctx, artifacts, manifest); err != nil {
		return nil, err
	}

	if err := d.store.Write(ctx, version, artifacts); err != nil {
		return nil, err
	}
	return version, nil
}

func (d *artifactDeployer) Undeploy(ctx context.Context, name string) error {
	return d.store.Remove(ctx, name)
}
