package service

import (
	"context"
	"time"

	deployDomain "github.com/allisson/topogate/internal/deploy/domain"
	"github.com/allisson/topogate/internal/metrics"
	topologyDomain "github.com/allisson/topogate/internal/topology/domain"
)

// deployerWithMetrics decorates Deployer with business metrics.
type deployerWithMetrics struct {
	next    Deployer
	metrics metrics.BusinessMetrics
}

// NewDeployerWithMetrics wraps a Deployer with metrics recording.
func NewDeployerWithMetrics(next Deployer, m metrics.BusinessMetrics) Deployer {
	return &deployerWithMetrics{next: next, metrics: m}
}

func (d *deployerWithMetrics) Deploy(
	ctx context.Context,
	topology *topologyDomain.Topology,
	notBefore time.Time,
) (*deployDomain.Version, error) {
	start := time.Now()
	version, err := d.next.Deploy(ctx, topology, notBefore)
	d.record(ctx, "deploy", start, err)
	return version, err
}

func (d *deployerWithMetrics) Undeploy(ctx context.Context, name string) error {
	start := time.Now()
	err := d.next.Undeploy(ctx, name)
	d.record(ctx, "undeploy", start, err)
	return err
}

func (d *deployerWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	d.metrics.RecordOperation(ctx, "deploy", operation, status)
	d.metrics.RecordDuration(ctx, "deploy", operation, time.Since(start), status)
}
