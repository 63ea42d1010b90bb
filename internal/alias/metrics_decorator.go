package alias

import (
	"context"
	"time"

	"github.com/allisson/topogate/internal/metrics"
)

// serviceWithMetrics decorates Service with business metrics for alias operations.
type serviceWithMetrics struct {
	Service
	metrics metrics.BusinessMetrics
}

// NewServiceWithMetrics wraps an AliasService with metrics recording.
// Lifecycle methods pass through unrecorded.
func NewServiceWithMetrics(next Service, m metrics.BusinessMetrics) Service {
	return &serviceWithMetrics{Service: next, metrics: m}
}

func (s *serviceWithMetrics) GetAliasValue(ctx context.Context, alias string) (string, error) {
	start := time.Now()
	value, err := s.Service.GetAliasValue(ctx, alias)
	s.record(ctx, "alias_get", start, err)
	return value, err
}

func (s *serviceWithMetrics) GetTopologyAliasValue(ctx context.Context, topology, alias string) (string, error) {
	start := time.Now()
	value, err := s.Service.GetTopologyAliasValue(ctx, topology, alias)
	s.record(ctx, "alias_resolve", start, err)
	return value, err
}

func (s *serviceWithMetrics) SetAlias(ctx context.Context, alias, value string) error {
	start := time.Now()
	err := s.Service.SetAlias(ctx, alias, value)
	s.record(ctx, "alias_set", start, err)
	return err
}

func (s *serviceWithMetrics) RemoveAlias(ctx context.Context, alias string) error {
	start := time.Now()
	err := s.Service.RemoveAlias(ctx, alias)
	s.record(ctx, "alias_remove", start, err)
	return err
}

func (s *serviceWithMetrics) ListAliases(ctx context.Context) ([]string, error) {
	start := time.Now()
	aliases, err := s.Service.ListAliases(ctx)
	s.record(ctx, "alias_list", start, err)
	return aliases, err
}

func (s *serviceWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordOperation(ctx, "alias", operation, status)
	s.metrics.RecordDuration(ctx, "alias", operation, time.Since(start), status)
}
