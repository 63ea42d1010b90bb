package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/topogate/internal/validation"
)

// Redeployer moves descriptor modification times forward.
type Redeployer interface {
	Redeploy(ctx context.Context, name string) error
}

// RunRedeploy touches the descriptor of name, or of every topology when name is
// empty, so a running gateway deploys a new version on its next poll.
func RunRedeploy(ctx context.Context, topologies Redeployer, logger *slog.Logger, out io.Writer, name string) error {
	if err := validation.Validate(name, customValidation.TopologyName); err != nil {
		return fmt.Errorf("invalid topology name: %w", err)
	}

	if err := topologies.Redeploy(ctx, name); err != nil {
		return fmt.Errorf("failed to redeploy: %w", err)
	}

	target := name
	if target == "" {
		target = "all topologies"
	}
	logger.Info("redeploy requested", slog.String("topology", target))
	_, err := fmt.Fprintf(out, "Redeploy requested for %s\n", target)
	return err
}
