package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	deployDomain "github.com/allisson/topogate/internal/deploy/domain"
)

// DeploymentLister reads versions from the deployment directory.
type DeploymentLister interface {
	Topologies() ([]string, error)
	Versions(topology string) ([]*deployDomain.Version, error)
}

type deploymentRow struct {
	Topology  string    `json:"topology"`
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Checksum  string    `json:"checksum"`
	Latest    bool      `json:"latest"`
}

// RunListDeployments prints every version on disk. Latest marks the newest version
// of each topology, which a restarting gateway activates.
func RunListDeployments(ctx context.Context, deployments DeploymentLister, out io.Writer, format string) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	names, err := deployments.Topologies()
	if err != nil {
		return fmt.Errorf("failed to list deployments: %w", err)
	}

	rows := []deploymentRow{}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		versions, err := deployments.Versions(name)
		if err != nil {
			return fmt.Errorf("failed to list versions of %s: %w", name, err)
		}
		for i, v := range versions {
			rows = append(rows, deploymentRow{
				Topology:  v.Topology,
				Version:   v.ID(),
				CreatedAt: v.CreatedAt,
				Checksum:  v.Checksum,
				Latest:    i == len(versions)-1,
			})
		}
	}

	if format == "json" {
		return writeJSON(out, map[string]any{"deployments": rows})
	}
	if len(rows) == 0 {
		_, err = fmt.Fprintln(out, "No deployments found")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOPOLOGY\tVERSION\tCREATED\tLATEST")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", row.Topology, row.Version, row.CreatedAt.Format(time.RFC3339), row.Latest)
	}
	return w.Flush()
}
