package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/topogate/cmd/app/commands"
	"github.com/allisson/topogate/internal/app"
	"github.com/allisson/topogate/internal/config"
	deployService "github.com/allisson/topogate/internal/deploy/service"
	topologyService "github.com/allisson/topogate/internal/topology/service"
)

func getTopologyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "redeploy",
			Usage: "Touch topology descriptors so a running gateway redeploys them",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "name",
					Aliases: []string{"n"},
					Usage:   "Topology to redeploy (all topologies when omitted)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()
				logger := container.Logger()

				topologies := topologyService.NewTopologyService(logger)
				if err := topologies.Init(cfg.TopologyDir, cfg.TopologyPollInterval); err != nil {
					return err
				}
				if err := topologies.Start(ctx); err != nil {
					return err
				}
				defer func() { _ = topologies.Stop(ctx) }()

				return commands.RunRedeploy(ctx, topologies, logger, commands.DefaultIO().Writer, cmd.String("name"))
			},
		},
		{
			Name:  "list-deployments",
			Usage: "List the deployed versions in the deployment directory",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				store := deployService.NewArtifactStore(cfg.DeploymentDir, cfg.DeployIOMaxRetries, container.Logger())
				return commands.RunListDeployments(ctx, store, commands.DefaultIO().Writer, cmd.String("format"))
			},
		},
	}
}
