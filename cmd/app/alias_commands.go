package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/allisson/topogate/cmd/app/commands"
	"github.com/allisson/topogate/internal/app"
	"github.com/allisson/topogate/internal/config"
)

func getAliasCommands() *cli.Command {
	nameFlag := &cli.StringFlag{
		Name:     "name",
		Aliases:  []string{"n"},
		Required: true,
		Usage:    "Alias name",
	}
	topologyFlag := &cli.StringFlag{
		Name:    "topology",
		Aliases: []string{"t"},
		Usage:   "Scope the alias to a topology",
	}

	return &cli.Command{
		Name:  "alias",
		Usage: "Manage credential aliases in the gateway keystore",
		Commands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Store a value under an alias",
				Flags: []cli.Flag{
					nameFlag,
					topologyFlag,
					&cli.StringFlag{
						Name:     "value",
						Aliases:  []string{"v"},
						Required: true,
						Usage:    "Alias value",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withAliases(ctx, func(container *app.Container, aliases commands.AliasStore) error {
						return commands.RunAliasSet(
							ctx,
							aliases,
							container.Logger(),
							commands.DefaultIO().Writer,
							cmd.String("name"),
							cmd.String("topology"),
							cmd.String("value"),
						)
					})
				},
			},
			{
				Name:  "get",
				Usage: "Print the value of an alias",
				Flags: []cli.Flag{nameFlag, topologyFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withAliases(ctx, func(container *app.Container, aliases commands.AliasStore) error {
						return commands.RunAliasGet(
							ctx,
							aliases,
							commands.DefaultIO().Writer,
							cmd.String("name"),
							cmd.String("topology"),
						)
					})
				},
			},
			{
				Name:  "list",
				Usage: "List alias names",
				Flags: []cli.Flag{formatFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withAliases(ctx, func(container *app.Container, aliases commands.AliasStore) error {
						return commands.RunAliasList(ctx, aliases, commands.DefaultIO().Writer, cmd.String("format"))
					})
				},
			},
			{
				Name:  "remove",
				Usage: "Remove an alias",
				Flags: []cli.Flag{nameFlag, topologyFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withAliases(ctx, func(container *app.Container, aliases commands.AliasStore) error {
						return commands.RunAliasRemove(
							ctx,
							aliases,
							container.Logger(),
							commands.DefaultIO().Writer,
							cmd.String("name"),
							cmd.String("topology"),
						)
					})
				},
			},
		},
	}
}

// withAliases starts a registry without the topology watcher and the deployment
// engine, runs fn against its AliasService and stops it again.
func withAliases(ctx context.Context, fn func(container *app.Container, aliases commands.AliasStore) error) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	container := app.NewContainer(cfg, app.WithoutDeployment())
	defer func() { _ = container.Shutdown(ctx) }()

	registry, err := container.Registry()
	if err != nil {
		return err
	}
	if err := registry.Init(ctx, cfg.RegistryOptions()); err != nil {
		return err
	}
	if err := registry.Start(ctx); err != nil {
		return err
	}
	return fn(container, registry.Alias)
}
