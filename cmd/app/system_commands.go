package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/topogate/cmd/app/commands"
	"github.com/allisson/topogate/internal/app"
	"github.com/allisson/topogate/internal/config"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "server",
			Usage: "Start the gateway, the admin API and the metrics server",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunServer(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run keystore database migrations",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunMigrations(
					container.Logger(),
					cfg.KeystoreBackend,
					cfg.DBDriver,
					cfg.DBConnectionString,
				)
			},
		},
		{
			Name:  "create-master",
			Usage: "Create the master secret file, or print a KMS-encrypted master secret",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "master",
					Aliases: []string{"m"},
					Usage:   "Master secret (a random secret is generated when omitted)",
				},
				&cli.BoolFlag{
					Name:  "force",
					Usage: "Replace an existing master file",
				},
				&cli.StringFlag{
					Name:  "kms-key-uri",
					Usage: "Encrypt with this KMS key and print MASTER_SECRET_CIPHERTEXT instead of writing a file",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				if keyURI := cmd.String("kms-key-uri"); keyURI != "" {
					return commands.RunCreateKMSMaster(
						ctx,
						container.KMSService(),
						container.Logger(),
						commands.DefaultIO().Writer,
						keyURI,
						cmd.String("master"),
					)
				}

				return commands.RunCreateMaster(
					ctx,
					container.MasterFileStore(),
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("master"),
					cmd.Bool("force"),
				)
			},
		},
	}
}
