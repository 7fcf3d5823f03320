package command

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/go-zoox/cli"
	"github.com/go-zoox/gztun/client"
	"github.com/go-zoox/gztun/config"
	"github.com/go-zoox/gztun/idgen"
	"github.com/go-zoox/logger"
)

// RegisterClient wires the "client" subcommand: the private-network
// daemon that dials out to the server and relays to real targets.
func RegisterClient(app *cli.MultipleProgram) {
	app.Register("client", &cli.Command{
		Name:  "client",
		Usage: "run the gztun client daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Usage:    "the filepath for client configuration",
				Aliases:  []string{"c"},
				Required: true,
			},
			&cli.StringFlag{
				Name:  "auth",
				Usage: "clientKey advertised to the server; random if omitted",
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.LoadClient(ctx.String("config"))
			if err != nil {
				return err
			}

			clientKey := ctx.String("auth")
			if clientKey == "" {
				clientKey = idgen.NewClientKey()
			}

			logger.Info("connecting to %s as %s", cfg.Addr(), clientKey)

			runCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return client.New(cfg, clientKey).Run(runCtx)
		},
	})
}
