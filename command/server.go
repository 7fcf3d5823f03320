package command

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/go-zoox/cli"
	"github.com/go-zoox/gztun/config"
	"github.com/go-zoox/gztun/server"
	"github.com/go-zoox/logger"
)

// RegisterServer wires the "server" subcommand: the publicly reachable
// daemon that accepts client control/data connections and external
// SOCKS5 users.
func RegisterServer(app *cli.MultipleProgram) {
	app.Register("server", &cli.Command{
		Name:  "server",
		Usage: "run the gztun server daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Usage:    "the filepath for server configuration",
				Aliases:  []string{"c"},
				Required: true,
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.LoadServer(ctx.String("config"))
			if err != nil {
				return err
			}

			logger.Info("server listening on %s, socks5 on %s", cfg.ListenAddr(), cfg.SocksAddr())

			runCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return server.New(cfg).Run(runCtx)
		},
	})
}
