package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"detection-relay/internal/app"
)

// GetServerCommand возвращает команду для запуска релея
func GetServerCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Start the relay server",
		Description: `Start the relay: websocket endpoint, HTTP snapshot API and gRPC health.

Examples:
  detection-relay server --port 5000
  detection-relay --config relay.yaml server --grpc-port 9091`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "HTTP port",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "HTTP host",
			},
			&cli.StringFlag{
				Name:  "grpc-port",
				Usage: "gRPC health port, empty string disables it",
			},
			&cli.BoolFlag{
				Name:  "notifications",
				Usage: "Initial state of detection notifications",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer ctx.Logger.Sync()

			cfg := ctx.Config
			if c.IsSet("port") {
				cfg.Port = c.Int("port")
			}
			if c.IsSet("host") {
				cfg.Host = c.String("host")
			}
			if c.IsSet("grpc-port") {
				cfg.GRPCPort = c.String("grpc-port")
			}
			if c.IsSet("notifications") {
				cfg.Notifications.Enabled = c.Bool("notifications")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx.Logger.Info("Starting detection relay",
				zap.String("address", cfg.Address()),
				zap.String("grpc_port", cfg.GRPCPort),
				zap.String("export", cfg.Export.Type),
				zap.Bool("notifications", cfg.Notifications.Enabled))

			application, err := app.NewApplicationWithConfig(cfg, ctx.Logger)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return application.Run(runCtx)
		},
	}
}
