package commands

import (
	"fmt"
	"net"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"detection-relay/internal/grpc_client"
	"detection-relay/internal/grpc_server"
)

// GetHealthCheckCommand возвращает команду проверки здоровья релея по gRPC
func GetHealthCheckCommand() *cli.Command {
	return &cli.Command{
		Name:  "health-check",
		Usage: "Check relay health over gRPC",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "target",
				Usage: "gRPC address, defaults to localhost:<grpc_port>",
			},
			&cli.IntFlag{
				Name:  "retries",
				Value: 3,
				Usage: "Number of retries",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 2 * time.Second,
				Usage: "Per-request timeout",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer ctx.Logger.Sync()

			target := c.String("target")
			if target == "" {
				target = net.JoinHostPort("localhost", ctx.Config.GRPCPort)
			}

			retry := grpc_client.DefaultRetryConfig()
			retry.MaxRetries = c.Int("retries")
			retry.RequestTimeout = c.Duration("timeout")

			client, err := grpc_client.NewHealthClient(target, retry, ctx.Logger)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.CheckWithRetry(c.Context, grpc_server.ServiceName); err != nil {
				ctx.Logger.Error("Relay is not healthy", zap.String("target", target), zap.Error(err))
				return cli.Exit(fmt.Sprintf("unhealthy: %v", err), 1)
			}

			fmt.Fprintf(c.App.Writer, "%s: SERVING\n", target)
			return nil
		},
	}
}
