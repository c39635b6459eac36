package commands

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"detection-relay/internal/client"
	"detection-relay/internal/types"
	"detection-relay/pkg/proto"
)

// GetObserveCommand возвращает команду наблюдателя: подключается с ролью observer
// и пишет в лог события релея
func GetObserveCommand() *cli.Command {
	return &cli.Command{
		Name:  "observe",
		Usage: "Connect as an observer and log relay events",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Usage: "Relay websocket URL",
			},
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "Join the session under this name; observers stay anonymous when empty",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer ctx.Logger.Sync()

			p := ctx.Config.Producer
			cfg := client.Config{
				URL:                  p.RelayURL,
				Role:                 types.RoleObserver,
				UserName:             c.String("name"),
				AutoJoin:             c.IsSet("name"),
				MaxReconnectAttempts: p.MaxReconnectAttempts,
				ReconnectDelay:       p.ReconnectDelay,
				OutboundBuffer:       p.OutboundBuffer,
			}
			if c.IsSet("url") {
				cfg.URL = c.String("url")
			}

			logger := ctx.Logger.Named("observer")
			mirror := client.NewMirror(client.DefaultMirrorCapacity)
			relay := client.New(cfg, logger, observerLogger(logger, mirror))
			relay.OnConnect(func() {
				mirror.Reset()
				relay.RequestUsers()
			})

			runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return relay.Run(runCtx)
		},
	}
}

// observerLogger применяет события к зеркалу и пишет в лог изменения участников и плиток
func observerLogger(logger *zap.Logger, mirror *client.Mirror) client.EventHandler {
	return func(env proto.Envelope) {
		hadFrame := false
		if env.Event == proto.EventVideoFrame {
			var frame proto.VideoFrameMessage
			if err := json.Unmarshal(env.Data, &frame); err == nil {
				_, hadFrame = mirror.Frame(frame.UserID)
			}
		}
		if err := mirror.Apply(env); err != nil {
			logger.Warn("Malformed event", zap.String("event", env.Event), zap.Error(err))
			return
		}

		switch env.Event {
		case proto.EventVideoFrame:
			if !hadFrame {
				logTiles(logger, mirror)
			}
		case proto.EventUsersList, proto.EventUserJoined, proto.EventUserLeft, proto.EventStopVideoStream:
			logTiles(logger, mirror)
		case proto.EventNewDetection:
			if d := mirror.Detections(); len(d) > 0 {
				logger.Info("Detection",
					zap.String("user_name", d[0].UserName),
					zap.String("class", d[0].ObjectClass),
					zap.Int("recent", len(d)))
			}
		default:
			logger.Info("Event",
				zap.String("event", env.Event),
				zap.ByteString("data", env.Data))
		}
	}
}

func logTiles(logger *zap.Logger, mirror *client.Mirror) {
	var streaming, waiting []string
	for _, tile := range mirror.Tiles() {
		if tile.Waiting() {
			waiting = append(waiting, tile.UserName)
		} else {
			streaming = append(streaming, tile.UserName)
		}
	}
	logger.Info("Participants",
		zap.Strings("streaming", streaming),
		zap.Strings("waiting", waiting))
}
