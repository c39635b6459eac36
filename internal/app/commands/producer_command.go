package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"detection-relay/internal/capture"
	"detection-relay/internal/client"
)

const statsInterval = 5 * time.Second

// GetProducerCommand возвращает команду продюсера: кадры из каталога,
// классификация через HTTP эндпоинт, отправка детекций и кадров в релей
func GetProducerCommand() *cli.Command {
	return &cli.Command{
		Name:  "producer",
		Usage: "Broadcast frames and detections to the relay",
		Description: `Replay images from a directory as a video source, classify them
and broadcast detections and frames to the relay.

Examples:
  detection-relay producer --source-dir ./frames --name Alice
  detection-relay producer --url ws://relay:5000/ws --classes person,dog`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Usage: "Relay websocket URL",
			},
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "Participant name, generated when empty",
			},
			&cli.StringFlag{
				Name:  "source-dir",
				Usage: "Directory with JPEG/PNG frames",
			},
			&cli.DurationFlag{
				Name:  "hold",
				Value: time.Second,
				Usage: "How long each image is shown",
			},
			&cli.StringFlag{
				Name:  "classifier-url",
				Usage: "Inference endpoint",
			},
			&cli.DurationFlag{
				Name:  "classifier-timeout",
				Value: 10 * time.Second,
				Usage: "Inference request timeout",
			},
			&cli.StringSliceFlag{
				Name:  "classes",
				Usage: "Object classes forwarded to the relay",
			},
			&cli.Float64Flag{
				Name:  "min-score",
				Usage: "Minimum prediction score",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, err := NewCommandContext(c)
			if err != nil {
				return err
			}
			defer ctx.Logger.Sync()

			p := ctx.Config.Producer
			if c.IsSet("url") {
				p.RelayURL = c.String("url")
			}
			if c.IsSet("name") {
				p.UserName = c.String("name")
			}
			if c.IsSet("source-dir") {
				p.SourceDir = c.String("source-dir")
			}
			if c.IsSet("classifier-url") {
				p.ClassifierURL = c.String("classifier-url")
			}
			if c.IsSet("classes") {
				p.FilterClasses = c.StringSlice("classes")
			}
			if c.IsSet("min-score") {
				p.MinScore = c.Float64("min-score")
			}
			if err := p.Validate(); err != nil {
				return err
			}
			if p.SourceDir == "" {
				return cli.Exit("--source-dir is required", 2)
			}

			source, err := capture.NewDirSource(p.SourceDir, c.Duration("hold"))
			if err != nil {
				return err
			}
			logger := ctx.Logger
			logger.Info("Video source loaded",
				zap.String("dir", p.SourceDir),
				zap.Int("frames", source.Len()))

			relay := client.New(client.ConfigFromProducer(p), logger.Named("client"), nil)
			scheduler := capture.NewScheduler(
				capture.ConfigFromProducer(p),
				source,
				capture.NewHTTPClassifier(p.ClassifierURL, c.Duration("classifier-timeout")),
				capture.NewLogOverlay(logger.Named("overlay")),
				relay,
				logger.Named("capture"),
			)

			runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runProducer(runCtx, relay, scheduler, logger)
		},
	}
}

// runProducer клиент живет дольше планировщика, чтобы stop-video-stream успел уйти
func runProducer(ctx context.Context, relay *client.Client, scheduler *capture.Scheduler, logger *zap.Logger) error {
	clientCtx, cancelClient := context.WithCancel(context.Background())
	defer cancelClient()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return relay.Run(clientCtx)
	})

	g.Go(func() error {
		defer cancelClient()

		if err := scheduler.LoadModel(gctx); err != nil {
			return err
		}
		if _, err := relay.WaitJoined(gctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer scheduler.Stop()

		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				st := scheduler.Stats()
				logger.Info("Broadcast stats",
					zap.Int64("detections_sent", st.DetectionsSent),
					zap.Int64("frames_sent", st.FramesSent),
					zap.Int("fps", st.CurrentFPS),
					zap.Int("last_result", len(st.LastResult)))
			}
		}
	})

	return g.Wait()
}
