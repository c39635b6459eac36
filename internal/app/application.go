package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"detection-relay/internal/bus"
	"detection-relay/internal/config"
	"detection-relay/internal/gateway"
	"detection-relay/internal/grpc_server"
	"detection-relay/internal/handler"
	"detection-relay/internal/notify"
)

const shutdownTimeout = 10 * time.Second

// Application - основное приложение
type Application struct {
	config       *config.Config
	logger       *zap.Logger
	router       http.Handler
	server       *http.Server
	grpcServer   *grpc_server.HealthServer
	gateway      *gateway.Gateway
	exporter     *bus.Exporter
	notifier     notify.Sink
	relayHandler *handler.RelayHandler
}

// NewApplicationWithConfig создает новое приложение с конфигурацией
func NewApplicationWithConfig(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	// Экспорт событий
	var exporter *bus.Exporter
	if cfg.Export.Type != "" && cfg.Export.Type != config.ExportNone {
		publisher, err := bus.NewPublisher(cfg.Export)
		if err != nil {
			return nil, fmt.Errorf("create %s exporter: %w", cfg.Export.Type, err)
		}
		exporter = bus.NewExporter(publisher, cfg.Export.QueueSize, logger.Named("export"))
	}

	notifier := notify.NewSink(cfg.Notifications, logger.Named("notify"))

	gw := gateway.NewGateway(cfg, logger.Named("gateway"),
		gateway.WithExporter(exporter),
		gateway.WithNotifier(notifier))

	relayHandler := handler.NewRelayHandler(logger, gw)
	router := NewRouter(cfg, gw, relayHandler, logger)

	// Настраиваем HTTP сервер
	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Application{
		config:       cfg,
		logger:       logger,
		router:       router,
		server:       server,
		grpcServer:   grpc_server.NewHealthServer(logger.Named("grpc")),
		gateway:      gw,
		exporter:     exporter,
		notifier:     notifier,
		relayHandler: relayHandler,
	}, nil
}

// Run запускает HTTP и gRPC серверы и блокируется до отмены ctx или ошибки сервера
func (app *Application) Run(ctx context.Context) error {
	app.gateway.Start()
	app.exporter.Start()
	app.grpcServer.SetServing(true)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
			zap.String("version", Version))
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if app.config.GRPCPort != "" {
		g.Go(func() error {
			return app.grpcServer.Run(app.config.GRPCPort)
		})
	}

	// Сервер релея остановился сам
	g.Go(func() error {
		select {
		case <-app.gateway.Done():
			if gctx.Err() != nil {
				return nil
			}
			return errors.New("gateway router stopped")
		case <-gctx.Done():
			return nil
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		return app.Stop()
	})

	return g.Wait()
}

// Stop останавливает приложение
func (app *Application) Stop() error {
	app.logger.Info("Stopping application")
	app.grpcServer.SetServing(false)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := app.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	// websocket соединения не отслеживаются http.Server после hijack
	app.gateway.Stop()

	if err := app.exporter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("exporter close: %w", err))
	}
	if err := app.notifier.Close(); err != nil {
		errs = append(errs, fmt.Errorf("notifier close: %w", err))
	}
	app.grpcServer.Stop()

	app.logger.Info("Application stopped")
	return errors.Join(errs...)
}

// GetRouter возвращает роутер
func (app *Application) GetRouter() http.Handler {
	return app.router
}

// GetGateway возвращает роутер релея
func (app *Application) GetGateway() *gateway.Gateway {
	return app.gateway
}
