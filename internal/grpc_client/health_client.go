package grpc_client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ErrNotServing сервис ответил, но не обслуживает запросы
var ErrNotServing = errors.New("service is not serving")

// RetryConfig настройки повторов
type RetryConfig struct {
	MaxRetries     int
	RetryDelay     time.Duration
	RequestTimeout time.Duration
}

// DefaultRetryConfig значения по умолчанию
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		RetryDelay:     time.Second,
		RequestTimeout: 5 * time.Second,
	}
}

// HealthClient клиент grpc.health.v1
type HealthClient struct {
	conn   *grpc.ClientConn
	client healthpb.HealthClient
	logger *zap.Logger
	config RetryConfig
}

// NewHealthClient создает клиента; соединение устанавливается лениво при первом вызове
func NewHealthClient(target string, cfg RetryConfig, logger *zap.Logger, opts ...grpc.DialOption) (*HealthClient, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client for %s: %w", target, err)
	}

	return &HealthClient{
		conn:   conn,
		client: healthpb.NewHealthClient(conn),
		logger: logger,
		config: cfg,
	}, nil
}

// Close закрывает соединение
func (c *HealthClient) Close() error {
	return c.conn.Close()
}

// Check запрашивает статус сервиса ("" = сервер целиком)
func (c *HealthClient) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	resp, err := c.client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check failed: %w", err)
	}
	return resp.GetStatus(), nil
}

// CheckWithRetry проверяет статус с повторными попытками
func (c *HealthClient) CheckWithRetry(ctx context.Context, service string) error {
	var lastErr error

	for i := 0; i < c.config.MaxRetries; i++ {
		status, err := c.Check(ctx, service)
		if err == nil && status == healthpb.HealthCheckResponse_SERVING {
			return nil
		}
		if err == nil {
			err = fmt.Errorf("%w: %s", ErrNotServing, status)
		}

		lastErr = err
		c.logger.Warn("Health check failed, retrying",
			zap.String("service", service),
			zap.Int("attempt", i+1),
			zap.Error(err))

		if i < c.config.MaxRetries-1 {
			select {
			case <-time.After(c.config.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("health check failed after %d attempts: %w", c.config.MaxRetries, lastErr)
}
