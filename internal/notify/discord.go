// Package notify отправляет детекции во внешний канал уведомлений
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"detection-relay/internal/config"
	"detection-relay/internal/types"
)

// Sink принимает детекции для внешнего канала
type Sink interface {
	Notify(event types.DetectionEvent) bool
	Close() error
}

// NopSink ничего не отправляет
type NopSink struct{}

func (NopSink) Notify(types.DetectionEvent) bool { return false }
func (NopSink) Close() error                     { return nil }

// NewSink создает sink по конфигурации; без webhook возвращает NopSink
func NewSink(cfg config.NotificationsConfig, logger *zap.Logger) Sink {
	if strings.TrimSpace(cfg.WebhookURL) == "" {
		return NopSink{}
	}
	return NewDiscordSink(cfg, &http.Client{Timeout: cfg.RequestTimeout}, logger)
}

type webhookMessage struct {
	Username string `json:"username,omitempty"`
	Content  string `json:"content"`
}

// DiscordSink публикует детекции в Discord webhook.
// Notify не блокирует вызывающего: отправка идет из своей горутины,
// сверх лимита и при полной очереди детекции отбрасываются.
type DiscordSink struct {
	url      string
	username string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger

	queue     chan types.DetectionEvent
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewDiscordSink создает и запускает sink
func NewDiscordSink(cfg config.NotificationsConfig, client *http.Client, logger *zap.Logger) *DiscordSink {
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 20
	}

	s := &DiscordSink{
		url:      cfg.WebhookURL,
		username: cfg.Username,
		client:   client,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		logger:   logger,
		queue:    make(chan types.DetectionEvent, perMinute),
		stop:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run()
	return s
}

// Notify ставит детекцию в очередь отправки
func (s *DiscordSink) Notify(event types.DetectionEvent) bool {
	if !s.limiter.Allow() {
		s.logger.Debug("Notification rate limit exceeded",
			zap.String("detection_id", event.ID))
		return false
	}
	select {
	case s.queue <- event:
		return true
	default:
		s.logger.Warn("Notification queue full, dropping detection",
			zap.String("detection_id", event.ID))
		return false
	}
}

// Close останавливает отправку, оставшиеся в очереди детекции отбрасываются
func (s *DiscordSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
	return nil
}

func (s *DiscordSink) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case event := <-s.queue:
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout())
			if err := s.post(ctx, event); err != nil {
				s.logger.Error("Failed to send notification",
					zap.String("detection_id", event.ID),
					zap.Error(err))
			}
			cancel()
		}
	}
}

func (s *DiscordSink) timeout() time.Duration {
	if s.client.Timeout > 0 {
		return s.client.Timeout
	}
	return 5 * time.Second
}

func (s *DiscordSink) post(ctx context.Context, event types.DetectionEvent) error {
	body, err := json.Marshal(webhookMessage{
		Username: s.username,
		Content:  FormatDetection(event),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// FormatDetection текст уведомления
func FormatDetection(event types.DetectionEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** detected `%s`", event.UserName, event.ObjectClass)
	if event.Confidence != nil {
		fmt.Fprintf(&b, " (%.0f%%)", *event.Confidence*100)
	}
	fmt.Fprintf(&b, " at %s", event.Timestamp.UTC().Format(time.RFC3339))
	return b.String()
}
