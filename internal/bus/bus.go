// Package bus экспортирует события релея во внешние шины
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Топики экспортируемых событий
const (
	TopicPresence      = "presence"
	TopicDetection     = "detection"
	TopicStream        = "stream"
	TopicNotifications = "notifications"
)

// Source источник событий в конверте
const Source = "detection-relay"

// Event конверт экспортируемого события
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"` // имя события протокола, например user-joined
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"` // unix millis
	Payload   any    `json:"payload"`
}

// NewEvent создает событие с новым идентификатором
func NewEvent(eventType string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    Source,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

// Publisher публикует события в шину
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
	Close() error
}

// NopPublisher отбрасывает события
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }
func (NopPublisher) Close() error                                   { return nil }
