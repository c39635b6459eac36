package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

type queued struct {
	topic string
	event Event
}

// Exporter асинхронно отправляет события в Publisher.
// Emit никогда не блокирует: при переполнении очереди событие отбрасывается.
// Методы nil-экспортера ничего не делают.
type Exporter struct {
	publisher Publisher
	logger    *zap.Logger

	queue   chan queued
	stop    chan struct{}
	done    chan struct{}
	dropped atomic.Int64
	sent    atomic.Int64

	startOnce sync.Once
	closeOnce sync.Once
}

// NewExporter создает экспортер с очередью queueSize
func NewExporter(publisher Publisher, queueSize int, logger *zap.Logger) *Exporter {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Exporter{
		publisher: publisher,
		logger:    logger,
		queue:     make(chan queued, queueSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start запускает воркер публикации
func (e *Exporter) Start() {
	if e == nil {
		return
	}
	e.startOnce.Do(func() { go e.run() })
}

// Emit ставит событие в очередь
func (e *Exporter) Emit(topic, eventType string, payload any) bool {
	if e == nil {
		return false
	}
	select {
	case e.queue <- queued{topic: topic, event: NewEvent(eventType, payload)}:
		return true
	default:
		if n := e.dropped.Add(1); n == 1 || n%100 == 0 {
			e.logger.Warn("Export queue full, dropping event",
				zap.String("topic", topic),
				zap.String("type", eventType),
				zap.Int64("dropped_total", n))
		}
		return false
	}
}

// Dropped количество отброшенных событий
func (e *Exporter) Dropped() int64 {
	if e == nil {
		return 0
	}
	return e.dropped.Load()
}

// Sent количество опубликованных событий
func (e *Exporter) Sent() int64 {
	if e == nil {
		return 0
	}
	return e.sent.Load()
}

// Close дожидается отправки очереди и закрывает Publisher
func (e *Exporter) Close() error {
	if e == nil {
		return nil
	}
	var err error
	e.closeOnce.Do(func() {
		e.startOnce.Do(func() { go e.run() })
		close(e.stop)
		<-e.done
		err = e.publisher.Close()
	})
	return err
}

func (e *Exporter) run() {
	defer close(e.done)
	for {
		select {
		case item := <-e.queue:
			e.publish(item)
		case <-e.stop:
			for {
				select {
				case item := <-e.queue:
					e.publish(item)
				default:
					return
				}
			}
		}
	}
}

func (e *Exporter) publish(item queued) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := e.publisher.Publish(ctx, item.topic, item.event); err != nil {
		e.logger.Error("Failed to export event",
			zap.String("topic", item.topic),
			zap.String("type", item.event.Type),
			zap.Error(err))
		return
	}
	e.sent.Add(1)
}
