package bus

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed шина закрыта
var ErrClosed = errors.New("bus is closed")

// Handler обработчик событий подписчика
type Handler func(ctx context.Context, topic string, event Event)

// MemoryBus шина в памяти процесса
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool
}

// NewMemoryBus создает шину в памяти
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]Handler)}
}

// Subscribe регистрирует обработчик топика
func (b *MemoryBus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
}

// Publish синхронно вызывает обработчики топика
func (b *MemoryBus) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	handlers := append([]Handler(nil), b.handlers[topic]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, topic, event)
	}
	return nil
}

// Close закрывает шину
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[string][]Handler)
	return nil
}
