package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher публикует события в каналы redis (PUBLISH prefix+topic)
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

// NewRedisPublisher подключается к redis по URL и проверяет соединение
func NewRedisPublisher(url, prefix string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewRedisPublisherFromClient(client, prefix), nil
}

// NewRedisPublisherFromClient оборачивает готовый клиент
func NewRedisPublisherFromClient(client *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix}
}

// Channel имя канала redis для топика
func (p *RedisPublisher) Channel(topic string) string {
	return p.prefix + topic
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(topic), data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", p.Channel(topic), err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
