package config

import "time"

// Типы экспорта событий
const (
	ExportNone   = "none"
	ExportMemory = "memory"
	ExportRedis  = "redis"
	ExportKafka  = "kafka"
)

// NotificationsConfig внешний канал уведомлений (Discord webhook)
type NotificationsConfig struct {
	Enabled        bool          `yaml:"enabled" envconfig:"enabled"` // начальное состояние переключателя
	WebhookURL     string        `yaml:"discord_webhook_url" envconfig:"discord_webhook_url"`
	Username       string        `yaml:"username" envconfig:"username"`
	RatePerMinute  int           `yaml:"rate_per_minute" envconfig:"rate_per_minute"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"request_timeout"`
}

// ExportConfig экспорт событий во внешнюю шину
type ExportConfig struct {
	Type          string   `yaml:"type" envconfig:"type"` // none | memory | redis | kafka
	RedisURL      string   `yaml:"redis_url" envconfig:"redis_url"`
	ChannelPrefix string   `yaml:"channel_prefix" envconfig:"channel_prefix"`
	KafkaBrokers  []string `yaml:"kafka_brokers" envconfig:"kafka_brokers"`
	KafkaTopic    string   `yaml:"kafka_topic" envconfig:"kafka_topic"`
	QueueSize     int      `yaml:"queue_size" envconfig:"queue_size"`
}
