package bus

import (
	"fmt"
	"strings"

	"detection-relay/internal/config"
)

// NewPublisher создает публикатор по конфигурации экспорта
func NewPublisher(cfg config.ExportConfig) (Publisher, error) {
	switch strings.ToLower(cfg.Type) {
	case config.ExportNone, "":
		return NopPublisher{}, nil
	case config.ExportMemory:
		return NewMemoryBus(), nil
	case config.ExportRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("export.redis_url not configured")
		}
		return NewRedisPublisher(cfg.RedisURL, cfg.ChannelPrefix)
	case config.ExportKafka:
		return NewKafkaPublisher(ParseKafkaBrokers(cfg.KafkaBrokers), cfg.KafkaTopic)
	default:
		return nil, fmt.Errorf("unknown export type: %s", cfg.Type)
	}
}

// ParseKafkaBrokers нормализует список брокеров, допускает "a:9092,b:9092" в одном элементе
func ParseKafkaBrokers(in []string) []string {
	var out []string
	for _, item := range in {
		for _, b := range strings.Split(item, ",") {
			if b = strings.TrimSpace(b); b != "" {
				out = append(out, b)
			}
		}
	}
	return out
}
