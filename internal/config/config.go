package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix префикс переменных окружения
const EnvPrefix = "RELAY"

// Config представляет конфигурацию приложения
type Config struct {
	Host     string `yaml:"host" envconfig:"host"`
	Port     int    `yaml:"port" envconfig:"port"`
	GRPCPort string `yaml:"grpc_port" envconfig:"grpc_port"`

	Logging       LoggingConfig       `yaml:"logging" envconfig:"logging"`
	Session       SessionConfig       `yaml:"session" envconfig:"session"`
	Detections    DetectionsConfig    `yaml:"detections" envconfig:"detections"`
	Video         VideoConfig         `yaml:"video" envconfig:"video"`
	WebSocket     WebSocketConfig     `yaml:"websocket" envconfig:"websocket"`
	Notifications NotificationsConfig `yaml:"notifications" envconfig:"notifications"`
	Export        ExportConfig        `yaml:"export" envconfig:"export"`
	Producer      ProducerConfig      `yaml:"producer" envconfig:"producer"`
}

// LoggingConfig настройки логирования
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"level"`
	Format string `yaml:"format" envconfig:"format"` // json | console
}

// SessionConfig настройки реестра участников
type SessionConfig struct {
	MaxNameLength int `yaml:"max_name_length" envconfig:"max_name_length"`
}

// DetectionsConfig настройки журнала детекций
type DetectionsConfig struct {
	Capacity int `yaml:"capacity" envconfig:"capacity"`
}

// VideoConfig настройки релея кадров
type VideoConfig struct {
	MaxFrameSize int           `yaml:"max_frame_size" envconfig:"max_frame_size"`
	MaxFPS       int           `yaml:"max_fps" envconfig:"max_fps"` // входящий лимит на соединение, 0 = без лимита
	StatsWindow  time.Duration `yaml:"stats_window" envconfig:"stats_window"`
}

// WebSocketConfig настройки транспорта
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"write_buffer_size"`
	SendBuffer      int           `yaml:"send_buffer" envconfig:"send_buffer"`
	PingInterval    time.Duration `yaml:"ping_interval" envconfig:"ping_interval"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"pong_wait"`
	WriteWait       time.Duration `yaml:"write_wait" envconfig:"write_wait"`
	AllowedOrigins  []string      `yaml:"allowed_origins" envconfig:"allowed_origins"`
}

// LoadConfig загружает конфигурацию: значения по умолчанию, файл (если есть),
// затем переменные окружения RELAY_*
func LoadConfig(path string) (*Config, error) {
	cfg := GetDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// файл не обязателен
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be in 1..65535, got %d", c.Port))
	}
	if c.Detections.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("detections.capacity must be positive"))
	}
	if c.Session.MaxNameLength <= 0 {
		errs = append(errs, fmt.Errorf("session.max_name_length must be positive"))
	}
	if c.Video.MaxFrameSize < 0 || c.Video.MaxFPS < 0 {
		errs = append(errs, fmt.Errorf("video limits must not be negative"))
	}
	if c.WebSocket.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("websocket.send_buffer must be positive"))
	}
	if c.WebSocket.PongWait <= c.WebSocket.PingInterval {
		errs = append(errs, fmt.Errorf("websocket.pong_wait must exceed ping_interval"))
	}
	switch c.Export.Type {
	case "", ExportNone, ExportMemory, ExportRedis, ExportKafka:
	default:
		errs = append(errs, fmt.Errorf("unknown export.type %q", c.Export.Type))
	}
	errs = append(errs, c.Producer.Validate())

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Address адрес HTTP сервера
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetDefaultConfig возвращает конфигурацию по умолчанию
func GetDefaultConfig() *Config {
	return &Config{
		Host:     "0.0.0.0",
		Port:     5000,
		GRPCPort: "9090",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Session: SessionConfig{
			MaxNameLength: 20,
		},
		Detections: DetectionsConfig{
			Capacity: 50,
		},
		Video: VideoConfig{
			MaxFrameSize: 2 * 1024 * 1024, // 2MB data URI
			MaxFPS:       30,
			StatsWindow:  time.Second,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			SendBuffer:      256,
			PingInterval:    30 * time.Second,
			PongWait:        60 * time.Second,
			WriteWait:       10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Notifications: NotificationsConfig{
			Enabled:        false,
			Username:       "detection-relay",
			RatePerMinute:  20,
			RequestTimeout: 5 * time.Second,
		},
		Export: ExportConfig{
			Type:          ExportNone,
			ChannelPrefix: "relay:",
			KafkaTopic:    "detection-relay.events",
			QueueSize:     1024,
		},
		Producer: DefaultProducerConfig(),
	}
}
