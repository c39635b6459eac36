package config

import (
	"errors"
	"fmt"
	"time"
)

// ProducerConfig настройки продюсера (планировщик захвата + клиент релея)
type ProducerConfig struct {
	RelayURL             string        `yaml:"relay_url" envconfig:"relay_url"`
	UserName             string        `yaml:"user_name" envconfig:"user_name"`
	DetectionInterval    time.Duration `yaml:"detection_interval" envconfig:"detection_interval"`
	FrameInterval        time.Duration `yaml:"frame_interval" envconfig:"frame_interval"`
	FPSWindow            time.Duration `yaml:"fps_window" envconfig:"fps_window"`
	ScaleFactor          float64       `yaml:"scale_factor" envconfig:"scale_factor"`
	JPEGQuality          int           `yaml:"jpeg_quality" envconfig:"jpeg_quality"`
	FilterClasses        []string      `yaml:"filter_classes" envconfig:"filter_classes"`
	MinScore             float64       `yaml:"min_score" envconfig:"min_score"`
	ClassifierURL        string        `yaml:"classifier_url" envconfig:"classifier_url"`
	SourceDir            string        `yaml:"source_dir" envconfig:"source_dir"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" envconfig:"max_reconnect_attempts"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay" envconfig:"reconnect_delay"`
	OutboundBuffer       int           `yaml:"outbound_buffer" envconfig:"outbound_buffer"`
}

// DefaultProducerConfig значения по умолчанию
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		RelayURL:             "ws://localhost:5000/ws",
		DetectionInterval:    500 * time.Millisecond,
		FrameInterval:        33 * time.Millisecond,
		FPSWindow:            time.Second,
		ScaleFactor:          0.5,
		JPEGQuality:          60,
		FilterClasses:        []string{"person"},
		MinScore:             0.70,
		ClassifierURL:        "http://localhost:8500/detect",
		MaxReconnectAttempts: 5,
		ReconnectDelay:       time.Second,
		OutboundBuffer:       64,
	}
}

// Validate проверяет настройки продюсера
func (p ProducerConfig) Validate() error {
	var errs []error
	if p.DetectionInterval <= 0 || p.FrameInterval <= 0 || p.FPSWindow <= 0 {
		errs = append(errs, fmt.Errorf("producer intervals must be positive"))
	}
	if p.ScaleFactor <= 0 || p.ScaleFactor > 1 {
		errs = append(errs, fmt.Errorf("producer.scale_factor must be in (0,1], got %v", p.ScaleFactor))
	}
	if p.JPEGQuality < 1 || p.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("producer.jpeg_quality must be in 1..100, got %d", p.JPEGQuality))
	}
	if p.MinScore < 0 || p.MinScore > 1 {
		errs = append(errs, fmt.Errorf("producer.min_score must be in [0,1]"))
	}
	if p.MaxReconnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("producer.max_reconnect_attempts must not be negative"))
	}
	return errors.Join(errs...)
}
