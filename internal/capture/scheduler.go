// Package capture планировщик продюсера: два независимых цикла,
// детекция и отправка кадров, пока включена трансляция
package capture

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"detection-relay/internal/config"
	"detection-relay/pkg/proto"
)

var (
	ErrSourceNotReady = errors.New("video source is not ready")
	ErrModelNotLoaded = errors.New("classification model is not loaded")
)

// Sender канал к релею
type Sender interface {
	Connected() bool
	// Joined релей подтвердил вход на текущем соединении
	Joined() bool
	Identity() proto.SessionJoined
	SendDetection(req proto.DetectionRequest) error
	SendFrame(msg proto.VideoFrameMessage) error
	StopStream() error
}

// Config настройки планировщика
type Config struct {
	DetectionInterval time.Duration
	FrameInterval     time.Duration
	FPSWindow         time.Duration
	FilterClasses     []string
	MinScore          float64
	ScaleFactor       float64
	JPEGQuality       int
}

// ConfigFromProducer настройки из конфигурации продюсера
func ConfigFromProducer(p config.ProducerConfig) Config {
	return Config{
		DetectionInterval: p.DetectionInterval,
		FrameInterval:     p.FrameInterval,
		FPSWindow:         p.FPSWindow,
		FilterClasses:     p.FilterClasses,
		MinScore:          p.MinScore,
		ScaleFactor:       p.ScaleFactor,
		JPEGQuality:       p.JPEGQuality,
	}
}

// Stats снимок состояния планировщика
type Stats struct {
	ModelLoaded    bool         `json:"modelLoaded"`
	Broadcasting   bool         `json:"broadcasting"`
	DetectionsSent int64        `json:"detectionsSent"`
	FramesSent     int64        `json:"framesSent"`
	CurrentFPS     int          `json:"currentFps"`
	LastResult     []Prediction `json:"lastResult"`
}

// Scheduler планировщик захвата
type Scheduler struct {
	cfg        Config
	source     Source
	classifier Classifier
	encoder    Encoder
	overlay    Overlay
	sender     Sender
	logger     *zap.Logger

	// mu сериализует Start/Stop/LoadModel
	mu           sync.Mutex
	modelLoaded  atomic.Bool
	broadcasting atomic.Bool
	cancel       context.CancelFunc
	wg           sync.WaitGroup

	detectionsSent atomic.Int64
	framesSent     atomic.Int64
	fps            *FPSCounter

	resultMu   sync.RWMutex
	lastResult []Prediction
}

// NewScheduler создает планировщик
func NewScheduler(cfg Config, source Source, classifier Classifier, overlay Overlay, sender Sender, logger *zap.Logger) *Scheduler {
	if cfg.ScaleFactor <= 0 {
		cfg.ScaleFactor = 0.5
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 60
	}
	return &Scheduler{
		cfg:        cfg,
		source:     source,
		classifier: classifier,
		encoder:    Encoder{Scale: cfg.ScaleFactor, Quality: cfg.JPEGQuality},
		overlay:    overlay,
		sender:     sender,
		logger:     logger,
		fps:        NewFPSCounter(cfg.FPSWindow),
	}
}

// LoadModel загружает модель; при ошибке планировщик остается заблокированным
func (s *Scheduler) LoadModel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Loading classification model")
	if err := s.classifier.LoadModel(ctx); err != nil {
		s.modelLoaded.Store(false)
		s.logger.Error("Model load failed, broadcasting is blocked", zap.Error(err))
		return fmt.Errorf("load model: %w", err)
	}
	s.modelLoaded.Store(true)
	s.logger.Info("Classification model loaded")
	return nil
}

// Start запускает оба цикла со сброшенными счетчиками
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broadcasting.Load() {
		return nil
	}
	if !s.source.Ready() {
		return ErrSourceNotReady
	}
	if !s.modelLoaded.Load() {
		return ErrModelNotLoaded
	}

	s.detectionsSent.Store(0)
	s.framesSent.Store(0)
	s.fps.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.broadcasting.Store(true)

	s.wg.Add(2)
	go s.loop(ctx, s.cfg.DetectionInterval, s.detectionTick)
	go s.loop(ctx, s.cfg.FrameInterval, s.frameTick)

	s.logger.Info("Broadcasting started",
		zap.Duration("detection_interval", s.cfg.DetectionInterval),
		zap.Duration("frame_interval", s.cfg.FrameInterval))
	return nil
}

// Stop останавливает оба цикла и ждет их завершения; после возврата
// отправок больше нет. Затем очищает оверлей и сообщает релею об остановке.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.broadcasting.Load() {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.broadcasting.Store(false)

	s.overlay.Clear()
	s.setLastResult(nil)

	if !s.sender.Connected() {
		s.logger.Warn("Not connected, stop-video-stream not sent")
	} else if err := s.sender.StopStream(); err != nil {
		s.logger.Warn("Failed to send stop-video-stream", zap.Error(err))
	}

	s.logger.Info("Broadcasting stopped",
		zap.Int64("detections_sent", s.detectionsSent.Load()),
		zap.Int64("frames_sent", s.framesSent.Load()))

	s.detectionsSent.Store(0)
	s.framesSent.Store(0)
	s.fps.Reset()
}

// Toggle переключает трансляцию, возвращает новое состояние
func (s *Scheduler) Toggle() (bool, error) {
	if s.broadcasting.Load() {
		s.Stop()
		return false, nil
	}
	if err := s.Start(); err != nil {
		return false, err
	}
	return true, nil
}

// Broadcasting трансляция включена
func (s *Scheduler) Broadcasting() bool {
	return s.broadcasting.Load()
}

// Stats снимок состояния
func (s *Scheduler) Stats() Stats {
	s.resultMu.RLock()
	last := slices.Clone(s.lastResult)
	s.resultMu.RUnlock()

	return Stats{
		ModelLoaded:    s.modelLoaded.Load(),
		Broadcasting:   s.broadcasting.Load(),
		DetectionsSent: s.detectionsSent.Load(),
		FramesSent:     s.framesSent.Load(),
		CurrentFPS:     s.fps.Current(),
		LastResult:     last,
	}
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			tick(ctx)
		}
	}
}

func (s *Scheduler) detectionTick(ctx context.Context) {
	if !s.source.Ready() {
		return
	}
	img, err := s.source.Frame()
	if err != nil {
		return
	}

	preds, err := s.classifier.Classify(ctx, img)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("Classification failed", zap.Error(err))
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	preds = filterScore(preds, s.cfg.MinScore)
	s.overlay.Render(preds)
	s.setLastResult(preds)

	if !s.canSend() {
		return
	}
	for _, p := range preds {
		if !slices.Contains(s.cfg.FilterClasses, p.Class) {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		score, bbox := p.Score, p.BBox
		err := s.sender.SendDetection(proto.DetectionRequest{
			ObjectClass: p.Class,
			Confidence:  &score,
			BBox:        bbox[:],
		})
		if err == nil {
			s.detectionsSent.Add(1)
		}
	}
}

func (s *Scheduler) frameTick(ctx context.Context) {
	if !s.canSend() || !s.source.Ready() {
		return
	}
	img, err := s.source.Frame()
	if err != nil {
		return
	}

	data, err := s.encoder.Encode(img)
	if err != nil {
		s.logger.Warn("Frame encoding failed", zap.Error(err))
		return
	}
	if ctx.Err() != nil {
		return
	}

	id := s.sender.Identity()
	err = s.sender.SendFrame(proto.VideoFrameMessage{
		UserID:    id.UserID,
		UserName:  id.UserName,
		FrameData: data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err == nil {
		s.framesSent.Add(1)
		s.fps.Tick()
	}
}

// canSend до session-joined релей отбрасывает события соединения
func (s *Scheduler) canSend() bool {
	return s.sender.Connected() && s.sender.Joined()
}

func (s *Scheduler) setLastResult(preds []Prediction) {
	s.resultMu.Lock()
	defer s.resultMu.Unlock()
	s.lastResult = preds
}

func filterScore(preds []Prediction, minScore float64) []Prediction {
	out := preds[:0:0]
	for _, p := range preds {
		if p.Score >= minScore {
			out = append(out, p)
		}
	}
	return out
}
