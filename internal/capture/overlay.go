package capture

import (
	"go.uber.org/zap"
)

// Overlay отрисовка результатов поверх локального превью
type Overlay interface {
	Render(preds []Prediction)
	Clear()
}

// LogOverlay пишет результаты в лог вместо отрисовки
type LogOverlay struct {
	logger *zap.Logger
}

func NewLogOverlay(logger *zap.Logger) *LogOverlay {
	return &LogOverlay{logger: logger}
}

func (o *LogOverlay) Render(preds []Prediction) {
	for _, p := range preds {
		o.logger.Debug("Prediction",
			zap.String("class", p.Class),
			zap.Float64("score", p.Score),
			zap.Float64s("bbox", p.BBox[:]))
	}
}

func (o *LogOverlay) Clear() {
	o.logger.Debug("Overlay cleared")
}
