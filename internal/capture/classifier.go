package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"time"
)

// ErrModelLoad модель классификации не загрузилась
var ErrModelLoad = errors.New("model load failed")

// Prediction результат классификации
type Prediction struct {
	Class string     `json:"class"`
	Score float64    `json:"score"`
	BBox  [4]float64 `json:"bbox"` // x, y, width, height
}

// Classifier модель классификации объектов
type Classifier interface {
	LoadModel(ctx context.Context) error
	Classify(ctx context.Context, img image.Image) ([]Prediction, error)
}

// HTTPClassifier отправляет кадр в JPEG на HTTP эндпоинт инференса,
// ответ: [{"class": "...", "score": 0.9, "bbox": [x, y, w, h]}]
type HTTPClassifier struct {
	url     string
	client  *http.Client
	quality int
}

// NewHTTPClassifier создает классификатор
func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClassifier{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		quality: 80,
	}
}

// LoadModel проверяет, что эндпоинт отвечает на пробный кадр
func (c *HTTPClassifier) LoadModel(ctx context.Context) error {
	sample := image.NewGray(image.Rect(0, 0, 8, 8))
	sample.SetGray(0, 0, color.Gray{Y: 255})

	if _, err := c.Classify(ctx, sample); err != nil {
		return fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	return nil
}

func (c *HTTPClassifier) Classify(ctx context.Context, img image.Image) ([]Prediction, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &buf)
	if err != nil {
		return nil, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var preds []Prediction
	if err := json.NewDecoder(resp.Body).Decode(&preds); err != nil {
		return nil, fmt.Errorf("decode predictions: %w", err)
	}
	return preds, nil
}
