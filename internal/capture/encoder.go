package capture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// DataURIPrefix префикс кадра
const DataURIPrefix = "data:image/jpeg;base64,"

// Encoder уменьшает кадр и кодирует его в JPEG data URI
type Encoder struct {
	Scale   float64
	Quality int
}

// Encode кодирует кадр
func (e Encoder) Encode(img image.Image) (string, error) {
	src := img.Bounds()
	w := max(1, int(float64(src.Dx())*e.Scale))
	h := max(1, int(float64(src.Dy())*e.Scale))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)

	var buf bytes.Buffer
	buf.WriteString(DataURIPrefix)

	b64 := base64.NewEncoder(base64.StdEncoding, &buf)
	if err := jpeg.Encode(b64, dst, &jpeg.Options{Quality: e.Quality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	if err := b64.Close(); err != nil {
		return "", fmt.Errorf("encode base64: %w", err)
	}
	return buf.String(), nil
}
