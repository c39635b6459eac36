package capture

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNoFrame источник еще не выдал кадр
var ErrNoFrame = errors.New("no frame available")

// Source источник видео
type Source interface {
	// Ready источник готов отдавать кадры
	Ready() bool
	// Frame текущий кадр
	Frame() (image.Image, error)
}

// DirSource проигрывает изображения из каталога по кругу,
// каждое держится hold, затем сменяется следующим
type DirSource struct {
	mu     sync.RWMutex
	images []image.Image
	hold   time.Duration
	start  time.Time
	now    func() time.Time
}

// NewDirSource загружает JPEG/PNG файлы каталога в лексикографическом порядке
func NewDirSource(dir string, hold time.Duration) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	images := make([]image.Image, 0, len(names))
	for _, name := range names {
		img, err := decodeFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	if hold <= 0 {
		hold = time.Second
	}
	return &DirSource{
		images: images,
		hold:   hold,
		start:  time.Now(),
		now:    time.Now,
	}, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// Ready есть хотя бы один кадр
func (s *DirSource) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images) > 0
}

// Len количество кадров
func (s *DirSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}

func (s *DirSource) Frame() (image.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.images) == 0 {
		return nil, ErrNoFrame
	}
	idx := int(s.now().Sub(s.start)/s.hold) % len(s.images)
	return s.images[idx], nil
}
