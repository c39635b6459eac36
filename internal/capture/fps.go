package capture

import (
	"sync"
	"time"
)

// FPSCounter считает тики за окно; по истечении окна значение фиксируется и счет начинается заново
type FPSCounter struct {
	mu          sync.Mutex
	window      time.Duration
	windowStart time.Time
	count       int
	current     int
	now         func() time.Time
}

// NewFPSCounter создает счетчик
func NewFPSCounter(window time.Duration) *FPSCounter {
	if window <= 0 {
		window = time.Second
	}
	return &FPSCounter{window: window, now: time.Now}
}

// Tick учитывает кадр
func (f *FPSCounter) Tick() {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if f.windowStart.IsZero() {
		f.windowStart = now
	}
	f.roll(now)
	f.count++
}

// Current количество кадров за последнее полное окно
func (f *FPSCounter) Current() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.windowStart.IsZero() {
		f.roll(f.now())
	}
	return f.current
}

// Reset обнуляет счетчик
func (f *FPSCounter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windowStart = time.Time{}
	f.count = 0
	f.current = 0
}

func (f *FPSCounter) roll(now time.Time) {
	elapsed := now.Sub(f.windowStart)
	if elapsed < f.window {
		return
	}
	if elapsed < 2*f.window {
		f.current = f.count
	} else {
		f.current = 0 // пропущено целое окно без кадров
	}
	f.count = 0
	f.windowStart = now
}
