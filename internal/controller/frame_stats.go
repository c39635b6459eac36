package controller

import (
	"sort"
	"time"

	"detection-relay/internal/types"
)

type statsEntry struct {
	stats       types.FrameStats
	windowStart time.Time
	windowCount int
}

// FrameStatsRepository статистика входящих кадров по участникам.
// Не потокобезопасен: единственный писатель это маршрутизатор.
type FrameStatsRepository struct {
	entries map[string]*statsEntry
	window  time.Duration
	now     func() time.Time
}

// NewFrameStatsRepository создает репозиторий статистики
func NewFrameStatsRepository(window time.Duration) *FrameStatsRepository {
	if window <= 0 {
		window = time.Second
	}
	return &FrameStatsRepository{
		entries: make(map[string]*statsEntry),
		window:  window,
		now:     time.Now,
	}
}

// UpdateStats учитывает кадр
func (r *FrameStatsRepository) UpdateStats(frame types.VideoFrame) types.FrameStats {
	now := r.now()

	e, ok := r.entries[frame.UserID]
	if !ok {
		e = &statsEntry{
			stats: types.FrameStats{
				UserID:    frame.UserID,
				StartTime: now,
			},
			windowStart: now,
		}
		r.entries[frame.UserID] = e
	}

	e.stats.UserName = frame.UserName
	e.stats.FramesReceived++
	e.stats.BytesReceived += int64(len(frame.FrameData))
	e.stats.LastFrameSize = len(frame.FrameData)
	e.stats.LastFrameAt = now

	// Окно сбрасывается, а не усредняется
	if now.Sub(e.windowStart) >= r.window {
		e.stats.CurrentFPS = e.windowCount
		e.windowCount = 0
		e.windowStart = now
	}
	e.windowCount++

	return e.stats
}

// RemoveStats удаляет статистику участника
func (r *FrameStatsRepository) RemoveStats(userID string) {
	delete(r.entries, userID)
}

// GetStats статистика участника
func (r *FrameStatsRepository) GetStats(userID string) (types.FrameStats, bool) {
	e, ok := r.entries[userID]
	if !ok {
		return types.FrameStats{}, false
	}
	return e.stats, true
}

// GetAllStats вся статистика, упорядоченная по userID
func (r *FrameStatsRepository) GetAllStats() []types.FrameStats {
	out := make([]types.FrameStats, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// GetTotalStats общая статистика
func (r *FrameStatsRepository) GetTotalStats() map[string]interface{} {
	var totalFrames, totalBytes int64
	for _, e := range r.entries {
		totalFrames += e.stats.FramesReceived
		totalBytes += e.stats.BytesReceived
	}

	return map[string]interface{}{
		"active_streams": len(r.entries),
		"total_frames":   totalFrames,
		"total_bytes":    totalBytes,
		"timestamp":      r.now().Unix(),
	}
}
