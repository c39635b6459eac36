package controller

import (
	"sort"
	"time"

	"detection-relay/internal/types"
)

// FrameRelay последний кадр на участника (latest-frame-wins).
// Наличие записи означает, что участник сейчас транслирует видео.
// Не потокобезопасен: единственный писатель это маршрутизатор.
type FrameRelay struct {
	frames map[string]types.VideoFrame
	now    func() time.Time
}

// NewFrameRelay создает релей кадров
func NewFrameRelay() *FrameRelay {
	return &FrameRelay{
		frames: make(map[string]types.VideoFrame),
		now:    time.Now,
	}
}

// Put безусловно заменяет кадр участника и ставит время релея
func (r *FrameRelay) Put(frame types.VideoFrame) types.VideoFrame {
	frame.LastUpdate = r.now()
	r.frames[frame.UserID] = frame
	return frame
}

// Remove удаляет кадр; повторный вызов ничего не делает
func (r *FrameRelay) Remove(userID string) (types.VideoFrame, bool) {
	frame, ok := r.frames[userID]
	if !ok {
		return types.VideoFrame{}, false
	}
	delete(r.frames, userID)
	return frame, true
}

// Get возвращает кадр участника
func (r *FrameRelay) Get(userID string) (types.VideoFrame, bool) {
	frame, ok := r.frames[userID]
	return frame, ok
}

// Snapshot копия всех кадров, упорядоченная по userID
func (r *FrameRelay) Snapshot() []types.VideoFrame {
	out := make([]types.VideoFrame, 0, len(r.frames))
	for _, f := range r.frames {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Len количество активных трансляций
func (r *FrameRelay) Len() int {
	return len(r.frames)
}
