package controller

import "detection-relay/internal/types"

// DefaultDetectionCapacity емкость журнала по умолчанию
const DefaultDetectionCapacity = 50

// DetectionLog ограниченная история детекций, новые первыми.
// Не потокобезопасен: единственный писатель это маршрутизатор.
type DetectionLog struct {
	entries  []types.DetectionEvent
	capacity int
}

// NewDetectionLog создает журнал
func NewDetectionLog(capacity int) *DetectionLog {
	if capacity <= 0 {
		capacity = DefaultDetectionCapacity
	}
	return &DetectionLog{
		entries:  make([]types.DetectionEvent, 0, capacity),
		capacity: capacity,
	}
}

// Record добавляет событие в начало и возвращает число вытесненных записей
func (l *DetectionLog) Record(event types.DetectionEvent) int {
	evicted := 0
	if len(l.entries) >= l.capacity {
		evicted = len(l.entries) - l.capacity + 1
		l.entries = l.entries[:l.capacity-1]
	}

	l.entries = append(l.entries, types.DetectionEvent{})
	copy(l.entries[1:], l.entries[:len(l.entries)-1])
	l.entries[0] = event

	return evicted
}

// Snapshot копия журнала
func (l *DetectionLog) Snapshot() []types.DetectionEvent {
	out := make([]types.DetectionEvent, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len текущая длина
func (l *DetectionLog) Len() int {
	return len(l.entries)
}

// Capacity емкость
func (l *DetectionLog) Capacity() int {
	return l.capacity
}
