package client

import (
	"encoding/json"
	"fmt"
	"sync"

	"detection-relay/internal/types"
	"detection-relay/pkg/proto"
)

// DefaultMirrorCapacity сколько последних детекций хранит зеркало
const DefaultMirrorCapacity = 50

// Tile плитка участника; без кадра участник показывается как ожидающий видео
type Tile struct {
	UserID   string                   `json:"userId"`
	UserName string                   `json:"userName"`
	Frame    *proto.VideoFrameMessage `json:"frame,omitempty"`
}

// Waiting кадров от участника еще нет
func (t Tile) Waiting() bool {
	return t.Frame == nil
}

// Mirror локальная копия состояния сессии: участники, последние детекции и
// последние кадры. Apply и Reset вызываются только из читающей горутины
// клиента (обработчик событий и OnConnect), снимки читаются откуда угодно.
type Mirror struct {
	capacity int

	mu         sync.RWMutex
	users      []types.Participant
	detections []types.DetectionEvent
	frames     map[string]proto.VideoFrameMessage
}

// NewMirror создает зеркало
func NewMirror(capacity int) *Mirror {
	if capacity <= 0 {
		capacity = DefaultMirrorCapacity
	}
	return &Mirror{
		capacity: capacity,
		frames:   make(map[string]proto.VideoFrameMessage),
	}
}

// Apply применяет событие релея. Неизвестные события игнорируются.
func (m *Mirror) Apply(env proto.Envelope) error {
	switch env.Event {
	case proto.EventUsersList:
		var users []types.Participant
		if err := decodeMirror(env, &users); err != nil {
			return err
		}
		m.mu.Lock()
		m.users = users
		m.mu.Unlock()

	case proto.EventUserJoined:
		var p proto.UserPresence
		if err := decodeMirror(env, &p); err != nil {
			return err
		}
		m.mu.Lock()
		if m.userIndex(p.UserID) < 0 {
			m.users = append(m.users, types.Participant{
				ID:       p.UserID,
				Name:     p.UserName,
				IsActive: true,
				JoinedAt: p.Timestamp,
			})
		}
		m.mu.Unlock()

	case proto.EventUserLeft:
		var p proto.UserPresence
		if err := decodeMirror(env, &p); err != nil {
			return err
		}
		m.mu.Lock()
		if i := m.userIndex(p.UserID); i >= 0 {
			m.users = append(m.users[:i:i], m.users[i+1:]...)
		}
		delete(m.frames, p.UserID)
		m.mu.Unlock()

	case proto.EventNewDetection:
		var d types.DetectionEvent
		if err := decodeMirror(env, &d); err != nil {
			return err
		}
		m.mu.Lock()
		keep := min(len(m.detections), m.capacity-1)
		detections := make([]types.DetectionEvent, 0, keep+1)
		detections = append(detections, d)
		m.detections = append(detections, m.detections[:keep]...)
		m.mu.Unlock()

	case proto.EventVideoFrame:
		var f proto.VideoFrameMessage
		if err := decodeMirror(env, &f); err != nil {
			return err
		}
		m.mu.Lock()
		m.frames[f.UserID] = f
		m.mu.Unlock()

	case proto.EventStopVideoStream:
		var s proto.StopVideoStream
		if err := decodeMirror(env, &s); err != nil {
			return err
		}
		m.mu.Lock()
		delete(m.frames, s.UserID)
		m.mu.Unlock()
	}
	return nil
}

// Reset очищает зеркало; вызывается при каждом новом соединении
func (m *Mirror) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = nil
	m.detections = nil
	m.frames = make(map[string]proto.VideoFrameMessage)
}

func (m *Mirror) Users() []types.Participant {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.Participant(nil), m.users...)
}

// Detections последние детекции, новые первыми
func (m *Mirror) Detections() []types.DetectionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.DetectionEvent(nil), m.detections...)
}

func (m *Mirror) Frame(userID string) (proto.VideoFrameMessage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.frames[userID]
	return f, ok
}

// Tiles плитки в порядке списка участников
func (m *Mirror) Tiles() []Tile {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tiles := make([]Tile, 0, len(m.users))
	for _, u := range m.users {
		tile := Tile{UserID: u.ID, UserName: u.Name}
		if f, ok := m.frames[u.ID]; ok {
			tile.Frame = &f
		}
		tiles = append(tiles, tile)
	}
	return tiles
}

func (m *Mirror) userIndex(id string) int {
	for i, u := range m.users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

func decodeMirror(env proto.Envelope, v any) error {
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", env.Event, err)
	}
	return nil
}
