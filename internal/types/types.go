package types

import "time"

// Role роль соединения в общей сессии
type Role string

const (
	RoleProducer Role = "producer"
	RoleObserver Role = "observer"
)

// ParseRole разбирает роль из строки, по умолчанию producer
func ParseRole(s string) Role {
	if Role(s) == RoleObserver {
		return RoleObserver
	}
	return RoleProducer
}

// Participant участник сессии
type Participant struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	IsActive bool      `json:"isActive"`
	JoinedAt time.Time `json:"joinedAt"`
}

// DetectionEvent событие классификации от продюсера
type DetectionEvent struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	UserName    string    `json:"userName"`
	ObjectClass string    `json:"objectClass"`
	Confidence  *float64  `json:"confidence,omitempty"`
	BBox        []float64 `json:"bbox,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// VideoFrame последний кадр участника
type VideoFrame struct {
	UserID     string    `json:"userId"`
	UserName   string    `json:"userName"`
	FrameData  string    `json:"frameData"` // data URI, содержимое не разбирается
	Timestamp  string    `json:"timestamp"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// FrameStats статистика кадров участника
type FrameStats struct {
	UserID         string    `json:"userId"`
	UserName       string    `json:"userName"`
	FramesReceived int64     `json:"framesReceived"`
	BytesReceived  int64     `json:"bytesReceived"`
	LastFrameSize  int       `json:"lastFrameSize"`
	CurrentFPS     int       `json:"currentFps"`
	StartTime      time.Time `json:"startTime"`
	LastFrameAt    time.Time `json:"lastFrameAt"`
}
