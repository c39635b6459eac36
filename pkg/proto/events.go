// Package proto описывает протокол событий между клиентами и релеем.
//
// Каждое сообщение websocket это JSON конверт {"event": "<name>", "data": <payload>}.
// Входящие события образуют закрытое множество типов Inbound и проверяются
// на границе в DecodeInbound; исходящие полезные нагрузки кодируются через Encode.
package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Имена событий
const (
	// client -> relay
	EventJoinSession         = "join-session"
	EventLeaveSession        = "leave-session"
	EventDetection           = "detection"
	EventVideoFrame          = "video-frame"
	EventStopVideoStream     = "stop-video-stream"
	EventRequestUsersList    = "request-users-list"
	EventToggleNotifications = "toggle-discord-notifications"

	// relay -> client
	EventSessionJoined        = "session-joined"
	EventUserJoined           = "user-joined"
	EventUserLeft             = "user-left"
	EventNewDetection         = "new-detection"
	EventUsersList            = "users-list"
	EventNotificationsToggled = "discord-notifications-toggled"
	EventError                = "error"
)

var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrUnknownEvent      = errors.New("unknown event")
	ErrInvalidPayload    = errors.New("invalid payload")
)

// Envelope конверт сообщения
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode кодирует событие в конверт
func Encode(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		raw = b
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// DecodeEnvelope разбирает конверт без проверки полезной нагрузки
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrMalformedEnvelope)
	}
	return env, nil
}

// --- client -> relay ---

// Inbound входящее событие от клиента
type Inbound interface {
	EventName() string
}

// JoinSessionRequest запрос на вход в сессию
type JoinSessionRequest struct {
	UserName string `json:"userName"`
}

// LeaveSessionRequest явный выход без разрыва соединения
type LeaveSessionRequest struct{}

// DetectionRequest детекция от продюсера
type DetectionRequest struct {
	ObjectClass string    `json:"objectClass"`
	Confidence  *float64  `json:"confidence,omitempty"`
	BBox        []float64 `json:"bbox,omitempty"`
}

// VideoFrameMessage кадр; relay добавляет LastUpdate при рассылке
type VideoFrameMessage struct {
	UserID     string     `json:"userId"`
	UserName   string     `json:"userName"`
	FrameData  string     `json:"frameData"`
	Timestamp  string     `json:"timestamp"`
	LastUpdate *time.Time `json:"lastUpdate,omitempty"`
}

// StopVideoStream остановка трансляции
type StopVideoStream struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// RequestUsersList запрос списка участников
type RequestUsersList struct{}

// ToggleNotificationsRequest переключение уведомлений
type ToggleNotificationsRequest struct {
	Enabled *bool `json:"enabled"`
}

func (JoinSessionRequest) EventName() string         { return EventJoinSession }
func (LeaveSessionRequest) EventName() string        { return EventLeaveSession }
func (DetectionRequest) EventName() string           { return EventDetection }
func (VideoFrameMessage) EventName() string          { return EventVideoFrame }
func (StopVideoStream) EventName() string            { return EventStopVideoStream }
func (RequestUsersList) EventName() string           { return EventRequestUsersList }
func (ToggleNotificationsRequest) EventName() string { return EventToggleNotifications }

// --- relay -> client ---

// SessionJoined подтверждение входа, только отправителю
type SessionJoined struct {
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	ConnectedUsers int    `json:"connectedUsers"`
}

// UserPresence user-joined / user-left
type UserPresence struct {
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Timestamp time.Time `json:"timestamp"`
}

// NotificationsToggled состояние уведомлений
type NotificationsToggled struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message"`
}

// ErrorMessage отказ во входящем событии
type ErrorMessage struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}
