package proto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// MaxObjectClassLength предел длины метки класса
const MaxObjectClassLength = 64

// Limits ограничения входящих событий
type Limits struct {
	MaxFrameSize int // 0 = без ограничения
}

// DecodeInbound разбирает и проверяет входящее событие
func DecodeInbound(raw []byte, limits Limits) (Inbound, error) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return nil, err
	}

	switch env.Event {
	case EventJoinSession:
		var req JoinSessionRequest
		if err := decodeData(env, &req); err != nil {
			return nil, err
		}
		return req, nil

	case EventLeaveSession:
		return LeaveSessionRequest{}, nil

	case EventDetection:
		var req DetectionRequest
		if err := decodeData(env, &req); err != nil {
			return nil, err
		}
		if err := req.Validate(); err != nil {
			return nil, err
		}
		return req, nil

	case EventVideoFrame:
		var msg VideoFrameMessage
		if err := decodeData(env, &msg); err != nil {
			return nil, err
		}
		if msg.FrameData == "" {
			return nil, fmt.Errorf("%w: frameData is required", ErrInvalidPayload)
		}
		if limits.MaxFrameSize > 0 && len(msg.FrameData) > limits.MaxFrameSize {
			return nil, fmt.Errorf("%w: frame of %d bytes exceeds limit %d",
				ErrInvalidPayload, len(msg.FrameData), limits.MaxFrameSize)
		}
		msg.LastUpdate = nil
		return msg, nil

	case EventStopVideoStream:
		var msg StopVideoStream
		if err := decodeData(env, &msg); err != nil {
			return nil, err
		}
		return msg, nil

	case EventRequestUsersList:
		return RequestUsersList{}, nil

	case EventToggleNotifications:
		var req ToggleNotificationsRequest
		if err := decodeData(env, &req); err != nil {
			return nil, err
		}
		if req.Enabled == nil {
			return nil, fmt.Errorf("%w: enabled is required", ErrInvalidPayload)
		}
		return req, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// Validate проверяет детекцию
func (r *DetectionRequest) Validate() error {
	r.ObjectClass = strings.TrimSpace(r.ObjectClass)
	if r.ObjectClass == "" {
		return fmt.Errorf("%w: objectClass is required", ErrInvalidPayload)
	}
	if utf8.RuneCountInString(r.ObjectClass) > MaxObjectClassLength {
		return fmt.Errorf("%w: objectClass longer than %d", ErrInvalidPayload, MaxObjectClassLength)
	}
	if r.Confidence != nil {
		c := *r.Confidence
		if math.IsNaN(c) || c < 0 || c > 1 {
			return fmt.Errorf("%w: confidence must be in [0,1]", ErrInvalidPayload)
		}
	}
	if r.BBox != nil {
		if len(r.BBox) != 4 {
			return fmt.Errorf("%w: bbox must have 4 components, got %d", ErrInvalidPayload, len(r.BBox))
		}
		for _, v := range r.BBox {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: bbox components must be finite", ErrInvalidPayload)
			}
		}
	}
	return nil
}

// decodeData отсутствующая или null data даёт нулевое значение
func decodeData(env Envelope, v any) error {
	if len(env.Data) == 0 || bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Event, err)
	}
	return nil
}
