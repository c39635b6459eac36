package gateway

import (
	"context"
	"time"

	"detection-relay/internal/types"
)

// Status сводка состояния релея
type Status struct {
	Uptime               time.Duration `json:"-"`
	UptimeSeconds        float64       `json:"uptime_seconds"`
	Connections          int           `json:"connections"`
	Producers            int           `json:"producers"`
	Observers            int           `json:"observers"`
	Participants         int           `json:"participants"`
	ActiveStreams        int           `json:"active_streams"`
	Detections           int           `json:"detections"`
	DetectionCapacity    int           `json:"detection_capacity"`
	NotificationsEnabled bool          `json:"notifications_enabled"`
	MessagesReceived     int64         `json:"messages_received"`
	MessagesRejected     int64         `json:"messages_rejected"`
	FramesRelayed        int64         `json:"frames_relayed"`
	FramesThrottled      int64         `json:"frames_throttled"`
	DetectionsRelayed    int64         `json:"detections_relayed"`
	NotificationsSent    int64         `json:"notifications_sent"`
	ExportedEvents       int64         `json:"exported_events"`
	ExportDropped        int64         `json:"export_dropped"`
}

// ConnectionCount количество соединений без обращения к роутеру
func (g *Gateway) ConnectionCount() int {
	return g.clients.Count()
}

// Status возвращает сводку состояния
func (g *Gateway) Status(ctx context.Context) (Status, error) {
	var st Status
	err := g.do(ctx, func() {
		roles := g.clients.CountByRole()
		st = Status{
			Connections:          g.clients.Count(),
			Producers:            roles[types.RoleProducer],
			Observers:            roles[types.RoleObserver],
			Participants:         g.registry.Count(),
			ActiveStreams:        g.frames.Len(),
			Detections:           g.detections.Len(),
			DetectionCapacity:    g.detections.Capacity(),
			NotificationsEnabled: g.notificationsEnabled,
		}
	})
	if err != nil {
		return Status{}, err
	}

	st.Uptime = time.Since(g.stats.StartTime)
	st.UptimeSeconds = st.Uptime.Seconds()
	st.MessagesReceived = g.stats.MessagesReceived.Load()
	st.MessagesRejected = g.stats.MessagesRejected.Load()
	st.FramesRelayed = g.stats.FramesRelayed.Load()
	st.FramesThrottled = g.stats.FramesThrottled.Load()
	st.DetectionsRelayed = g.stats.DetectionsRelayed.Load()
	st.NotificationsSent = g.stats.Notifications.Load()
	st.ExportedEvents = g.exporter.Sent()
	st.ExportDropped = g.exporter.Dropped()
	return st, nil
}

// Participants снимок реестра участников
func (g *Gateway) Participants(ctx context.Context) ([]types.Participant, error) {
	var out []types.Participant
	err := g.do(ctx, func() { out = g.registry.List() })
	return out, err
}

// Detections снимок журнала детекций, новые первыми
func (g *Gateway) Detections(ctx context.Context) ([]types.DetectionEvent, error) {
	var out []types.DetectionEvent
	err := g.do(ctx, func() { out = g.detections.Snapshot() })
	return out, err
}

// ActiveStreams последние кадры всех транслирующих участников
func (g *Gateway) ActiveStreams(ctx context.Context) ([]types.VideoFrame, error) {
	var out []types.VideoFrame
	err := g.do(ctx, func() { out = g.frames.Snapshot() })
	return out, err
}

// LatestFrame последний кадр участника
func (g *Gateway) LatestFrame(ctx context.Context, userID string) (types.VideoFrame, bool, error) {
	var (
		frame types.VideoFrame
		ok    bool
	)
	err := g.do(ctx, func() { frame, ok = g.frames.Get(userID) })
	return frame, ok, err
}

// FrameStats статистика кадров по участникам и суммарная
func (g *Gateway) FrameStats(ctx context.Context) ([]types.FrameStats, map[string]interface{}, error) {
	var (
		perUser []types.FrameStats
		total   map[string]interface{}
	)
	err := g.do(ctx, func() {
		perUser = g.frameStats.GetAllStats()
		total = g.frameStats.GetTotalStats()
	})
	return perUser, total, err
}

// NotificationsEnabled состояние переключателя уведомлений
func (g *Gateway) NotificationsEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	err := g.do(ctx, func() { enabled = g.notificationsEnabled })
	return enabled, err
}

// SetNotifications переключает уведомления и рассылает состояние всем соединениям
func (g *Gateway) SetNotifications(ctx context.Context, enabled bool, source string) error {
	return g.do(ctx, func() { g.setNotifications(enabled, source) })
}
