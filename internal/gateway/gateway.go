package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"detection-relay/internal/bus"
	"detection-relay/internal/config"
	"detection-relay/internal/controller"
	"detection-relay/internal/notify"
	"detection-relay/internal/types"
	"detection-relay/pkg/proto"
)

// ErrClosed роутер остановлен
var ErrClosed = errors.New("gateway is closed")

const commandBuffer = 1024

// Gateway релей событий. Единственная горутина роутера владеет реестром
// участников, журналом детекций, кешем кадров, статистикой и флагом уведомлений;
// обработчики соединений и HTTP только ставят команды в очередь.
type Gateway struct {
	config *config.Config
	logger *zap.Logger

	clients    *ClientManager
	registry   *controller.SessionRegistry
	detections *controller.DetectionLog
	frames     *controller.FrameRelay
	frameStats *controller.FrameStatsRepository

	notificationsEnabled bool
	notifier             notify.Sink
	exporter             *bus.Exporter

	wsUpgrader websocket.Upgrader
	limits     proto.Limits

	commands chan command
	stats    *GatewayStats

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// GatewayStats счетчики роутера
type GatewayStats struct {
	StartTime         time.Time
	MessagesReceived  atomic.Int64
	MessagesRejected  atomic.Int64
	FramesRelayed     atomic.Int64
	FramesThrottled   atomic.Int64
	DetectionsRelayed atomic.Int64
	Notifications     atomic.Int64
}

// Option настройка шлюза
type Option func(*Gateway)

// WithExporter экспорт событий во внешнюю шину
func WithExporter(e *bus.Exporter) Option {
	return func(g *Gateway) { g.exporter = e }
}

// WithNotifier канал уведомлений о детекциях
func WithNotifier(s notify.Sink) Option {
	return func(g *Gateway) { g.notifier = s }
}

// NewGateway создает новый экземпляр шлюза
func NewGateway(cfg *config.Config, logger *zap.Logger, opts ...Option) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())

	g := &Gateway{
		config:               cfg,
		logger:               logger,
		clients:              NewClientManager(),
		registry:             controller.NewSessionRegistry(cfg.Session.MaxNameLength),
		detections:           controller.NewDetectionLog(cfg.Detections.Capacity),
		frames:               controller.NewFrameRelay(),
		frameStats:           controller.NewFrameStatsRepository(cfg.Video.StatsWindow),
		notificationsEnabled: cfg.Notifications.Enabled,
		notifier:             notify.NopSink{},
		limits:               proto.Limits{MaxFrameSize: cfg.Video.MaxFrameSize},
		commands:             make(chan command, commandBuffer),
		stats:                &GatewayStats{StartTime: time.Now()},
		ctx:                  ctx,
		cancel:               cancel,
		done:                 make(chan struct{}),
	}
	g.wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		CheckOrigin:     g.checkOrigin,
	}

	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start запускает горутину роутера
func (g *Gateway) Start() {
	g.startOnce.Do(func() {
		go g.run()
		g.logger.Info("Gateway router started",
			zap.Int("detection_capacity", g.detections.Capacity()),
			zap.Bool("notifications_enabled", g.notificationsEnabled))
	})
}

// Stop останавливает роутер и закрывает все соединения
func (g *Gateway) Stop() {
	g.stopOnce.Do(func() {
		g.logger.Info("Shutting down gateway...")
		g.cancel()
		g.startOnce.Do(func() { close(g.done) })
		<-g.done
		g.logger.Info("Gateway stopped gracefully")
	})
}

// Done закрывается после остановки роутера
func (g *Gateway) Done() <-chan struct{} {
	return g.done
}

func (g *Gateway) run() {
	defer close(g.done)
	defer func() {
		closed := g.clients.CloseAll()
		if len(closed) > 0 {
			g.logger.Info("Clients disconnected on shutdown", zap.Int("count", len(closed)))
		}
	}()

	for {
		select {
		case <-g.ctx.Done():
			return
		case cmd := <-g.commands:
			cmd.apply(g)
		}
	}
}

// enqueue передает команду роутеру
func (g *Gateway) enqueue(ctx context.Context, cmd command) error {
	if g.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case g.commands <- cmd:
		return nil
	case <-g.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// do выполняет fn в горутине роутера и ждет завершения
func (g *Gateway) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := g.enqueue(ctx, queryCmd{fn: fn, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-g.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range g.config.WebSocket.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// --- команды ---

type command interface {
	apply(g *Gateway)
}

type connectCmd struct{ client *Client }

type disconnectCmd struct{ client *Client }

type inboundCmd struct {
	client *Client
	msg    proto.Inbound
}

type rejectCmd struct {
	client *Client
	event  string
	err    error
}

type queryCmd struct {
	fn   func()
	done chan struct{}
}

func (c connectCmd) apply(g *Gateway) {
	g.clients.Add(c.client)
	g.logger.Info("Client connected",
		zap.String("connection_id", c.client.ID),
		zap.String("role", string(c.client.Role)),
		zap.String("ip", c.client.IPAddress))
}

func (c disconnectCmd) apply(g *Gateway) {
	client, ok := g.clients.Remove(c.client.ID)
	if !ok {
		return
	}
	// те же шаги, что явные stop-video-stream и leave-session
	g.endStream(client, false)
	g.leave(client)

	g.logger.Info("Client disconnected",
		zap.String("connection_id", client.ID),
		zap.Int64("dropped_messages", client.Dropped()))
}

func (c rejectCmd) apply(g *Gateway) {
	g.stats.MessagesRejected.Add(1)
	g.logger.Warn("Rejected inbound message",
		zap.String("connection_id", c.client.ID),
		zap.String("event", c.event),
		zap.Error(c.err))
	g.sendTo(c.client, proto.EventError, proto.ErrorMessage{Event: c.event, Message: c.err.Error()})
}

func (c queryCmd) apply(_ *Gateway) {
	c.fn()
	close(c.done)
}

func (c inboundCmd) apply(g *Gateway) {
	g.stats.MessagesReceived.Add(1)

	switch msg := c.msg.(type) {
	case proto.JoinSessionRequest:
		g.join(c.client, msg)
	case proto.LeaveSessionRequest:
		if c.client.Joined() {
			g.endStream(c.client, false)
			g.leave(c.client)
		}
	case proto.DetectionRequest:
		g.recordDetection(c.client, msg)
	case proto.VideoFrameMessage:
		g.relayFrame(c.client, msg)
	case proto.StopVideoStream:
		if g.requireJoined(c.client, msg.EventName()) {
			g.endStream(c.client, true)
		}
	case proto.RequestUsersList:
		g.sendTo(c.client, proto.EventUsersList, g.registry.List())
	case proto.ToggleNotificationsRequest:
		g.setNotifications(*msg.Enabled, c.client.ID)
	default:
		g.logger.Warn("Unhandled inbound event", zap.String("event", c.msg.EventName()))
	}
}

// --- операции роутера ---

func (g *Gateway) join(c *Client, req proto.JoinSessionRequest) {
	p, created := g.registry.Join(c.ID, req.UserName)
	c.participantID = p.ID

	g.sendTo(c, proto.EventSessionJoined, proto.SessionJoined{
		UserID:         p.ID,
		UserName:       p.Name,
		ConnectedUsers: g.registry.Count(),
	})
	if !created {
		return
	}

	presence := proto.UserPresence{UserID: p.ID, UserName: p.Name, Timestamp: p.JoinedAt}
	g.broadcast(proto.EventUserJoined, presence, exceptClient(c))
	g.exporter.Emit(bus.TopicPresence, proto.EventUserJoined, presence)

	g.logger.Info("Participant joined",
		zap.String("participant_id", p.ID),
		zap.String("name", p.Name),
		zap.Int("participants", g.registry.Count()))
}

func (g *Gateway) leave(c *Client) {
	if !c.Joined() {
		return
	}
	p, ok := g.registry.Leave(c.participantID)
	c.participantID = ""
	if !ok {
		return
	}

	presence := proto.UserPresence{UserID: p.ID, UserName: p.Name, Timestamp: time.Now()}
	g.broadcast(proto.EventUserLeft, presence, nil)
	g.exporter.Emit(bus.TopicPresence, proto.EventUserLeft, presence)

	g.logger.Info("Participant left",
		zap.String("participant_id", p.ID),
		zap.String("name", p.Name),
		zap.Int("participants", g.registry.Count()))
}

func (g *Gateway) recordDetection(c *Client, req proto.DetectionRequest) {
	if !g.requireJoined(c, req.EventName()) {
		return
	}
	p, _ := g.registry.Get(c.participantID)

	event := types.DetectionEvent{
		ID:          uuid.NewString(),
		UserID:      p.ID,
		UserName:    p.Name,
		ObjectClass: req.ObjectClass,
		Confidence:  req.Confidence,
		BBox:        req.BBox,
		Timestamp:   time.Now(),
	}
	if evicted := g.detections.Record(event); evicted > 0 {
		g.logger.Debug("Detection log rolled over", zap.Int("evicted", evicted))
	}
	g.stats.DetectionsRelayed.Add(1)

	g.broadcast(proto.EventNewDetection, event, exceptClient(c))
	g.exporter.Emit(bus.TopicDetection, proto.EventNewDetection, event)

	if g.notificationsEnabled && g.notifier.Notify(event) {
		g.stats.Notifications.Add(1)
	}
}

func (g *Gateway) relayFrame(c *Client, msg proto.VideoFrameMessage) {
	if !g.requireJoined(c, msg.EventName()) {
		return
	}
	p, _ := g.registry.Get(c.participantID)

	_, streaming := g.frames.Get(p.ID)
	frame := g.frames.Put(types.VideoFrame{
		UserID:    p.ID,
		UserName:  p.Name,
		FrameData: msg.FrameData,
		Timestamp: msg.Timestamp,
	})
	g.frameStats.UpdateStats(frame)
	g.stats.FramesRelayed.Add(1)

	if !streaming {
		g.logger.Info("Video stream started", zap.String("participant_id", p.ID))
	}
	g.broadcast(proto.EventVideoFrame, frame, observersOnly)
}

// endStream убирает кадр участника. Явный stop всегда рассылает уведомление
// наблюдателям, при отключении только если кадр был.
func (g *Gateway) endStream(c *Client, explicit bool) {
	if !c.Joined() {
		return
	}
	p, ok := g.registry.Get(c.participantID)
	if !ok {
		return
	}

	_, hadFrame := g.frames.Remove(p.ID)
	g.frameStats.RemoveStats(p.ID)
	if !hadFrame && !explicit {
		return
	}

	notice := proto.StopVideoStream{UserID: p.ID, UserName: p.Name}
	g.broadcast(proto.EventStopVideoStream, notice, observersOnly)
	g.exporter.Emit(bus.TopicStream, proto.EventStopVideoStream, notice)

	if hadFrame {
		g.logger.Info("Video stream stopped", zap.String("participant_id", p.ID))
	}
}

func (g *Gateway) setNotifications(enabled bool, source string) {
	g.notificationsEnabled = enabled

	msg := "Discord notifications disabled"
	if enabled {
		msg = "Discord notifications enabled"
	}
	payload := proto.NotificationsToggled{Enabled: enabled, Message: msg}

	g.broadcast(proto.EventNotificationsToggled, payload, nil)
	g.exporter.Emit(bus.TopicNotifications, proto.EventNotificationsToggled, payload)

	g.logger.Info("Notifications toggled",
		zap.Bool("enabled", enabled),
		zap.String("source", source))
}

func (g *Gateway) requireJoined(c *Client, event string) bool {
	if c.Joined() {
		return true
	}
	g.logger.Warn("Dropping event from connection that has not joined",
		zap.String("connection_id", c.ID),
		zap.String("event", event))
	return false
}

// --- рассылка ---

func exceptClient(sender *Client) func(*Client) bool {
	return func(c *Client) bool { return c != sender }
}

func observersOnly(c *Client) bool {
	return c.IsObserver()
}

func (g *Gateway) sendTo(c *Client, event string, data any) {
	msg, err := proto.Encode(event, data)
	if err != nil {
		g.logger.Error("Failed to encode message", zap.String("event", event), zap.Error(err))
		return
	}
	if !c.Send(msg) {
		g.logger.Warn("Client send buffer full, dropping message",
			zap.String("connection_id", c.ID),
			zap.String("event", event))
	}
}

// broadcast кодирует сообщение один раз и рассылает соединениям, прошедшим filter
func (g *Gateway) broadcast(event string, data any, filter func(*Client) bool) {
	msg, err := proto.Encode(event, data)
	if err != nil {
		g.logger.Error("Failed to encode message", zap.String("event", event), zap.Error(err))
		return
	}

	for _, c := range g.clients.All() {
		if filter != nil && !filter(c) {
			continue
		}
		if !c.Send(msg) {
			g.logger.Debug("Client send buffer full, dropping message",
				zap.String("connection_id", c.ID),
				zap.String("event", event))
		}
	}
}
