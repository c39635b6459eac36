// Package client websocket клиент релея для продюсера и наблюдателя.
//
// Run держит соединение, при обрыве переподключается ограниченное число раз
// с фиксированной задержкой. Запись в сокет идет из одной горутины через
// очередь; при отсутствии соединения или переполнении очереди сообщение
// отбрасывается с предупреждением.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"detection-relay/internal/config"
	"detection-relay/internal/types"
	"detection-relay/pkg/proto"
)

var (
	ErrNotConnected       = errors.New("not connected to relay")
	ErrSendBufferFull     = errors.New("send buffer is full")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

const writeWait = 10 * time.Second

// Config настройки клиента
type Config struct {
	URL                  string
	Role                 types.Role
	UserName             string
	AutoJoin             bool
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	OutboundBuffer       int
}

// ConfigFromProducer настройки клиента продюсера
func ConfigFromProducer(p config.ProducerConfig) Config {
	return Config{
		URL:                  p.RelayURL,
		Role:                 types.RoleProducer,
		UserName:             p.UserName,
		AutoJoin:             true,
		MaxReconnectAttempts: p.MaxReconnectAttempts,
		ReconnectDelay:       p.ReconnectDelay,
		OutboundBuffer:       p.OutboundBuffer,
	}
}

// EventHandler вызывается из читающей горутины на каждое входящее событие
type EventHandler func(env proto.Envelope)

// Client клиент релея
type Client struct {
	cfg     Config
	logger  *zap.Logger
	handler EventHandler
	dialer  *websocket.Dialer

	// mu защищает out и identity; закрытие out только под записью
	mu       sync.RWMutex
	out      chan []byte
	identity proto.SessionJoined
	joined   bool

	joinedOnce sync.Once
	joinedCh   chan struct{}

	onConnect func()
}

// New создает клиент
func New(cfg Config, logger *zap.Logger, handler EventHandler) *Client {
	if cfg.OutboundBuffer <= 0 {
		cfg.OutboundBuffer = 64
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.Role == "" {
		cfg.Role = types.RoleProducer
	}
	if handler == nil {
		handler = func(proto.Envelope) {}
	}
	return &Client{
		cfg:      cfg,
		logger:   logger,
		handler:  handler,
		dialer:   websocket.DefaultDialer,
		joinedCh: make(chan struct{}),
	}
}

// OnConnect задает функцию, вызываемую после каждого установленного соединения.
// Вызывать до Run.
func (c *Client) OnConnect(fn func()) {
	c.onConnect = fn
}

// Run держит соединение до отмены ctx. Возвращает ErrReconnectExhausted,
// если подряд не удалось MaxReconnectAttempts переподключений.
func (c *Client) Run(ctx context.Context) error {
	target, err := c.endpoint()
	if err != nil {
		return err
	}

	attempts := 0
	for {
		established, err := c.session(ctx, target)
		if ctx.Err() != nil {
			return nil
		}
		if established {
			attempts = 0
		}

		attempts++
		if attempts > c.cfg.MaxReconnectAttempts {
			c.logger.Error("Giving up on relay connection",
				zap.Int("attempts", attempts-1),
				zap.Error(err))
			return fmt.Errorf("%w (%d attempts): %v", ErrReconnectExhausted, attempts-1, err)
		}

		c.logger.Warn("Relay connection lost, reconnecting",
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", c.cfg.MaxReconnectAttempts),
			zap.Duration("delay", c.cfg.ReconnectDelay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("role", string(c.cfg.Role))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// session одно соединение: возвращает true, если соединение было установлено
func (c *Client) session(ctx context.Context, target string) (bool, error) {
	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return false, fmt.Errorf("dial relay: %w", err)
	}
	c.logger.Info("Connected to relay",
		zap.String("url", target),
		zap.String("role", string(c.cfg.Role)))

	out := make(chan []byte, c.cfg.OutboundBuffer)
	c.mu.Lock()
	c.out = out
	c.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx, conn, out)
	}()

	if c.cfg.AutoJoin {
		c.Join(c.cfg.UserName)
	}
	if c.onConnect != nil {
		c.onConnect()
	}

	err = c.readLoop(conn)

	c.mu.Lock()
	c.out = nil
	c.joined = false
	close(out)
	c.mu.Unlock()

	wg.Wait()
	return true, err
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		env, err := proto.DecodeEnvelope(raw)
		if err != nil {
			c.logger.Warn("Malformed message from relay", zap.Error(err))
			continue
		}

		switch env.Event {
		case proto.EventSessionJoined:
			var joined proto.SessionJoined
			if err := json.Unmarshal(env.Data, &joined); err != nil {
				c.logger.Warn("Malformed session-joined", zap.Error(err))
				continue
			}
			c.setIdentity(joined)
		case proto.EventError:
			var msg proto.ErrorMessage
			if err := json.Unmarshal(env.Data, &msg); err == nil {
				c.logger.Warn("Relay rejected event",
					zap.String("event", msg.Event),
					zap.String("message", msg.Message))
			}
		}

		c.handler(env)
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan []byte) {
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			c.flush(conn, out)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case msg, ok := <-out:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("Relay write error", zap.Error(err))
				return
			}
		}
	}
}

// flush дописывает уже поставленные в очередь сообщения перед закрытием
func (c *Client) flush(conn *websocket.Conn, out <-chan []byte) {
	for {
		select {
		case msg, ok := <-out:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) setIdentity(joined proto.SessionJoined) {
	c.mu.Lock()
	c.identity = joined
	c.joined = true
	c.mu.Unlock()

	c.joinedOnce.Do(func() { close(c.joinedCh) })
	c.logger.Info("Joined session",
		zap.String("user_id", joined.UserID),
		zap.String("user_name", joined.UserName),
		zap.Int("connected_users", joined.ConnectedUsers))
}

// Connected соединение с релеем установлено
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.out != nil
}

// Joined участник вошел в сессию на текущем соединении
func (c *Client) Joined() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.joined
}

// Identity последнее подтверждение входа
func (c *Client) Identity() proto.SessionJoined {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// WaitJoined ждет первого session-joined
func (c *Client) WaitJoined(ctx context.Context) (proto.SessionJoined, error) {
	select {
	case <-c.joinedCh:
		return c.Identity(), nil
	case <-ctx.Done():
		return proto.SessionJoined{}, ctx.Err()
	}
}

func (c *Client) send(event string, data any) error {
	msg, err := proto.Encode(event, data)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.out == nil {
		c.logger.Warn("Not connected to relay, dropping event", zap.String("event", event))
		return ErrNotConnected
	}
	select {
	case c.out <- msg:
		return nil
	default:
		c.logger.Warn("Send buffer full, dropping event", zap.String("event", event))
		return ErrSendBufferFull
	}
}

// Join входит в сессию под именем name
func (c *Client) Join(name string) error {
	return c.send(proto.EventJoinSession, proto.JoinSessionRequest{UserName: name})
}

// Leave выходит из сессии, соединение остается
func (c *Client) Leave() error {
	if err := c.send(proto.EventLeaveSession, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.joined = false
	c.mu.Unlock()
	return nil
}

func (c *Client) SendDetection(req proto.DetectionRequest) error {
	return c.send(proto.EventDetection, req)
}

func (c *Client) SendFrame(msg proto.VideoFrameMessage) error {
	return c.send(proto.EventVideoFrame, msg)
}

// StopStream сообщает об остановке трансляции; идентичность релей берет из соединения
func (c *Client) StopStream() error {
	id := c.Identity()
	return c.send(proto.EventStopVideoStream, proto.StopVideoStream{UserID: id.UserID, UserName: id.UserName})
}

func (c *Client) RequestUsers() error {
	return c.send(proto.EventRequestUsersList, nil)
}

func (c *Client) ToggleNotifications(enabled bool) error {
	return c.send(proto.EventToggleNotifications, proto.ToggleNotificationsRequest{Enabled: &enabled})
}
