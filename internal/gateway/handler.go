package gateway

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"detection-relay/internal/types"
	"detection-relay/pkg/proto"
)

// readLimitSlack запас на JSON конверт поверх MaxFrameSize
const readLimitSlack = 64 * 1024

// ServeWS принимает websocket соединение. Роль задается параметром ?role=
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := g.newClient(conn, r)
	if err := g.enqueue(r.Context(), connectCmd{client: client}); err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay is shutting down"))
		conn.Close()
		return
	}

	go g.handleWebSocketSession(client)
}

func (g *Gateway) newClient(conn *websocket.Conn, r *http.Request) *Client {
	client := &Client{
		ID:          uuid.NewString(),
		Role:        types.ParseRole(r.URL.Query().Get("role")),
		IPAddress:   getIPAddress(r),
		UserAgent:   r.UserAgent(),
		ConnectedAt: time.Now(),
		SendChan:    make(chan []byte, g.config.WebSocket.SendBuffer),
		conn:        conn,
	}
	if fps := g.config.Video.MaxFPS; fps > 0 {
		client.frameLimiter = rate.NewLimiter(rate.Limit(fps), fps)
	}
	return client
}

// handleWebSocketSession обрабатывает WebSocket сессию
func (g *Gateway) handleWebSocketSession(client *Client) {
	go g.writeWebSocketMessages(client)
	g.readWebSocketMessages(client)

	if err := g.enqueue(context.Background(), disconnectCmd{client: client}); err != nil {
		// роутер остановлен, очередь записи уже закрыта
		client.conn.Close()
	}
}

// readWebSocketMessages читает сообщения из WebSocket
func (g *Gateway) readWebSocketMessages(client *Client) {
	conn := client.conn
	if g.limits.MaxFrameSize > 0 {
		conn.SetReadLimit(int64(g.limits.MaxFrameSize) + readLimitSlack)
	}
	pongWait := g.config.WebSocket.PongWait
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				g.logger.Warn("WebSocket read error",
					zap.String("connection_id", client.ID),
					zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		if messageType != websocket.TextMessage {
			continue
		}

		var cmd command
		msg, err := proto.DecodeInbound(message, g.limits)
		switch {
		case err != nil:
			cmd = rejectCmd{client: client, event: eventName(message), err: err}
		case msg.EventName() == proto.EventVideoFrame && !client.allowFrame():
			g.stats.FramesThrottled.Add(1)
			continue
		default:
			cmd = inboundCmd{client: client, msg: msg}
		}

		if err := g.enqueue(context.Background(), cmd); err != nil {
			return
		}
	}
}

// writeWebSocketMessages пишет сообщения в WebSocket
func (g *Gateway) writeWebSocketMessages(client *Client) {
	conn := client.conn
	writeWait := g.config.WebSocket.WriteWait
	ticker := time.NewTicker(g.config.WebSocket.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.SendChan:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				g.logger.Debug("WebSocket write error",
					zap.String("connection_id", client.ID),
					zap.Error(err))
				return
			}

		case <-ticker.C:
			// Ping для поддержания соединения
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// eventName имя события из сырого сообщения для логов
func eventName(raw []byte) string {
	if env, err := proto.DecodeEnvelope(raw); err == nil {
		return env.Event
	}
	return ""
}

// Вспомогательная функция для получения IP адреса
func getIPAddress(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
