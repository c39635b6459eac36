package gateway

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"detection-relay/internal/types"
)

// Client websocket соединение
type Client struct {
	ID          string
	Role        types.Role
	IPAddress   string
	UserAgent   string
	ConnectedAt time.Time
	SendChan    chan []byte

	conn         *websocket.Conn
	frameLimiter *rate.Limiter // nil = без лимита

	// поля ниже принадлежат горутине роутера
	participantID string
	closed        bool

	dropped atomic.Int64
}

// IsObserver соединение в роли наблюдателя
func (c *Client) IsObserver() bool {
	return c.Role == types.RoleObserver
}

// Joined соединение вошло в сессию
func (c *Client) Joined() bool {
	return c.participantID != ""
}

// Send ставит сообщение в очередь записи, при переполнении сообщение отбрасывается
func (c *Client) Send(msg []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.SendChan <- msg:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Dropped количество отброшенных исходящих сообщений
func (c *Client) Dropped() int64 {
	return c.dropped.Load()
}

// allowFrame проверяет входящий лимит кадров
func (c *Client) allowFrame() bool {
	return c.frameLimiter == nil || c.frameLimiter.Allow()
}

// ClientManager управляет соединениями. Добавление, удаление и рассылка
// выполняются горутиной роутера; мьютекс нужен для счетчиков из HTTP.
type ClientManager struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewClientManager() *ClientManager {
	return &ClientManager{
		clients: make(map[string]*Client),
	}
}

// Add регистрирует соединение
func (cm *ClientManager) Add(c *Client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.clients[c.ID] = c
}

// Get возвращает соединение по ID
func (cm *ClientManager) Get(id string) (*Client, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	c, ok := cm.clients[id]
	return c, ok
}

// Remove удаляет соединение и закрывает его очередь записи
func (cm *ClientManager) Remove(id string) (*Client, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	c, ok := cm.clients[id]
	if !ok {
		return nil, false
	}
	c.closed = true
	close(c.SendChan)
	delete(cm.clients, id)
	return c, true
}

// All возвращает соединения в порядке подключения
func (cm *ClientManager) All() []*Client {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	out := make([]*Client, 0, len(cm.clients))
	for _, c := range cm.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Count количество соединений
func (cm *ClientManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

// CountByRole количество соединений по ролям
func (cm *ClientManager) CountByRole() map[types.Role]int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	counts := map[types.Role]int{types.RoleProducer: 0, types.RoleObserver: 0}
	for _, c := range cm.clients {
		counts[c.Role]++
	}
	return counts
}

// CloseAll закрывает все соединения
func (cm *ClientManager) CloseAll() []*Client {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	closed := make([]*Client, 0, len(cm.clients))
	for id, c := range cm.clients {
		c.closed = true
		close(c.SendChan)
		delete(cm.clients, id)
		closed = append(closed, c)
	}
	return closed
}
