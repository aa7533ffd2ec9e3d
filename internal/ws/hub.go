package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/admarket-backend/internal/goroutine"
	"github.com/ignatzorin/admarket-backend/internal/logger"
)

// NotificationSaver сохраняет уведомление в БД.
type NotificationSaver interface {
	SaveNotification(ctx context.Context, userID uuid.UUID, event string, data any) error
}

const saveTimeout = 5 * time.Second

// Hub управляет всеми WebSocket клиентами.
type Hub struct {
	mu                sync.RWMutex
	clients           map[uuid.UUID]map[*Client]struct{}
	register          chan *Client
	unregister        chan *Client
	broadcast         chan message
	done              chan struct{}
	notificationSaver NotificationSaver
}

type message struct {
	userID  uuid.UUID
	payload []byte
}

// Envelope формат сообщения для клиента: type содержит имя события, data полезную нагрузку.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// NewHub создаёт новый хаб.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 64),
		done:       make(chan struct{}),
	}
}

// SetNotificationSaver устанавливает сервис для сохранения уведомлений.
func (h *Hub) SetNotificationSaver(saver NotificationSaver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notificationSaver = saver
}

// Run обслуживает регистрацию клиентов и рассылку до отмены ctx.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.send(msg.userID, msg.payload)
		}
	}
}

// Register добавляет клиента.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// Unregister удаляет клиента.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastToUser сохраняет уведомление и отправляет его онлайн клиентам пользователя.
func (h *Hub) BroadcastToUser(userID uuid.UUID, event string, data any) error {
	h.mu.RLock()
	saver := h.notificationSaver
	h.mu.RUnlock()

	if saver != nil {
		goroutine.Detached("ws.save_notification", saveTimeout, func(ctx context.Context) {
			if err := saver.SaveNotification(ctx, userID, event, data); err != nil {
				logger.Component("ws").WithFields(logrus.Fields{
					"user_id": userID,
					"event":   event,
				}).WithError(err).Warn("ws: не удалось сохранить уведомление")
			}
		})
	}

	return h.Push(userID, event, data)
}

// Push отправляет событие онлайн клиентам без сохранения в БД.
func (h *Hub) Push(userID uuid.UUID, event string, data any) error {
	raw, err := json.Marshal(Envelope{Type: event, Data: data})
	if err != nil {
		return fmt.Errorf("ws: не удалось сериализовать сообщение: %w", err)
	}

	select {
	case h.broadcast <- message{userID: userID, payload: raw}:
	default:
		logger.Component("ws").WithField("event", event).Warn("ws: очередь рассылки переполнена, сообщение пропущено")
	}
	return nil
}

// OnlineCount возвращает число подключённых пользователей.
func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]struct{})
	}
	h.clients[client.userID][client] = struct{}{}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.userID]; ok {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			close(client.send)
		}
		if len(clients) == 0 {
			delete(h.clients, client.userID)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, clients := range h.clients {
		for client := range clients {
			close(client.send)
		}
		delete(h.clients, userID)
	}
}

func (h *Hub) send(userID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
			// медленный клиент отключается, чтобы не блокировать хаб
			goroutine.SafeGo("ws.close_slow_client", client.Close)
		}
	}
}
