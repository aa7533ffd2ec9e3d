package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/admarket-backend/internal/events"
	"github.com/ignatzorin/admarket-backend/internal/goroutine"
	"github.com/ignatzorin/admarket-backend/internal/logger"
	"github.com/ignatzorin/admarket-backend/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	publishTimeout  = 5 * time.Second
)

// Notifier доставляет события пользователям в реальном времени.
type Notifier interface {
	// BroadcastToUser отправляет событие и сохраняет его как уведомление.
	BroadcastToUser(userID uuid.UUID, event string, data any) error
	// Push отправляет событие без сохранения.
	Push(userID uuid.UUID, event string, data any) error
}

type noopNotifier struct{}

func (noopNotifier) BroadcastToUser(uuid.UUID, string, any) error { return nil }
func (noopNotifier) Push(uuid.UUID, string, any) error            { return nil }

func notifierOrNoop(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

func publisherOrNoop(p events.Publisher) events.Publisher {
	if p == nil {
		return events.NoopPublisher{}
	}
	return p
}

// notify отправляет событие каждому получателю, ошибки только логируются.
func notify(n Notifier, event string, data any, recipients ...uuid.UUID) {
	for _, userID := range recipients {
		if err := n.BroadcastToUser(userID, event, data); err != nil {
			logger.Log.WithFields(logrus.Fields{
				"event":   event,
				"user_id": userID,
			}).WithError(err).Warn("service: не удалось отправить уведомление")
		}
	}
}

// publishAsync публикует доменное событие после коммита, не задерживая ответ.
func publishAsync(p events.Publisher, event events.Event) {
	goroutine.Detached("events.publish."+event.Type, publishTimeout, func(ctx context.Context) {
		if err := p.Publish(ctx, event); err != nil {
			logger.Component("events").WithFields(logrus.Fields{
				"event": event.Type,
				"id":    event.ID,
			}).WithError(err).Error("events: не удалось опубликовать событие")
		}
	})
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Page страница результатов с общим количеством.
type Page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func newPage[T any](items []T, total, limit, offset int) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{Items: items, Total: total, Limit: limit, Offset: offset}
}

// Actor пользователь, выполняющий операцию.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// IsAdmin сообщает, является ли пользователь администратором.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}
