package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
)

// NotificationRepository описывает взаимодействие сервиса с хранилищем уведомлений.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Notification, error)
	List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// NotificationService содержит бизнес-логику работы с уведомлениями.
type NotificationService struct {
	repo NotificationRepository
}

// NewNotificationService создаёт новый сервис уведомлений.
func NewNotificationService(repo NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo}
}

// SaveNotification сохраняет уведомление с payload {event, data}. Используется WS хабом.
func (s *NotificationService) SaveNotification(ctx context.Context, userID uuid.UUID, event string, data any) error {
	payload, err := json.Marshal(map[string]any{
		"event": event,
		"data":  data,
	})
	if err != nil {
		return apperror.Internal(err, "не удалось сериализовать уведомление")
	}

	notification := &models.Notification{
		UserID:  userID,
		Payload: payload,
	}
	return translate(s.repo.Create(ctx, notification), "не удалось сохранить уведомление")
}

// Get возвращает уведомление пользователя.
func (s *NotificationService) Get(ctx context.Context, id, userID uuid.UUID) (*models.Notification, error) {
	n, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		return nil, translate(err, "не удалось получить уведомление")
	}
	return n, nil
}

// List возвращает уведомления пользователя.
func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	limit, offset = normalizePage(limit, offset)
	items, err := s.repo.List(ctx, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, translate(err, "не удалось получить уведомления")
	}
	return items, nil
}

// MarkAsRead отмечает уведомление как прочитанное.
func (s *NotificationService) MarkAsRead(ctx context.Context, id, userID uuid.UUID) error {
	return translate(s.repo.MarkAsRead(ctx, id, userID), "не удалось отметить уведомление")
}

// MarkAllAsRead отмечает все уведомления пользователя как прочитанные.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.MarkAllAsRead(ctx, userID)
	if err != nil {
		return 0, translate(err, "не удалось отметить уведомления")
	}
	return n, nil
}

// Delete удаляет уведомление.
func (s *NotificationService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	return translate(s.repo.Delete(ctx, id, userID), "не удалось удалить уведомление")
}

// CountUnread возвращает количество непрочитанных уведомлений.
func (s *NotificationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, translate(err, "не удалось посчитать уведомления")
	}
	return n, nil
}
