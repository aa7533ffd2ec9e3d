package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/admarket-backend/internal/logger"
	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/admarket-backend/internal/validation"
)

const eventMessageNew = "messages.new"

// ConversationRepository зависимости ConversationService.
type ConversationRepository interface {
	GetOrCreate(ctx context.Context, clientID, freelancerID uuid.UUID, projectID *uuid.UUID) (*models.Conversation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]models.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// ConversationService переписка клиентов и исполнителей.
type ConversationService struct {
	repo     ConversationRepository
	users    UserReader
	notifier Notifier
}

// NewConversationService создаёт сервис переписок.
func NewConversationService(repo ConversationRepository, users UserReader, notifier Notifier) *ConversationService {
	return &ConversationService{repo: repo, users: users, notifier: notifierOrNoop(notifier)}
}

// Start возвращает переписку actor с другим пользователем, создавая её при необходимости.
// Переписка возможна только между клиентом и исполнителем.
func (s *ConversationService) Start(ctx context.Context, actor Actor, otherID uuid.UUID, projectID *uuid.UUID) (*models.Conversation, error) {
	if otherID == actor.ID {
		return nil, apperror.Validation("нельзя начать переписку с самим собой")
	}

	other, err := s.users.GetByID(ctx, otherID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить собеседника")
	}
	if !other.IsActive {
		return nil, apperror.NotFound("пользователь не найден")
	}

	var clientID, freelancerID uuid.UUID
	switch {
	case actor.Role == models.RoleClient && other.Role == models.RoleFreelancer:
		clientID, freelancerID = actor.ID, other.ID
	case actor.Role == models.RoleFreelancer && other.Role == models.RoleClient:
		clientID, freelancerID = other.ID, actor.ID
	default:
		return nil, apperror.Validation("переписка возможна только между клиентом и исполнителем")
	}

	conv, err := s.repo.GetOrCreate(ctx, clientID, freelancerID, projectID)
	if err != nil {
		return nil, translate(err, "не удалось открыть переписку")
	}
	return conv, nil
}

// List возвращает переписки пользователя.
func (s *ConversationService) List(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, translate(err, "не удалось получить переписки")
	}
	return items, nil
}

func (s *ConversationService) getParticipant(ctx context.Context, userID, id uuid.UUID) (*models.Conversation, error) {
	conv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "не удалось загрузить переписку")
	}
	if !conv.IsParticipant(userID) {
		return nil, apperror.Forbidden("вы не участник этой переписки")
	}
	return conv, nil
}

// Messages возвращает сообщения переписки.
func (s *ConversationService) Messages(ctx context.Context, userID, id uuid.UUID, limit, offset int) ([]models.Message, error) {
	if _, err := s.getParticipant(ctx, userID, id); err != nil {
		return nil, err
	}
	limit, offset = normalizePage(limit, offset)
	items, err := s.repo.ListMessages(ctx, id, limit, offset)
	if err != nil {
		return nil, translate(err, "не удалось получить сообщения")
	}
	return items, nil
}

// Send отправляет сообщение и пушит его собеседнику.
func (s *ConversationService) Send(ctx context.Context, userID, id uuid.UUID, content string, attachmentID *uuid.UUID) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if err := validation.ValidateMessageContent(content); err != nil {
		return nil, validationError(err)
	}

	conv, err := s.getParticipant(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       userID,
		Content:        content,
		AttachmentID:   attachmentID,
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, translate(err, "не удалось отправить сообщение")
	}

	// сообщения не дублируются в уведомлениях
	recipient := conv.Counterpart(userID)
	if err := s.notifier.Push(recipient, eventMessageNew, msg); err != nil {
		logger.Log.WithFields(logrus.Fields{
			"conversation_id": conv.ID,
			"user_id":         recipient,
		}).WithError(err).Warn("messages: не удалось отправить push")
	}
	return msg, nil
}

// MarkRead отмечает входящие сообщения прочитанными.
func (s *ConversationService) MarkRead(ctx context.Context, userID, id uuid.UUID) (int64, error) {
	conv, err := s.getParticipant(ctx, userID, id)
	if err != nil {
		return 0, err
	}
	n, err := s.repo.MarkRead(ctx, conv.ID, userID)
	if err != nil {
		return 0, translate(err, "не удалось отметить сообщения")
	}
	if n > 0 {
		_ = s.notifier.Push(conv.Counterpart(userID), "messages.read", map[string]any{
			"conversation_id": conv.ID,
			"reader_id":       userID,
		})
	}
	return n, nil
}

// CountUnread возвращает число непрочитанных сообщений пользователя.
func (s *ConversationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, translate(err, "не удалось посчитать сообщения")
	}
	return n, nil
}
