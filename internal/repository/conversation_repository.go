package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/repository/common"
)

// ErrConversationNotFound переписка не найдена.
var ErrConversationNotFound = errors.New("conversation not found")

const messageColumns = `id, conversation_id, sender_id, content, attachment_id, read_at, created_at`

// ConversationRepository хранит переписки и сообщения.
type ConversationRepository struct {
	db *sqlx.DB
}

// NewConversationRepository создаёт репозиторий переписок.
func NewConversationRepository(db *sqlx.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetOrCreate возвращает переписку клиента и исполнителя, создавая её при необходимости.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, clientID, freelancerID uuid.UUID, projectID *uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `
		SELECT id, project_id, client_id, freelancer_id, last_message_at, created_at
		FROM conversations
		WHERE client_id = $1 AND freelancer_id = $2 AND project_id IS NOT DISTINCT FROM $3`,
		clientID, freelancerID, projectID)
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation repository: find %w", err)
	}

	conv = models.Conversation{ClientID: clientID, FreelancerID: freelancerID, ProjectID: projectID}
	err = r.db.QueryRowxContext(ctx, `
		INSERT INTO conversations (project_id, client_id, freelancer_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`, projectID, clientID, freelancerID,
	).Scan(&conv.ID, &conv.CreatedAt)
	if err != nil {
		// Параллельный запрос успел создать ту же переписку.
		if isUniqueViolation(err) {
			return r.GetOrCreate(ctx, clientID, freelancerID, projectID)
		}
		return nil, fmt.Errorf("conversation repository: create %w", err)
	}
	return &conv, nil
}

// GetByID возвращает переписку.
func (r *ConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.db.GetContext(ctx, &conv, `
		SELECT id, project_id, client_id, freelancer_id, last_message_at, created_at
		FROM conversations WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("conversation repository: get by id %w", err)
	}
	return &conv, nil
}

// ListByUser возвращает переписки пользователя с числом непрочитанных сообщений.
func (r *ConversationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	query := `
		SELECT c.id, c.project_id, c.client_id, c.freelancer_id, c.last_message_at, c.created_at,
			(SELECT COUNT(*) FROM messages m
			 WHERE m.conversation_id = c.id AND m.sender_id <> $1 AND m.read_at IS NULL) AS unread_count
		FROM conversations c
		WHERE c.client_id = $1 OR c.freelancer_id = $1
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC
	`

	conversations := []models.Conversation{}
	if err := r.db.SelectContext(ctx, &conversations, query, userID); err != nil {
		return nil, fmt.Errorf("conversation repository: list by user %w", err)
	}
	return conversations, nil
}

// CreateMessage добавляет сообщение и сдвигает время последней активности.
func (r *ConversationRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.QueryRowxContext(ctx, `
			INSERT INTO messages (conversation_id, sender_id, content, attachment_id)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at`,
			msg.ConversationID, msg.SenderID, msg.Content, msg.AttachmentID,
		).Scan(&msg.ID, &msg.CreatedAt); err != nil {
			return fmt.Errorf("conversation repository: create message %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET last_message_at = $1 WHERE id = $2`, msg.CreatedAt, msg.ConversationID); err != nil {
			return fmt.Errorf("conversation repository: touch conversation %w", err)
		}
		return nil
	})
}

// ListMessages возвращает сообщения в хронологическом порядке.
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]models.Message, error) {
	messages := []models.Message{}
	err := r.db.SelectContext(ctx, &messages,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3`,
		conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("conversation repository: list messages %w", err)
	}
	return messages, nil
}

// MarkRead отмечает прочитанными входящие сообщения пользователя в переписке.
func (r *ConversationRepository) MarkRead(ctx context.Context, conversationID, readerID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET read_at = NOW()
		WHERE conversation_id = $1 AND sender_id <> $2 AND read_at IS NULL`, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("conversation repository: mark read %w", err)
	}
	return res.RowsAffected()
}

// CountUnread считает все непрочитанные входящие сообщения пользователя.
func (r *ConversationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE (c.client_id = $1 OR c.freelancer_id = $1) AND m.sender_id <> $1 AND m.read_at IS NULL`, userID)
	if err != nil {
		return 0, fmt.Errorf("conversation repository: count unread %w", err)
	}
	return count, nil
}
