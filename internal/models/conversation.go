package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation описывает переписку между клиентом и исполнителем.
type Conversation struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	ProjectID     *uuid.UUID `db:"project_id" json:"project_id,omitempty"`
	ClientID      uuid.UUID  `db:"client_id" json:"client_id"`
	FreelancerID  uuid.UUID  `db:"freelancer_id" json:"freelancer_id"`
	LastMessageAt *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`

	UnreadCount int `db:"unread_count" json:"unread_count"`
}

// IsParticipant проверяет, участвует ли пользователь в переписке.
func (c *Conversation) IsParticipant(userID uuid.UUID) bool {
	return c.ClientID == userID || c.FreelancerID == userID
}

// Counterpart возвращает второго участника переписки.
func (c *Conversation) Counterpart(userID uuid.UUID) uuid.UUID {
	if c.ClientID == userID {
		return c.FreelancerID
	}
	return c.ClientID
}

// Message описывает сообщение в переписке.
type Message struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ConversationID uuid.UUID  `db:"conversation_id" json:"conversation_id"`
	SenderID       uuid.UUID  `db:"sender_id" json:"sender_id"`
	Content        string     `db:"content" json:"content"`
	AttachmentID   *uuid.UUID `db:"attachment_id" json:"attachment_id,omitempty"`
	ReadAt         *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}
