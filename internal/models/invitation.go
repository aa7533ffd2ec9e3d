package models

import (
	"time"

	"github.com/google/uuid"
)

// Invitation приглашение исполнителя в проект.
type Invitation struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	ProjectID    uuid.UUID  `db:"project_id" json:"project_id"`
	ClientID     uuid.UUID  `db:"client_id" json:"client_id"`
	FreelancerID uuid.UUID  `db:"freelancer_id" json:"freelancer_id"`
	Message      *string    `db:"message" json:"message,omitempty"`
	Status       string     `db:"status" json:"status"`
	ProposalID   *uuid.UUID `db:"proposal_id" json:"proposal_id,omitempty"`
	ExpiresAt    time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`

	ProjectTitle string `db:"project_title" json:"project_title,omitempty"`
}

// IsActive сообщает, ждёт ли приглашение действий.
func (i *Invitation) IsActive(now time.Time) bool {
	return i.Status == InvitationStatusPending && now.Before(i.ExpiresAt)
}
