package models

import (
	"time"

	"github.com/google/uuid"
)

// Contract договор между клиентом и исполнителем по принятому предложению.
type Contract struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	ProjectID    uuid.UUID  `db:"project_id" json:"project_id"`
	ProposalID   uuid.UUID  `db:"proposal_id" json:"proposal_id"`
	ClientID     uuid.UUID  `db:"client_id" json:"client_id"`
	FreelancerID uuid.UUID  `db:"freelancer_id" json:"freelancer_id"`
	TotalAmount  float64    `db:"total_amount" json:"total_amount"`
	PaidAmount   float64    `db:"paid_amount" json:"paid_amount"`
	Currency     string     `db:"currency" json:"currency"`
	Status       string     `db:"status" json:"status"`
	StartedAt    time.Time  `db:"started_at" json:"started_at"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`

	Milestones []Milestone `db:"-" json:"milestones,omitempty"`
}

// IsParticipant проверяет, является ли пользователь стороной договора.
func (c *Contract) IsParticipant(userID uuid.UUID) bool {
	return c.ClientID == userID || c.FreelancerID == userID
}

// Milestone этап договора со своей суммой и жизненным циклом.
type Milestone struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	ContractID         uuid.UUID  `db:"contract_id" json:"contract_id"`
	Position           int        `db:"position" json:"position"`
	Title              string     `db:"title" json:"title"`
	Description        *string    `db:"description" json:"description,omitempty"`
	Amount             float64    `db:"amount" json:"amount"`
	DueAt              *time.Time `db:"due_at" json:"due_at,omitempty"`
	Status             string     `db:"status" json:"status"`
	DeliverableNote    *string    `db:"deliverable_note" json:"deliverable_note,omitempty"`
	DeliverableMediaID *uuid.UUID `db:"deliverable_media_id" json:"deliverable_media_id,omitempty"`
	RevisionNote       *string    `db:"revision_note" json:"revision_note,omitempty"`
	InvoiceID          *uuid.UUID `db:"invoice_id" json:"invoice_id,omitempty"`
	FundedAt           *time.Time `db:"funded_at" json:"funded_at,omitempty"`
	SubmittedAt        *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	ApprovedAt         *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	PaidAt             *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}
