package models

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

// NegotiationEntry одно встречное предложение в переговорах.
type NegotiationEntry struct {
	AuthorID   uuid.UUID     `json:"author_id"`
	AuthorRole string        `json:"author_role"`
	Amount     float64       `json:"amount"`
	Days       int           `json:"days"`
	Milestones MilestonePlan `json:"milestones,omitempty"`
	Message    string        `json:"message,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// NegotiationHistory хранится в JSONB колонке.
type NegotiationHistory []NegotiationEntry

// Value реализует driver.Valuer.
func (h NegotiationHistory) Value() (driver.Value, error) {
	return marshalJSONB(h, "[]")
}

// Scan реализует sql.Scanner.
func (h *NegotiationHistory) Scan(src any) error {
	return scanJSONB(src, h)
}

// Latest возвращает последнее предложение или nil.
func (h NegotiationHistory) Latest() *NegotiationEntry {
	if len(h) == 0 {
		return nil
	}
	return &h[len(h)-1]
}

// Proposal предложение исполнителя по проекту.
type Proposal struct {
	ID                 uuid.UUID          `db:"id" json:"id"`
	ProjectID          uuid.UUID          `db:"project_id" json:"project_id"`
	FreelancerID       uuid.UUID          `db:"freelancer_id" json:"freelancer_id"`
	InvitationID       *uuid.UUID         `db:"invitation_id" json:"invitation_id,omitempty"`
	CoverLetter        string             `db:"cover_letter" json:"cover_letter"`
	ProposedAmount     float64            `db:"proposed_amount" json:"proposed_amount"`
	ProposedDays       int                `db:"proposed_days" json:"proposed_days"`
	ProposedMilestones MilestonePlan      `db:"proposed_milestones" json:"proposed_milestones"`
	Status             string             `db:"status" json:"status"`
	NegotiationHistory NegotiationHistory `db:"negotiation_history" json:"negotiation_history"`
	FinalAmount        *float64           `db:"final_amount" json:"final_amount,omitempty"`
	FinalDays          *int               `db:"final_days" json:"final_days,omitempty"`
	FinalMilestones    *MilestonePlan     `db:"final_milestones" json:"final_milestones,omitempty"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
}

// CurrentTerms возвращает действующие условия: последнее встречное предложение
// либо исходные условия исполнителя.
func (p *Proposal) CurrentTerms() NegotiationEntry {
	if latest := p.NegotiationHistory.Latest(); latest != nil {
		return *latest
	}
	return NegotiationEntry{
		AuthorID:   p.FreelancerID,
		AuthorRole: RoleFreelancer,
		Amount:     p.ProposedAmount,
		Days:       p.ProposedDays,
		Milestones: p.ProposedMilestones,
		CreatedAt:  p.CreatedAt,
	}
}

// IsOpen сообщает, можно ли ещё вести переговоры.
func (p *Proposal) IsOpen() bool {
	return p.Status == ProposalStatusPending || p.Status == ProposalStatusNegotiating
}
