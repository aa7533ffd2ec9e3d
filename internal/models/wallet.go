package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ClientWallet баланс клиента: свободные и заблокированные в escrow средства.
type ClientWallet struct {
	ClientID         uuid.UUID `db:"client_id" json:"client_id"`
	AvailableBalance float64   `db:"available_balance" json:"available_balance"`
	LockedBalance    float64   `db:"locked_balance" json:"locked_balance"`
	TotalDeposited   float64   `db:"total_deposited" json:"total_deposited"`
	TotalSpent       float64   `db:"total_spent" json:"total_spent"`
	Currency         string    `db:"currency" json:"currency"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// FreelancerWallet баланс исполнителя.
type FreelancerWallet struct {
	FreelancerID     uuid.UUID `db:"freelancer_id" json:"freelancer_id"`
	AvailableBalance float64   `db:"available_balance" json:"available_balance"`
	TotalEarned      float64   `db:"total_earned" json:"total_earned"`
	TotalWithdrawn   float64   `db:"total_withdrawn" json:"total_withdrawn"`
	Currency         string    `db:"currency" json:"currency"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction запись о движении средств.
type Transaction struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	UserID      uuid.UUID       `db:"user_id" json:"user_id"`
	ProjectID   *uuid.UUID      `db:"project_id" json:"project_id,omitempty"`
	ContractID  *uuid.UUID      `db:"contract_id" json:"contract_id,omitempty"`
	MilestoneID *uuid.UUID      `db:"milestone_id" json:"milestone_id,omitempty"`
	Type        string          `db:"type" json:"type"`
	Amount      float64         `db:"amount" json:"amount"`
	Currency    string          `db:"currency" json:"currency"`
	Status      string          `db:"status" json:"status"`
	Reference   *string         `db:"reference" json:"reference,omitempty"`
	Metadata    json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	CompletedAt *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// TransactionFilter параметры выборки транзакций.
type TransactionFilter struct {
	UserID *uuid.UUID
	Type   string
	Status string
	Limit  int
	Offset int
}
