package models

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

// BillingParty снимок реквизитов стороны на момент выставления счёта.
type BillingParty struct {
	UserID      uuid.UUID `json:"user_id"`
	Name        string    `json:"name"`
	CompanyName string    `json:"company_name,omitempty"`
	TaxID       string    `json:"tax_id,omitempty"`
	Address     string    `json:"address,omitempty"`
	CountryCode string    `json:"country_code"`
	IsBusiness  bool      `json:"is_business"`
}

// Value реализует driver.Valuer.
func (b BillingParty) Value() (driver.Value, error) {
	return marshalJSONB(b, "{}")
}

// Scan реализует sql.Scanner.
func (b *BillingParty) Scan(src any) error {
	return scanJSONB(src, b)
}

// Invoice счёт исполнителя клиенту за этап.
type Invoice struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	Number       string       `db:"number" json:"number"`
	ContractID   uuid.UUID    `db:"contract_id" json:"contract_id"`
	MilestoneID  uuid.UUID    `db:"milestone_id" json:"milestone_id"`
	FreelancerID uuid.UUID    `db:"freelancer_id" json:"freelancer_id"`
	ClientID     uuid.UUID    `db:"client_id" json:"client_id"`
	IssueDate    time.Time    `db:"issue_date" json:"issue_date"`
	DueDate      time.Time    `db:"due_date" json:"due_date"`
	Currency     string       `db:"currency" json:"currency"`
	Subtotal     float64      `db:"subtotal" json:"subtotal"`
	VATRate      float64      `db:"vat_rate" json:"vat_rate"`
	VATAmount    float64      `db:"vat_amount" json:"vat_amount"`
	IRPFRate     float64      `db:"irpf_rate" json:"irpf_rate"`
	IRPFAmount   float64      `db:"irpf_amount" json:"irpf_amount"`
	Total        float64      `db:"total" json:"total"`
	TaxRegime    string       `db:"tax_regime" json:"tax_regime"`
	TaxNote      *string      `db:"tax_note" json:"tax_note,omitempty"`
	Supplier     BillingParty `db:"supplier" json:"supplier"`
	Customer     BillingParty `db:"customer" json:"customer"`
	Status       string       `db:"status" json:"status"`
	ApprovedAt   *time.Time   `db:"approved_at" json:"approved_at,omitempty"`
	PaidAt       *time.Time   `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// InvoiceFilter параметры выборки счетов.
type InvoiceFilter struct {
	UserID *uuid.UUID
	Status string
	Limit  int
	Offset int
}
