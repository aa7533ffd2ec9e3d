package models

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

// PlannedMilestone описывает этап в плане проекта или в условиях предложения.
type PlannedMilestone struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Amount      float64 `json:"amount"`
	DueInDays   int     `json:"due_in_days,omitempty"`
}

// MilestonePlan хранится в JSONB колонках.
type MilestonePlan []PlannedMilestone

// Value реализует driver.Valuer.
func (p MilestonePlan) Value() (driver.Value, error) {
	return marshalJSONB(p, "[]")
}

// Scan реализует sql.Scanner.
func (p *MilestonePlan) Scan(src any) error {
	return scanJSONB(src, p)
}

// Total возвращает сумму всех этапов плана.
func (p MilestonePlan) Total() float64 {
	var total float64
	for _, m := range p {
		total += m.Amount
	}
	return total
}

// Project описывает заказ клиента на рекламные услуги.
type Project struct {
	ID              uuid.UUID     `db:"id" json:"id"`
	ClientID        uuid.UUID     `db:"client_id" json:"client_id"`
	Title           string        `db:"title" json:"title"`
	Description     string        `db:"description" json:"description"`
	Category        string        `db:"category" json:"category"`
	Budget          float64       `db:"budget" json:"budget"`
	AllocatedBudget float64       `db:"allocated_budget" json:"allocated_budget"`
	Currency        string        `db:"currency" json:"currency"`
	Status          string        `db:"status" json:"status"`
	DeadlineAt      *time.Time    `db:"deadline_at" json:"deadline_at,omitempty"`
	Milestones      MilestonePlan `db:"milestones" json:"milestones"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// ProjectFilter параметры выборки проектов.
type ProjectFilter struct {
	Status    string
	Category  string
	Query     string
	MinBudget *float64
	MaxBudget *float64
	Limit     int
	Offset    int
}
