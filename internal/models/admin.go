package models

import "time"

// PlatformStats агрегированные показатели для админки.
type PlatformStats struct {
	UsersByRole        map[string]int `json:"users_by_role"`
	ProjectsByStatus   map[string]int `json:"projects_by_status"`
	InvoicesByStatus   map[string]int `json:"invoices_by_status"`
	ActiveContracts    int            `json:"active_contracts"`
	EscrowLocked       float64        `json:"escrow_locked"`
	ClientAvailable    float64        `json:"client_available"`
	FreelancerBalances float64        `json:"freelancer_balances"`
	GrossReleased      float64        `json:"gross_released"`
	PlatformFees       float64        `json:"platform_fees"`
	GeneratedAt        time.Time      `json:"generated_at"`
}

// UserFilter параметры выборки пользователей в админке.
type UserFilter struct {
	Role     string
	Query    string
	IsActive *bool
	Limit    int
	Offset   int
}
