package models

import (
	"time"

	"github.com/google/uuid"
)

// User описывает сущность пользователя площадки.
type User struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	Email            string     `db:"email" json:"email"`
	Username         string     `db:"username" json:"username"`
	PasswordHash     string     `db:"password_hash" json:"-"`
	Role             string     `db:"role" json:"role"`
	IsActive         bool       `db:"is_active" json:"is_active"`
	LastLoginAt      *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	StripeCustomerID *string    `db:"stripe_customer_id" json:"-"`
	StripeAccountID  *string    `db:"stripe_account_id" json:"-"`
	PayoutsEnabled   bool       `db:"payouts_enabled" json:"payouts_enabled"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Profile описывает публичный профиль и платёжные реквизиты пользователя.
type Profile struct {
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	DisplayName    string     `db:"display_name" json:"display_name"`
	Bio            *string    `db:"bio" json:"bio,omitempty"`
	HourlyRate     *float64   `db:"hourly_rate" json:"hourly_rate,omitempty"`
	Skills         []string   `db:"skills" json:"skills"`
	Categories     []string   `db:"categories" json:"categories"`
	Location       *string    `db:"location" json:"location,omitempty"`
	Website        *string    `db:"website" json:"website,omitempty"`
	PhotoID        *uuid.UUID `db:"photo_id" json:"photo_id,omitempty"`
	CountryCode    *string    `db:"country_code" json:"country_code,omitempty"`
	TaxID          *string    `db:"tax_id" json:"tax_id,omitempty"`
	CompanyName    *string    `db:"company_name" json:"company_name,omitempty"`
	BillingAddress *string    `db:"billing_address" json:"billing_address,omitempty"`
	IsBusiness     bool       `db:"is_business" json:"is_business"`
	IRPFReduced    bool       `db:"irpf_reduced" json:"irpf_reduced"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Session представляет сохранённую сессию пользователя.
type Session struct {
	ID           uuid.UUID `db:"id" json:"id"`
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	RefreshToken string    `db:"refresh_token" json:"-"`
	UserAgent    *string   `db:"user_agent" json:"user_agent,omitempty"`
	IPAddress    *string   `db:"ip_address" json:"ip_address,omitempty"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// PublicProfileStats содержит статистику для публичного профиля.
type PublicProfileStats struct {
	CompletedContracts int     `json:"completed_contracts"`
	ActiveContracts    int     `json:"active_contracts"`
	AverageRating      float64 `json:"average_rating"`
	TotalReviews       int     `json:"total_reviews"`
}

// FreelancerSearchResult результат поиска исполнителя.
type FreelancerSearchResult struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Username    string     `db:"username" json:"username"`
	DisplayName *string    `db:"display_name" json:"display_name,omitempty"`
	Bio         *string    `db:"bio" json:"bio,omitempty"`
	HourlyRate  *float64   `db:"hourly_rate" json:"hourly_rate,omitempty"`
	Skills      []string   `db:"skills" json:"skills,omitempty"`
	Categories  []string   `db:"categories" json:"categories,omitempty"`
	CountryCode *string    `db:"country_code" json:"country_code,omitempty"`
	PhotoID     *uuid.UUID `db:"photo_id" json:"photo_id,omitempty"`
	AvgRating   float64    `db:"avg_rating" json:"avg_rating"`
	ReviewCount int        `db:"review_count" json:"review_count"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
