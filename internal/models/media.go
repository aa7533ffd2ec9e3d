package models

import (
	"time"

	"github.com/google/uuid"
)

// MediaFile описывает загруженный файл.
type MediaFile struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	FilePath  string     `db:"file_path" json:"file_path"`
	FileType  string     `db:"file_type" json:"file_type"`
	FileSize  int64      `db:"file_size" json:"file_size"`
	IsPublic  bool       `db:"is_public" json:"is_public"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// PortfolioItem кейс исполнителя: кампания, её результаты и материалы.
type PortfolioItem struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	Title          string     `db:"title" json:"title"`
	Description    *string    `db:"description" json:"description,omitempty"`
	Category       *string    `db:"category" json:"category,omitempty"`
	ClientName     *string    `db:"client_name" json:"client_name,omitempty"`
	ResultsSummary *string    `db:"results_summary" json:"results_summary,omitempty"`
	CoverMediaID   *uuid.UUID `db:"cover_media_id" json:"cover_media_id,omitempty"`
	ExternalLink   *string    `db:"external_link" json:"external_link,omitempty"`
	Tags           []string   `db:"tags" json:"tags"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
