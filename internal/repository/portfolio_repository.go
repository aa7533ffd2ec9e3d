package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/admarket-backend/internal/models"
)

// ErrPortfolioItemNotFound возвращается, когда кейс портфолио не найден.
var ErrPortfolioItemNotFound = errors.New("portfolio item not found")

const portfolioColumns = `id, user_id, title, description, category, client_name, results_summary,
	cover_media_id, external_link, tags, created_at, updated_at`

// PortfolioRepository отвечает за работу с портфолио.
type PortfolioRepository struct {
	db *sqlx.DB
}

// NewPortfolioRepository создаёт экземпляр репозитория.
func NewPortfolioRepository(db *sqlx.DB) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

func scanPortfolioItem(row rowScanner, item *models.PortfolioItem) error {
	var tags pq.StringArray
	if err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.Title,
		&item.Description,
		&item.Category,
		&item.ClientName,
		&item.ResultsSummary,
		&item.CoverMediaID,
		&item.ExternalLink,
		&tags,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return err
	}
	item.Tags = []string(tags)
	return nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// Create добавляет кейс в портфолио.
func (r *PortfolioRepository) Create(ctx context.Context, item *models.PortfolioItem) error {
	query := `
		INSERT INTO portfolio_items (user_id, title, description, category, client_name, results_summary,
			cover_media_id, external_link, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + portfolioColumns

	row := r.db.QueryRowxContext(ctx, query,
		item.UserID,
		item.Title,
		item.Description,
		item.Category,
		item.ClientName,
		item.ResultsSummary,
		item.CoverMediaID,
		item.ExternalLink,
		pq.Array(tagsOrEmpty(item.Tags)),
	)
	if err := scanPortfolioItem(row, item); err != nil {
		return fmt.Errorf("portfolio repository: create %w", err)
	}
	return nil
}

// GetByID возвращает кейс по идентификатору.
func (r *PortfolioRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PortfolioItem, error) {
	var item models.PortfolioItem
	row := r.db.QueryRowxContext(ctx, `SELECT `+portfolioColumns+` FROM portfolio_items WHERE id = $1`, id)
	if err := scanPortfolioItem(row, &item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPortfolioItemNotFound
		}
		return nil, fmt.Errorf("portfolio repository: get by id %w", err)
	}
	return &item, nil
}

// ListByUser возвращает кейсы исполнителя, новые первыми.
func (r *PortfolioRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.PortfolioItem, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT `+portfolioColumns+` FROM portfolio_items WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("portfolio repository: list %w", err)
	}
	defer rows.Close()

	items := []models.PortfolioItem{}
	for rows.Next() {
		var item models.PortfolioItem
		if err := scanPortfolioItem(rows, &item); err != nil {
			return nil, fmt.Errorf("portfolio repository: scan %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Update обновляет кейс владельца.
func (r *PortfolioRepository) Update(ctx context.Context, item *models.PortfolioItem) error {
	query := `
		UPDATE portfolio_items
		SET title = $1, description = $2, category = $3, client_name = $4, results_summary = $5,
			cover_media_id = $6, external_link = $7, tags = $8, updated_at = NOW()
		WHERE id = $9 AND user_id = $10
		RETURNING ` + portfolioColumns

	row := r.db.QueryRowxContext(ctx, query,
		item.Title,
		item.Description,
		item.Category,
		item.ClientName,
		item.ResultsSummary,
		item.CoverMediaID,
		item.ExternalLink,
		pq.Array(tagsOrEmpty(item.Tags)),
		item.ID,
		item.UserID,
	)
	if err := scanPortfolioItem(row, item); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPortfolioItemNotFound
		}
		return fmt.Errorf("portfolio repository: update %w", err)
	}
	return nil
}

// Delete удаляет кейс владельца.
func (r *PortfolioRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM portfolio_items WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("portfolio repository: delete %w", err)
	}
	return checkAffected(res, ErrPortfolioItemNotFound)
}
