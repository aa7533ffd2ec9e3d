package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/admarket-backend/internal/models"
)

const reviewColumns = `id, contract_id, reviewer_id, reviewed_id, rating, comment, created_at, updated_at`

// ReviewRepository хранит отзывы по договорам.
type ReviewRepository struct {
	db *sqlx.DB
}

func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create создаёт отзыв. Второй отзыв той же стороны по договору даёт ErrDuplicate.
func (r *ReviewRepository) Create(ctx context.Context, review *models.Review) error {
	query := `
		INSERT INTO reviews (contract_id, reviewer_id, reviewed_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	if err := r.db.QueryRowxContext(ctx, query,
		review.ContractID, review.ReviewerID, review.ReviewedID, review.Rating, review.Comment,
	).Scan(&review.ID, &review.CreatedAt, &review.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("review repository: create %w", err)
	}
	return nil
}

// ListByReviewed возвращает отзывы о пользователе.
func (r *ReviewRepository) ListByReviewed(ctx context.Context, reviewedID uuid.UUID, limit, offset int) ([]models.Review, error) {
	reviews := []models.Review{}
	err := r.db.SelectContext(ctx, &reviews,
		`SELECT `+reviewColumns+` FROM reviews WHERE reviewed_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		reviewedID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("review repository: list by reviewed %w", err)
	}
	return reviews, nil
}

// ListByContract возвращает отзывы по договору.
func (r *ReviewRepository) ListByContract(ctx context.Context, contractID uuid.UUID) ([]models.Review, error) {
	reviews := []models.Review{}
	if err := r.db.SelectContext(ctx, &reviews,
		`SELECT `+reviewColumns+` FROM reviews WHERE contract_id = $1 ORDER BY created_at`, contractID); err != nil {
		return nil, fmt.Errorf("review repository: list by contract %w", err)
	}
	return reviews, nil
}

// GetAverageRating возвращает средний рейтинг пользователя и число отзывов.
func (r *ReviewRepository) GetAverageRating(ctx context.Context, userID uuid.UUID) (float64, int, error) {
	var avg float64
	var count int
	if err := r.db.QueryRowxContext(ctx,
		`SELECT COALESCE(AVG(rating), 0), COUNT(*) FROM reviews WHERE reviewed_id = $1`, userID,
	).Scan(&avg, &count); err != nil {
		return 0, 0, fmt.Errorf("review repository: average rating %w", err)
	}
	return avg, count, nil
}
