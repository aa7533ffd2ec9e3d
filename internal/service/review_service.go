package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/admarket-backend/internal/validation"
)

// ReviewRepository зависимости ReviewService.
type ReviewRepository interface {
	Create(ctx context.Context, review *models.Review) error
	ListByReviewed(ctx context.Context, reviewedID uuid.UUID, limit, offset int) ([]models.Review, error)
	ListByContract(ctx context.Context, contractID uuid.UUID) ([]models.Review, error)
	GetAverageRating(ctx context.Context, userID uuid.UUID) (float64, int, error)
}

// ContractReader чтение договора.
type ContractReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
}

type ReviewService struct {
	repo      ReviewRepository
	contracts ContractReader
	notifier  Notifier
}

func NewReviewService(repo ReviewRepository, contracts ContractReader, notifier Notifier) *ReviewService {
	return &ReviewService{repo: repo, contracts: contracts, notifier: notifierOrNoop(notifier)}
}

// Create оставляет отзыв о второй стороне завершённого договора.
func (s *ReviewService) Create(ctx context.Context, reviewerID, contractID uuid.UUID, rating int, comment *string) (*models.Review, error) {
	if err := validation.ValidateRating(rating); err != nil {
		return nil, validationError(err)
	}
	if err := validation.ValidateOptionalLength("комментарий", comment, validation.MaxReviewCommentLength); err != nil {
		return nil, validationError(err)
	}

	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить договор")
	}
	if !contract.IsParticipant(reviewerID) {
		return nil, apperror.Forbidden("вы не участник этого договора")
	}
	if contract.Status != models.ContractStatusCompleted {
		return nil, apperror.Conflict("отзыв можно оставить только после завершения договора")
	}

	reviewedID := contract.ClientID
	if reviewerID == contract.ClientID {
		reviewedID = contract.FreelancerID
	}

	review := &models.Review{
		ContractID: contractID,
		ReviewerID: reviewerID,
		ReviewedID: reviewedID,
		Rating:     rating,
		Comment:    trimmedOrNil(comment),
	}
	if err := s.repo.Create(ctx, review); err != nil {
		return nil, translate(err, "не удалось сохранить отзыв")
	}

	notify(s.notifier, "review.created", map[string]any{
		"review_id":   review.ID,
		"contract_id": contractID,
		"rating":      rating,
	}, reviewedID)

	return review, nil
}

// UserReviews отзывы о пользователе со средним рейтингом.
type UserReviews struct {
	Items         []models.Review `json:"items"`
	AverageRating float64         `json:"average_rating"`
	TotalReviews  int             `json:"total_reviews"`
}

// ListForUser возвращает отзывы о пользователе.
func (s *ReviewService) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) (*UserReviews, error) {
	limit, offset = normalizePage(limit, offset)
	items, err := s.repo.ListByReviewed(ctx, userID, limit, offset)
	if err != nil {
		return nil, translate(err, "не удалось получить отзывы")
	}
	avg, count, err := s.repo.GetAverageRating(ctx, userID)
	if err != nil {
		return nil, translate(err, "не удалось получить рейтинг")
	}
	return &UserReviews{Items: items, AverageRating: avg, TotalReviews: count}, nil
}

// ListForContract возвращает отзывы по договору его участникам.
func (s *ReviewService) ListForContract(ctx context.Context, actor Actor, contractID uuid.UUID) ([]models.Review, error) {
	contract, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить договор")
	}
	if !contract.IsParticipant(actor.ID) && !actor.IsAdmin() {
		return nil, apperror.Forbidden("вы не участник этого договора")
	}
	items, err := s.repo.ListByContract(ctx, contractID)
	if err != nil {
		return nil, translate(err, "не удалось получить отзывы")
	}
	return items, nil
}
