package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/admarket-backend/internal/repository"
)

type fakeReviewRepository struct {
	reviews []models.Review
}

func (r *fakeReviewRepository) Create(_ context.Context, review *models.Review) error {
	for _, existing := range r.reviews {
		if existing.ContractID == review.ContractID && existing.ReviewerID == review.ReviewerID {
			return repository.ErrDuplicate
		}
	}
	review.ID = uuid.New()
	r.reviews = append(r.reviews, *review)
	return nil
}

func (r *fakeReviewRepository) ListByReviewed(_ context.Context, reviewedID uuid.UUID, limit, offset int) ([]models.Review, error) {
	var out []models.Review
	for _, rv := range r.reviews {
		if rv.ReviewedID == reviewedID {
			out = append(out, rv)
		}
	}
	return out, nil
}

func (r *fakeReviewRepository) ListByContract(_ context.Context, contractID uuid.UUID) ([]models.Review, error) {
	var out []models.Review
	for _, rv := range r.reviews {
		if rv.ContractID == contractID {
			out = append(out, rv)
		}
	}
	return out, nil
}

func (r *fakeReviewRepository) GetAverageRating(_ context.Context, userID uuid.UUID) (float64, int, error) {
	var sum, n int
	for _, rv := range r.reviews {
		if rv.ReviewedID == userID {
			sum += rv.Rating
			n++
		}
	}
	if n == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(n), n, nil
}

type fakeContracts map[uuid.UUID]*models.Contract

func (f fakeContracts) GetByID(_ context.Context, id uuid.UUID) (*models.Contract, error) {
	if c, ok := f[id]; ok {
		return c, nil
	}
	return nil, repository.ErrContractNotFound
}

func TestReviewService_Create(t *testing.T) {
	contract := &models.Contract{ID: uuid.New(), ClientID: uuid.New(), FreelancerID: uuid.New(), Status: models.ContractStatusCompleted}
	repo := &fakeReviewRepository{}
	notifier := &recordingNotifier{}
	svc := NewReviewService(repo, fakeContracts{contract.ID: contract}, notifier)

	comment := "  Отличный результат кампании  "
	review, err := svc.Create(context.Background(), contract.ClientID, contract.ID, 5, &comment)
	require.NoError(t, err)
	assert.Equal(t, contract.FreelancerID, review.ReviewedID)
	assert.Equal(t, "Отличный результат кампании", *review.Comment)
	assert.True(t, notifier.sentTo(contract.FreelancerID, "review.created"))

	_, err = svc.Create(context.Background(), contract.ClientID, contract.ID, 4, nil)
	assert.True(t, apperror.IsConflict(err))

	_, err = svc.Create(context.Background(), contract.FreelancerID, contract.ID, 3, nil)
	require.NoError(t, err)

	summary, err := svc.ListForUser(context.Background(), contract.FreelancerID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalReviews)
	assert.Equal(t, 5.0, summary.AverageRating)
}

func TestReviewService_Create_Rules(t *testing.T) {
	active := &models.Contract{ID: uuid.New(), ClientID: uuid.New(), FreelancerID: uuid.New(), Status: models.ContractStatusActive}
	svc := NewReviewService(&fakeReviewRepository{}, fakeContracts{active.ID: active}, nil)

	_, err := svc.Create(context.Background(), active.ClientID, active.ID, 6, nil)
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.Create(context.Background(), active.ClientID, active.ID, 5, nil)
	assert.True(t, apperror.IsConflict(err))

	_, err = svc.Create(context.Background(), uuid.New(), active.ID, 5, nil)
	assert.True(t, apperror.IsForbidden(err))

	_, err = svc.Create(context.Background(), active.ClientID, uuid.New(), 5, nil)
	assert.True(t, apperror.IsNotFound(err))
}

func TestReviewService_ListForContract(t *testing.T) {
	contract := &models.Contract{ID: uuid.New(), ClientID: uuid.New(), FreelancerID: uuid.New(), Status: models.ContractStatusCompleted}
	svc := NewReviewService(&fakeReviewRepository{}, fakeContracts{contract.ID: contract}, nil)

	_, err := svc.ListForContract(context.Background(), Actor{ID: uuid.New(), Role: models.RoleClient}, contract.ID)
	assert.True(t, apperror.IsForbidden(err))

	items, err := svc.ListForContract(context.Background(), Actor{ID: uuid.New(), Role: models.RoleAdmin}, contract.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}
