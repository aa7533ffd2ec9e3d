package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/admarket-backend/internal/validation"
)

// PortfolioRepository описывает взаимодействие сервиса с хранилищем портфолио.
type PortfolioRepository interface {
	Create(ctx context.Context, item *models.PortfolioItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PortfolioItem, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.PortfolioItem, error)
	Update(ctx context.Context, item *models.PortfolioItem) error
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

// PortfolioService кейсы исполнителей.
type PortfolioService struct {
	repo PortfolioRepository
}

// NewPortfolioService создаёт новый сервис портфолио.
func NewPortfolioService(repo PortfolioRepository) *PortfolioService {
	return &PortfolioService{repo: repo}
}

// PortfolioInput данные кейса.
type PortfolioInput struct {
	Title          string
	Description    *string
	Category       *string
	ClientName     *string
	ResultsSummary *string
	CoverMediaID   *uuid.UUID
	ExternalLink   *string
	Tags           []string
}

func (in *PortfolioInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if err := validation.ValidateLength("заголовок", in.Title, 3, validation.MaxProjectTitleLength); err != nil {
		return validationError(err)
	}
	if err := validation.ValidateOptionalLength("описание", in.Description, validation.MaxPortfolioTextLength); err != nil {
		return validationError(err)
	}
	if err := validation.ValidateOptionalLength("результаты", in.ResultsSummary, validation.MaxPortfolioTextLength); err != nil {
		return validationError(err)
	}
	if err := validation.ValidateOptionalLength("клиент", in.ClientName, validation.MaxLocationLength); err != nil {
		return validationError(err)
	}
	if in.Category != nil && *in.Category != "" {
		if err := validation.ValidateCategory(*in.Category); err != nil {
			return validationError(err)
		}
	}
	if err := validation.ValidateExternalLink(in.ExternalLink); err != nil {
		return validationError(err)
	}
	if err := validation.ValidateSkills(in.Tags); err != nil {
		return validationError(err)
	}
	return nil
}

func (in *PortfolioInput) apply(item *models.PortfolioItem) {
	item.Title = in.Title
	item.Description = trimmedOrNil(in.Description)
	item.Category = trimmedOrNil(in.Category)
	item.ClientName = trimmedOrNil(in.ClientName)
	item.ResultsSummary = trimmedOrNil(in.ResultsSummary)
	item.CoverMediaID = in.CoverMediaID
	item.ExternalLink = trimmedOrNil(in.ExternalLink)
	item.Tags = trimAll(in.Tags)
}

// Create добавляет кейс в портфолио исполнителя.
func (s *PortfolioService) Create(ctx context.Context, actor Actor, in PortfolioInput) (*models.PortfolioItem, error) {
	if actor.Role != models.RoleFreelancer {
		return nil, apperror.Forbidden("портфолио доступно только исполнителям")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	item := &models.PortfolioItem{UserID: actor.ID}
	in.apply(item)
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, translate(err, "не удалось сохранить кейс")
	}
	return item, nil
}

// Get возвращает кейс.
func (s *PortfolioService) Get(ctx context.Context, id uuid.UUID) (*models.PortfolioItem, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "не удалось загрузить кейс")
	}
	return item, nil
}

// ListByUser возвращает кейсы исполнителя.
func (s *PortfolioService) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.PortfolioItem, error) {
	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, translate(err, "не удалось получить портфолио")
	}
	return items, nil
}

// Update изменяет кейс владельца.
func (s *PortfolioService) Update(ctx context.Context, actor Actor, id uuid.UUID, in PortfolioInput) (*models.PortfolioItem, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.UserID != actor.ID {
		return nil, apperror.Forbidden("у вас нет прав на изменение этого кейса")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	in.apply(existing)
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, translate(err, "не удалось обновить кейс")
	}
	return existing, nil
}

// Delete удаляет кейс владельца.
func (s *PortfolioService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.UserID != actor.ID && !actor.IsAdmin() {
		return apperror.Forbidden("у вас нет прав на удаление этого кейса")
	}
	return translate(s.repo.Delete(ctx, id, existing.UserID), "не удалось удалить кейс")
}
