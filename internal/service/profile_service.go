package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/repository"
	"github.com/ignatzorin/admarket-backend/internal/validation"
)

// ProfileRepository зависимости ProfileService.
type ProfileRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	UpsertProfile(ctx context.Context, profile *models.Profile) error
	GetUserStats(ctx context.Context, userID uuid.UUID) (*models.PublicProfileStats, error)
	SearchFreelancers(ctx context.Context, params repository.FreelancerSearchParams) ([]models.FreelancerSearchResult, error)
}

// PortfolioLister отдаёт портфолио для публичного профиля.
type PortfolioLister interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.PortfolioItem, error)
}

// ProfileService управляет профилями и поиском исполнителей.
type ProfileService struct {
	users     ProfileRepository
	portfolio PortfolioLister
}

// NewProfileService создаёт сервис профилей.
func NewProfileService(users ProfileRepository, portfolio PortfolioLister) *ProfileService {
	return &ProfileService{users: users, portfolio: portfolio}
}

// UpdateProfileInput изменяемые поля профиля. nil означает «не менять».
type UpdateProfileInput struct {
	DisplayName    *string
	Bio            *string
	HourlyRate     *float64
	Skills         []string
	Categories     []string
	Location       *string
	Website        *string
	PhotoID        *uuid.UUID
	CountryCode    *string
	TaxID          *string
	CompanyName    *string
	BillingAddress *string
	IsBusiness     *bool
	IRPFReduced    *bool
}

// PublicProfile профиль без платёжных реквизитов.
type PublicProfile struct {
	ID          uuid.UUID                  `json:"id"`
	Username    string                     `json:"username"`
	Role        string                     `json:"role"`
	DisplayName string                     `json:"display_name"`
	Bio         *string                    `json:"bio,omitempty"`
	HourlyRate  *float64                   `json:"hourly_rate,omitempty"`
	Skills      []string                   `json:"skills"`
	Categories  []string                   `json:"categories"`
	Location    *string                    `json:"location,omitempty"`
	Website     *string                    `json:"website,omitempty"`
	PhotoID     *uuid.UUID                 `json:"photo_id,omitempty"`
	CountryCode *string                    `json:"country_code,omitempty"`
	Stats       *models.PublicProfileStats `json:"stats"`
	Portfolio   []models.PortfolioItem     `json:"portfolio,omitempty"`
	MemberSince time.Time                  `json:"member_since"`
}

// GetOwn возвращает профиль текущего пользователя вместе с реквизитами.
func (s *ProfileService) GetOwn(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	profile, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить профиль")
	}
	return profile, nil
}

// Update применяет изменения профиля.
func (s *ProfileService) Update(ctx context.Context, userID uuid.UUID, in UpdateProfileInput) (*models.Profile, error) {
	profile, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, translate(err, "не удалось загрузить профиль")
		}
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return nil, translate(err, "не удалось загрузить пользователя")
		}
		profile = &models.Profile{UserID: userID, DisplayName: user.Username}
	}

	if err := applyProfileInput(profile, in); err != nil {
		return nil, err
	}

	if err := s.users.UpsertProfile(ctx, profile); err != nil {
		return nil, translate(err, "не удалось сохранить профиль")
	}
	return profile, nil
}

func applyProfileInput(p *models.Profile, in UpdateProfileInput) error {
	if in.DisplayName != nil {
		name := strings.TrimSpace(*in.DisplayName)
		if err := validation.ValidateDisplayName(name); err != nil {
			return validationError(err)
		}
		p.DisplayName = name
	}
	if in.Bio != nil {
		if err := validation.ValidateOptionalLength("биография", in.Bio, validation.MaxBioLength); err != nil {
			return validationError(err)
		}
		p.Bio = trimmedOrNil(in.Bio)
	}
	if in.HourlyRate != nil {
		if err := validation.ValidateHourlyRate(in.HourlyRate); err != nil {
			return validationError(err)
		}
		p.HourlyRate = in.HourlyRate
	}
	if in.Skills != nil {
		if err := validation.ValidateSkills(in.Skills); err != nil {
			return validationError(err)
		}
		p.Skills = trimAll(in.Skills)
	}
	if in.Categories != nil {
		if err := validation.ValidateCategories(in.Categories); err != nil {
			return validationError(err)
		}
		p.Categories = in.Categories
	}
	if in.Location != nil {
		if err := validation.ValidateOptionalLength("местоположение", in.Location, validation.MaxLocationLength); err != nil {
			return validationError(err)
		}
		p.Location = trimmedOrNil(in.Location)
	}
	if in.Website != nil {
		if err := validation.ValidateExternalLink(in.Website); err != nil {
			return validationError(err)
		}
		p.Website = trimmedOrNil(in.Website)
	}
	if in.PhotoID != nil {
		p.PhotoID = in.PhotoID
	}
	if in.CountryCode != nil {
		code := strings.ToUpper(strings.TrimSpace(*in.CountryCode))
		if err := validation.ValidateCountryCode(&code); err != nil {
			return validationError(err)
		}
		p.CountryCode = trimmedOrNil(&code)
	}
	if in.TaxID != nil {
		if err := validation.ValidateOptionalLength("налоговый номер", in.TaxID, validation.MaxTaxIDLength); err != nil {
			return validationError(err)
		}
		taxID := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(*in.TaxID), " ", ""))
		p.TaxID = trimmedOrNil(&taxID)
	}
	if in.CompanyName != nil {
		p.CompanyName = trimmedOrNil(in.CompanyName)
	}
	if in.BillingAddress != nil {
		p.BillingAddress = trimmedOrNil(in.BillingAddress)
	}
	if in.IsBusiness != nil {
		p.IsBusiness = *in.IsBusiness
	}
	if in.IRPFReduced != nil {
		p.IRPFReduced = *in.IRPFReduced
	}
	return nil
}

// GetPublic возвращает публичный профиль со статистикой и портфолио.
func (s *ProfileService) GetPublic(ctx context.Context, userID uuid.UUID) (*PublicProfile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить пользователя")
	}
	if !user.IsActive {
		return nil, translate(repository.ErrUserNotFound, "")
	}

	out := &PublicProfile{
		ID:          user.ID,
		Username:    user.Username,
		Role:        user.Role,
		DisplayName: user.Username,
		Skills:      []string{},
		Categories:  []string{},
		MemberSince: user.CreatedAt,
	}

	profile, err := s.users.GetProfile(ctx, userID)
	switch {
	case err == nil:
		out.DisplayName = profile.DisplayName
		out.Bio = profile.Bio
		out.HourlyRate = profile.HourlyRate
		out.Skills = profile.Skills
		out.Categories = profile.Categories
		out.Location = profile.Location
		out.Website = profile.Website
		out.PhotoID = profile.PhotoID
		out.CountryCode = profile.CountryCode
	case !errors.Is(err, repository.ErrUserNotFound):
		return nil, translate(err, "не удалось загрузить профиль")
	}

	stats, err := s.users.GetUserStats(ctx, userID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить статистику")
	}
	out.Stats = stats

	if user.Role == models.RoleFreelancer && s.portfolio != nil {
		items, err := s.portfolio.ListByUser(ctx, userID)
		if err != nil {
			return nil, translate(err, "не удалось загрузить портфолио")
		}
		out.Portfolio = items
	}

	return out, nil
}

// SearchFreelancers ищет исполнителей по тексту, категории и стране.
func (s *ProfileService) SearchFreelancers(ctx context.Context, params repository.FreelancerSearchParams) ([]models.FreelancerSearchResult, error) {
	if params.Category != "" {
		if err := validation.ValidateCategory(params.Category); err != nil {
			return nil, validationError(err)
		}
	}
	params.Query = strings.TrimSpace(params.Query)
	params.Limit, params.Offset = normalizePage(params.Limit, params.Offset)

	results, err := s.users.SearchFreelancers(ctx, params)
	if err != nil {
		return nil, translate(err, "не удалось выполнить поиск")
	}
	return results, nil
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.TrimSpace(v))
	}
	return out
}
