package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/admarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/admarket-backend/internal/repository"
	"github.com/ignatzorin/admarket-backend/internal/service"
)

// ProfileHandler обслуживает профиль, публичные страницы и поиск исполнителей.
type ProfileHandler struct {
	profiles *service.ProfileService
}

// NewProfileHandler создаёт хэндлер.
func NewProfileHandler(profiles *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

type updateProfileRequest struct {
	DisplayName    *string    `json:"display_name"`
	Bio            *string    `json:"bio"`
	HourlyRate     *float64   `json:"hourly_rate"`
	Skills         []string   `json:"skills"`
	Categories     []string   `json:"categories"`
	Location       *string    `json:"location"`
	Website        *string    `json:"website"`
	PhotoID        *uuid.UUID `json:"photo_id"`
	CountryCode    *string    `json:"country_code"`
	TaxID          *string    `json:"tax_id"`
	CompanyName    *string    `json:"company_name"`
	BillingAddress *string    `json:"billing_address"`
	IsBusiness     *bool      `json:"is_business"`
	IRPFReduced    *bool      `json:"irpf_reduced"`
}

// GetMe обрабатывает GET /profile.
func (h *ProfileHandler) GetMe(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	profile, err := h.profiles.GetOwn(c.Request.Context(), userID)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// UpdateMe обрабатывает PUT /profile.
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req updateProfileRequest
	if !common.BindJSON(c, &req) {
		return
	}

	profile, err := h.profiles.Update(c.Request.Context(), userID, service.UpdateProfileInput{
		DisplayName:    req.DisplayName,
		Bio:            req.Bio,
		HourlyRate:     req.HourlyRate,
		Skills:         req.Skills,
		Categories:     req.Categories,
		Location:       req.Location,
		Website:        req.Website,
		PhotoID:        req.PhotoID,
		CountryCode:    req.CountryCode,
		TaxID:          req.TaxID,
		CompanyName:    req.CompanyName,
		BillingAddress: req.BillingAddress,
		IsBusiness:     req.IsBusiness,
		IRPFReduced:    req.IRPFReduced,
	})
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// GetUserProfile обрабатывает GET /users/:id.
func (h *ProfileHandler) GetUserProfile(c *gin.Context) {
	userID, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	profile, err := h.profiles.GetPublic(c.Request.Context(), userID)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// SearchFreelancers обрабатывает GET /freelancers/search.
func (h *ProfileHandler) SearchFreelancers(c *gin.Context) {
	limit, offset := common.GetPagination(c)

	results, err := h.profiles.SearchFreelancers(c.Request.Context(), repository.FreelancerSearchParams{
		Query:    c.Query("q"),
		Category: c.Query("category"),
		Country:  c.Query("country"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": results, "limit": limit, "offset": offset})
}
