package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/admarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/admarket-backend/internal/service"
)

// PortfolioHandler обслуживает кейсы исполнителей.
type PortfolioHandler struct {
	portfolio *service.PortfolioService
}

// NewPortfolioHandler создаёт хэндлер.
func NewPortfolioHandler(portfolio *service.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{portfolio: portfolio}
}

type portfolioRequest struct {
	Title          string     `json:"title" binding:"required"`
	Description    *string    `json:"description"`
	Category       *string    `json:"category"`
	ClientName     *string    `json:"client_name"`
	ResultsSummary *string    `json:"results_summary"`
	CoverMediaID   *uuid.UUID `json:"cover_media_id"`
	ExternalLink   *string    `json:"external_link"`
	Tags           []string   `json:"tags"`
}

func (r portfolioRequest) toInput() service.PortfolioInput {
	return service.PortfolioInput{
		Title:          r.Title,
		Description:    r.Description,
		Category:       r.Category,
		ClientName:     r.ClientName,
		ResultsSummary: r.ResultsSummary,
		CoverMediaID:   r.CoverMediaID,
		ExternalLink:   r.ExternalLink,
		Tags:           r.Tags,
	}
}

// ListMine обрабатывает GET /portfolio.
func (h *PortfolioHandler) ListMine(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	items, err := h.portfolio.ListByUser(c.Request.Context(), userID)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

// ListUserPortfolio обрабатывает GET /users/:id/portfolio.
func (h *PortfolioHandler) ListUserPortfolio(c *gin.Context) {
	userID, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	items, err := h.portfolio.ListByUser(c.Request.Context(), userID)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

// Get обрабатывает GET /portfolio/:id.
func (h *PortfolioHandler) Get(c *gin.Context) {
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	item, err := h.portfolio.Get(c.Request.Context(), id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// Create обрабатывает POST /portfolio.
func (h *PortfolioHandler) Create(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}

	var req portfolioRequest
	if !common.BindJSON(c, &req) {
		return
	}

	item, err := h.portfolio.Create(c.Request.Context(), actor, req.toInput())
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

// Update обрабатывает PUT /portfolio/:id.
func (h *PortfolioHandler) Update(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	var req portfolioRequest
	if !common.BindJSON(c, &req) {
		return
	}

	item, err := h.portfolio.Update(c.Request.Context(), actor, id, req.toInput())
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// Delete обрабатывает DELETE /portfolio/:id.
func (h *PortfolioHandler) Delete(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.portfolio.Delete(c.Request.Context(), actor, id); err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
