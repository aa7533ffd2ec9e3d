package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/admarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/admarket-backend/internal/service"
)

// ContractHandler обслуживает контракты и этапы с эскроу.
type ContractHandler struct {
	contracts *service.ContractService
}

// NewContractHandler создаёт хэндлер.
func NewContractHandler(contracts *service.ContractService) *ContractHandler {
	return &ContractHandler{contracts: contracts}
}

// ListMine обрабатывает GET /contracts?status=.
func (h *ContractHandler) ListMine(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	limit, offset := common.GetPagination(c)

	items, err := h.contracts.ListMine(c.Request.Context(), userID, c.Query("status"), limit, offset)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

// Get обрабатывает GET /contracts/:id.
func (h *ContractHandler) Get(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	contract, err := h.contracts.Get(c.Request.Context(), actor, id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

// Cancel обрабатывает POST /contracts/:id/cancel.
func (h *ContractHandler) Cancel(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	contract, err := h.contracts.Cancel(c.Request.Context(), actor, id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, contract)
}

// Fund обрабатывает POST /milestones/:id/fund.
func (h *ContractHandler) Fund(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	milestone, err := h.contracts.Fund(c.Request.Context(), actor, id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, milestone)
}

// Submit обрабатывает POST /milestones/:id/submit.
func (h *ContractHandler) Submit(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Note    *string    `json:"note"`
		MediaID *uuid.UUID `json:"media_id"`
	}
	if !common.BindJSON(c, &req) {
		return
	}

	milestone, err := h.contracts.Submit(c.Request.Context(), actor, id, service.SubmitInput{
		Note:    req.Note,
		MediaID: req.MediaID,
	})
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, milestone)
}

// RequestChanges обрабатывает POST /milestones/:id/request-changes.
func (h *ContractHandler) RequestChanges(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Note string `json:"note" binding:"required"`
	}
	if !common.BindJSON(c, &req) {
		return
	}

	milestone, err := h.contracts.RequestChanges(c.Request.Context(), actor, id, req.Note)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, milestone)
}

// Approve обрабатывает POST /milestones/:id/approve и возвращает выставленный счёт.
func (h *ContractHandler) Approve(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	invoice, err := h.contracts.Approve(c.Request.Context(), actor, id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, invoice)
}

// Release обрабатывает POST /milestones/:id/release.
func (h *ContractHandler) Release(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	milestone, err := h.contracts.Release(c.Request.Context(), actor, id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, milestone)
}
