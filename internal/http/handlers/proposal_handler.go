package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/admarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/service"
)

// ProposalHandler обслуживает предложения и переговоры по ним.
type ProposalHandler struct {
	proposals *service.ProposalService
}

// NewProposalHandler создаёт хэндлер.
func NewProposalHandler(proposals *service.ProposalService) *ProposalHandler {
	return &ProposalHandler{proposals: proposals}
}

type proposalRequest struct {
	CoverLetter string               `json:"cover_letter" binding:"required"`
	Amount      float64              `json:"amount" binding:"required"`
	Days        int                  `json:"days" binding:"required"`
	Milestones  models.MilestonePlan `json:"milestones"`
}

func (r proposalRequest) toInput() service.ProposalInput {
	return service.ProposalInput{
		CoverLetter: r.CoverLetter,
		Amount:      r.Amount,
		Days:        r.Days,
		Milestones:  r.Milestones,
	}
}

// Submit обрабатывает POST /projects/:id/proposals.
func (h *ProposalHandler) Submit(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	projectID, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	var req proposalRequest
	if !common.BindJSON(c, &req) {
		return
	}

	proposal, err := h.proposals.Submit(c.Request.Context(), userID, projectID, req.toInput())
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, proposal)
}

// ListForProject обрабатывает GET /projects/:id/proposals.
func (h *ProposalHandler) ListForProject(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	projectID, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	items, err := h.proposals.ListForProject(c.Request.Context(), actor, projectID)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

// ListMine обрабатывает GET /proposals/my.
func (h *ProposalHandler) ListMine(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	limit, offset := common.GetPagination(c)

	items, err := h.proposals.ListMine(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

// Get обрабатывает GET /proposals/:id.
func (h *ProposalHandler) Get(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	proposal, err := h.proposals.Get(c.Request.Context(), actor, id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, proposal)
}

// Counter обрабатывает POST /proposals/:id/counter.
func (h *ProposalHandler) Counter(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Amount     float64              `json:"amount" binding:"required"`
		Days       int                  `json:"days" binding:"required"`
		Milestones models.MilestonePlan `json:"milestones"`
		Message    string               `json:"message"`
	}
	if !common.BindJSON(c, &req) {
		return
	}

	proposal, err := h.proposals.Counter(c.Request.Context(), actor, id, service.CounterInput{
		Amount:     req.Amount,
		Days:       req.Days,
		Milestones: req.Milestones,
		Message:    req.Message,
	})
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, proposal)
}

// Accept обрабатывает POST /proposals/:id/accept и возвращает созданный контракт.
func (h *ProposalHandler) Accept(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	contract, err := h.proposals.Accept(c.Request.Context(), actor, id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, contract)
}

// Reject обрабатывает POST /proposals/:id/reject.
func (h *ProposalHandler) Reject(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.proposals.Reject(c.Request.Context(), actor, id); err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Withdraw обрабатывает POST /proposals/:id/withdraw.
func (h *ProposalHandler) Withdraw(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.proposals.Withdraw(c.Request.Context(), actor, id); err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
