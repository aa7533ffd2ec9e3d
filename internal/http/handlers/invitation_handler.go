package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/admarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/admarket-backend/internal/service"
)

// InvitationHandler обслуживает приглашения исполнителей в проекты.
type InvitationHandler struct {
	invitations *service.InvitationService
}

// NewInvitationHandler создаёт хэндлер.
func NewInvitationHandler(invitations *service.InvitationService) *InvitationHandler {
	return &InvitationHandler{invitations: invitations}
}

// Invite обрабатывает POST /projects/:id/invitations.
func (h *InvitationHandler) Invite(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	projectID, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		FreelancerID uuid.UUID `json:"freelancer_id" binding:"required"`
		Message      *string   `json:"message"`
	}
	if !common.BindJSON(c, &req) {
		return
	}

	invitation, err := h.invitations.Invite(c.Request.Context(), userID, service.InviteInput{
		ProjectID:    projectID,
		FreelancerID: req.FreelancerID,
		Message:      req.Message,
	})
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, invitation)
}

// ListForProject обрабатывает GET /projects/:id/invitations.
func (h *InvitationHandler) ListForProject(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	projectID, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	items, err := h.invitations.ListForProject(c.Request.Context(), actor, projectID)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

// ListReceived обрабатывает GET /invitations?status=.
func (h *InvitationHandler) ListReceived(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	items, err := h.invitations.ListReceived(c.Request.Context(), userID, c.Query("status"))
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

// Reject обрабатывает POST /invitations/:id/reject.
func (h *InvitationHandler) Reject(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.invitations.Reject(c.Request.Context(), userID, id); err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// SubmitOffer обрабатывает POST /invitations/:id/offer.
func (h *InvitationHandler) SubmitOffer(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	var req proposalRequest
	if !common.BindJSON(c, &req) {
		return
	}

	proposal, err := h.invitations.SubmitOffer(c.Request.Context(), userID, id, req.toInput())
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, proposal)
}
