package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/admarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/service"
)

// AdminHandler обслуживает back-office. Роль admin проверяется в middleware.
type AdminHandler struct {
	admin    *service.AdminService
	wallets  *service.WalletService
	invoices *service.InvoiceService
}

// NewAdminHandler создаёт хэндлер.
func NewAdminHandler(admin *service.AdminService, wallets *service.WalletService, invoices *service.InvoiceService) *AdminHandler {
	return &AdminHandler{admin: admin, wallets: wallets, invoices: invoices}
}

// Stats обрабатывает GET /admin/stats.
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.admin.Stats(c.Request.Context())
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ListUsers обрабатывает GET /admin/users?role=&q=&active=.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	limit, offset := common.GetPagination(c)

	filter := models.UserFilter{
		Role:   c.Query("role"),
		Query:  c.Query("q"),
		Limit:  limit,
		Offset: offset,
	}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			common.RespondBadRequest(c, "active должен быть true или false")
			return
		}
		filter.IsActive = &active
	}

	page, err := h.admin.ListUsers(c.Request.Context(), filter)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// SetActive обрабатывает PUT /admin/users/:id/active.
func (h *AdminHandler) SetActive(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	userID, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if !common.BindJSON(c, &req) {
		return
	}

	if err := h.admin.SetActive(c.Request.Context(), actor, userID, *req.Active); err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": userID, "is_active": *req.Active})
}

// ListTransactions обрабатывает GET /admin/transactions?user_id=&type=&status=.
func (h *AdminHandler) ListTransactions(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	limit, offset := common.GetPagination(c)

	filter := models.TransactionFilter{
		Type:   c.Query("type"),
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	}
	if raw := c.Query("user_id"); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			common.RespondBadRequest(c, "user_id должен быть UUID")
			return
		}
		filter.UserID = &userID
	}

	page, err := h.wallets.ListTransactions(c.Request.Context(), actor, filter)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// ListInvoices обрабатывает GET /admin/invoices?user_id=&status=.
func (h *AdminHandler) ListInvoices(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	limit, offset := common.GetPagination(c)

	filter := models.InvoiceFilter{
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	}
	if raw := c.Query("user_id"); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			common.RespondBadRequest(c, "user_id должен быть UUID")
			return
		}
		filter.UserID = &userID
	}

	page, err := h.invoices.List(c.Request.Context(), actor, filter)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// ManualCredit обрабатывает POST /admin/users/:id/credit.
func (h *AdminHandler) ManualCredit(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	clientID, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	var req amountRequest
	if !common.BindJSON(c, &req) {
		return
	}

	balance, err := h.wallets.ManualCredit(c.Request.Context(), actor, clientID, req.Amount)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"client_id": clientID, "available_balance": balance})
}
