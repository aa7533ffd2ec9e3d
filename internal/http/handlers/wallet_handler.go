package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/admarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/service"
)

// Stripe ограничивает размер события 64 КБ, оставляем запас.
const maxWebhookBody = 256 << 10

// WalletHandler обслуживает кошельки, пополнения, выплаты и вебхук Stripe.
type WalletHandler struct {
	wallets  *service.WalletService
	webhooks *service.StripeWebhookService
}

// NewWalletHandler создаёт хэндлер.
func NewWalletHandler(wallets *service.WalletService, webhooks *service.StripeWebhookService) *WalletHandler {
	return &WalletHandler{wallets: wallets, webhooks: webhooks}
}

type amountRequest struct {
	Amount float64 `json:"amount" binding:"required"`
}

// GetWallet обрабатывает GET /wallet.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}

	wallet, err := h.wallets.Get(c.Request.Context(), actor)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, wallet)
}

// CreateDeposit обрабатывает POST /wallet/deposits.
func (h *WalletHandler) CreateDeposit(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}

	var req amountRequest
	if !common.BindJSON(c, &req) {
		return
	}

	deposit, err := h.wallets.CreateDeposit(c.Request.Context(), actor, req.Amount)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, deposit)
}

// Withdraw обрабатывает POST /wallet/withdrawals.
func (h *WalletHandler) Withdraw(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}

	var req amountRequest
	if !common.BindJSON(c, &req) {
		return
	}

	withdrawal, err := h.wallets.Withdraw(c.Request.Context(), actor, req.Amount)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, withdrawal)
}

// ListTransactions обрабатывает GET /wallet/transactions.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	limit, offset := common.GetPagination(c)

	page, err := h.wallets.ListTransactions(c.Request.Context(), actor, models.TransactionFilter{
		Type:   c.Query("type"),
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// ConnectOnboarding обрабатывает POST /stripe/connect.
func (h *WalletHandler) ConnectOnboarding(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}

	url, err := h.wallets.ConnectOnboarding(c.Request.Context(), actor)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

// StripeWebhook обрабатывает POST /stripe/webhook. Тело читается целиком:
// подпись считается по сырым байтам.
func (h *WalletHandler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		common.RespondError(c, http.StatusRequestEntityTooLarge, "тело запроса слишком большое")
		return
	}

	if err := h.webhooks.Handle(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
