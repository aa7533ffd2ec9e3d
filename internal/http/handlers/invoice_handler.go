package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/admarket-backend/internal/http/handlers/common"
	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/service"
	"github.com/ignatzorin/admarket-backend/internal/tax"
)

// InvoiceHandler обслуживает счета и предварительный расчёт налогов.
type InvoiceHandler struct {
	invoices *service.InvoiceService
}

// NewInvoiceHandler создаёт хэндлер.
func NewInvoiceHandler(invoices *service.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

type taxPartyRequest struct {
	CountryCode string `json:"country_code"`
	IsBusiness  bool   `json:"is_business"`
	TaxID       string `json:"tax_id"`
}

func (r taxPartyRequest) toParty() tax.Party {
	return tax.Party{CountryCode: r.CountryCode, IsBusiness: r.IsBusiness, TaxID: r.TaxID}
}

// List обрабатывает GET /invoices?status=.
func (h *InvoiceHandler) List(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	limit, offset := common.GetPagination(c)

	page, err := h.invoices.List(c.Request.Context(), actor, models.InvoiceFilter{
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

// Get обрабатывает GET /invoices/:id.
func (h *InvoiceHandler) Get(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	invoice, err := h.invoices.Get(c.Request.Context(), actor, id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, invoice)
}

// Approve обрабатывает POST /invoices/:id/approve.
func (h *InvoiceHandler) Approve(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	invoice, err := h.invoices.Approve(c.Request.Context(), actor, id)
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, invoice)
}

// Cancel обрабатывает POST /invoices/:id/cancel.
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	actor, ok := common.CurrentActor(c)
	if !ok {
		return
	}
	id, ok := common.PathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.invoices.Cancel(c.Request.Context(), actor, id); err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// PreviewTax обрабатывает POST /invoices/tax-preview.
func (h *InvoiceHandler) PreviewTax(c *gin.Context) {
	var req struct {
		Subtotal    float64         `json:"subtotal" binding:"required"`
		Supplier    taxPartyRequest `json:"supplier"`
		Customer    taxPartyRequest `json:"customer"`
		IRPFReduced bool            `json:"irpf_reduced"`
	}
	if !common.BindJSON(c, &req) {
		return
	}

	result, err := h.invoices.PreviewTax(service.TaxPreviewInput{
		Subtotal:    req.Subtotal,
		Supplier:    req.Supplier.toParty(),
		Customer:    req.Customer.toParty(),
		IRPFReduced: req.IRPFReduced,
	})
	if err != nil {
		common.RespondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
