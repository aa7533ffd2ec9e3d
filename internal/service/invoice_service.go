package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/admarket-backend/internal/logger"
	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/admarket-backend/internal/tax"
)

// InvoiceRepository зависимости InvoiceService.
type InvoiceRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, int, error)
	Approve(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}

// InvoiceService счета исполнителей и предварительный расчёт налогов.
type InvoiceService struct {
	repo     InvoiceRepository
	tax      *tax.Calculator
	notifier Notifier
}

// NewInvoiceService создаёт сервис счетов.
func NewInvoiceService(repo InvoiceRepository, calc *tax.Calculator, notifier Notifier) *InvoiceService {
	return &InvoiceService{repo: repo, tax: calc, notifier: notifierOrNoop(notifier)}
}

// List возвращает счета пользователя как выставившего или получателя.
// Администратор видит все счета.
func (s *InvoiceService) List(ctx context.Context, actor Actor, filter models.InvoiceFilter) (*Page[models.Invoice], error) {
	if filter.Status != "" {
		if _, ok := models.ValidInvoiceStatuses[filter.Status]; !ok {
			return nil, apperror.Validation("неизвестный статус счёта")
		}
	}
	if !actor.IsAdmin() {
		filter.UserID = &actor.ID
	}
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, translate(err, "не удалось получить счета")
	}
	return newPage(items, total, filter.Limit, filter.Offset), nil
}

// Get возвращает счёт стороне сделки или администратору.
func (s *InvoiceService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "не удалось загрузить счёт")
	}
	if invoice.ClientID != actor.ID && invoice.FreelancerID != actor.ID && !actor.IsAdmin() {
		return nil, apperror.Forbidden("счёт выставлен другим сторонам")
	}
	return invoice, nil
}

// Approve утверждает счёт клиентом, после чего этап можно выплатить.
func (s *InvoiceService) Approve(ctx context.Context, actor Actor, id uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if invoice.ClientID != actor.ID {
		return nil, apperror.Forbidden("утвердить счёт может только клиент")
	}

	approved, err := s.repo.Approve(ctx, id)
	if err != nil {
		return nil, translate(err, "не удалось утвердить счёт")
	}

	notify(s.notifier, "invoice.approved", map[string]any{
		"invoice_id":     approved.ID,
		"invoice_number": approved.Number,
		"milestone_id":   approved.MilestoneID,
	}, approved.FreelancerID)

	return approved, nil
}

// Cancel аннулирует счёт исполнителем до утверждения.
func (s *InvoiceService) Cancel(ctx context.Context, actor Actor, id uuid.UUID) error {
	invoice, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if invoice.FreelancerID != actor.ID {
		return apperror.Forbidden("аннулировать счёт может только исполнитель")
	}
	if err := s.repo.Cancel(ctx, id); err != nil {
		return translate(err, "не удалось аннулировать счёт")
	}

	logger.Log.WithFields(logrus.Fields{"invoice_id": id, "number": invoice.Number}).Info("invoice: аннулирован")

	notify(s.notifier, "invoice.cancelled", map[string]any{
		"invoice_id":     invoice.ID,
		"invoice_number": invoice.Number,
		"milestone_id":   invoice.MilestoneID,
	}, invoice.ClientID)
	return nil
}

// TaxPreviewInput параметры предварительного расчёта.
type TaxPreviewInput struct {
	Subtotal    float64
	Supplier    tax.Party
	Customer    tax.Party
	IRPFReduced bool
}

// PreviewTax считает налоги без выставления счёта.
func (s *InvoiceService) PreviewTax(in TaxPreviewInput) (tax.Result, error) {
	in.Supplier.CountryCode = strings.ToUpper(strings.TrimSpace(in.Supplier.CountryCode))
	in.Customer.CountryCode = strings.ToUpper(strings.TrimSpace(in.Customer.CountryCode))

	result, err := s.tax.Calculate(tax.Input{
		Supplier:    in.Supplier,
		IRPFReduced: in.IRPFReduced,
		Customer:    in.Customer,
		Subtotal:    in.Subtotal,
	})
	if err != nil {
		return tax.Result{}, taxError(err)
	}
	return result, nil
}

// billingParty снимок реквизитов. Без профиля остаётся только идентификатор.
func billingParty(userID uuid.UUID, p *models.Profile) models.BillingParty {
	party := models.BillingParty{UserID: userID}
	if p == nil {
		return party
	}
	party.Name = p.DisplayName
	party.IsBusiness = p.IsBusiness
	if p.CompanyName != nil {
		party.CompanyName = *p.CompanyName
	}
	if p.TaxID != nil {
		party.TaxID = *p.TaxID
	}
	if p.BillingAddress != nil {
		party.Address = *p.BillingAddress
	}
	if p.CountryCode != nil {
		party.CountryCode = *p.CountryCode
	}
	return party
}

func taxParty(b models.BillingParty) tax.Party {
	return tax.Party{CountryCode: b.CountryCode, IsBusiness: b.IsBusiness, TaxID: b.TaxID}
}

func applyTaxResult(invoice *models.Invoice, r tax.Result) {
	invoice.Subtotal = r.Subtotal
	invoice.VATRate = r.VATRate
	invoice.VATAmount = r.VATAmount
	invoice.IRPFRate = r.IRPFRate
	invoice.IRPFAmount = r.IRPFAmount
	invoice.Total = r.Total
	invoice.TaxRegime = string(r.Regime)
	if r.Note != "" {
		note := r.Note
		invoice.TaxNote = &note
	}
}
