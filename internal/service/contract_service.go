package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/admarket-backend/internal/events"
	"github.com/ignatzorin/admarket-backend/internal/logger"
	"github.com/ignatzorin/admarket-backend/internal/metrics"
	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/admarket-backend/internal/repository"
	"github.com/ignatzorin/admarket-backend/internal/tax"
	"github.com/ignatzorin/admarket-backend/internal/validation"
)

// ContractRepository зависимости ContractService.
type ContractRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	GetWithMilestones(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.Contract, error)
	GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	ListMilestones(ctx context.Context, contractID uuid.UUID) ([]models.Milestone, error)
	SubmitMilestone(ctx context.Context, id uuid.UUID, note *string, mediaID *uuid.UUID) (*models.Milestone, error)
	RequestChanges(ctx context.Context, id uuid.UUID, note string) (*models.Milestone, error)
	CancelPendingMilestones(ctx context.Context, contractID uuid.UUID) error
	Cancel(ctx context.Context, contractID uuid.UUID) error
}

// EscrowRepository операции escrow через хранимые функции.
type EscrowRepository interface {
	LockFunds(ctx context.Context, projectID, clientID, milestoneID uuid.UUID, amount float64) (float64, error)
	ReleaseMilestone(ctx context.Context, milestoneID uuid.UUID, feeRate float64) (float64, error)
	RefundMilestone(ctx context.Context, milestoneID uuid.UUID) (float64, error)
}

// InvoiceIssuer выставление счетов по этапам.
type InvoiceIssuer interface {
	IssueForMilestone(ctx context.Context, invoice *models.Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error)
}

// BillingProfileReader профиль с реквизитами для счёта.
type BillingProfileReader interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

// ContractConfig параметры расчётов по договорам.
type ContractConfig struct {
	FeeRate        float64
	InvoiceDueDays int
}

// ContractService договоры, этапы и escrow.
type ContractService struct {
	contracts ContractRepository
	escrow    EscrowRepository
	invoices  InvoiceIssuer
	profiles  BillingProfileReader
	tax       *tax.Calculator
	notifier  Notifier
	publisher events.Publisher
	cfg       ContractConfig
	now       func() time.Time
}

// NewContractService создаёт сервис договоров.
func NewContractService(
	contracts ContractRepository,
	escrow EscrowRepository,
	invoices InvoiceIssuer,
	profiles BillingProfileReader,
	calc *tax.Calculator,
	notifier Notifier,
	publisher events.Publisher,
	cfg ContractConfig,
) *ContractService {
	return &ContractService{
		contracts: contracts,
		escrow:    escrow,
		invoices:  invoices,
		profiles:  profiles,
		tax:       calc,
		notifier:  notifierOrNoop(notifier),
		publisher: publisherOrNoop(publisher),
		cfg:       cfg,
		now:       time.Now,
	}
}

// Get возвращает договор с этапами участнику или администратору.
func (s *ContractService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*models.Contract, error) {
	contract, err := s.contracts.GetWithMilestones(ctx, id)
	if err != nil {
		return nil, translate(err, "не удалось загрузить договор")
	}
	if !contract.IsParticipant(actor.ID) && !actor.IsAdmin() {
		return nil, apperror.Forbidden("вы не участвуете в этом договоре")
	}
	return contract, nil
}

// ListMine возвращает договоры пользователя.
func (s *ContractService) ListMine(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.Contract, error) {
	limit, offset = normalizePage(limit, offset)
	items, err := s.contracts.ListByUser(ctx, userID, strings.TrimSpace(status), limit, offset)
	if err != nil {
		return nil, translate(err, "не удалось получить договоры")
	}
	return items, nil
}

// loadMilestone возвращает этап и его договор, проверяя участие actor.
func (s *ContractService) loadMilestone(ctx context.Context, actor Actor, milestoneID uuid.UUID) (*models.Milestone, *models.Contract, error) {
	milestone, err := s.contracts.GetMilestone(ctx, milestoneID)
	if err != nil {
		return nil, nil, translate(err, "не удалось загрузить этап")
	}
	contract, err := s.contracts.GetByID(ctx, milestone.ContractID)
	if err != nil {
		return nil, nil, translate(err, "не удалось загрузить договор")
	}
	if !contract.IsParticipant(actor.ID) && !actor.IsAdmin() {
		return nil, nil, apperror.Forbidden("вы не участвуете в этом договоре")
	}
	return milestone, contract, nil
}

func requireActive(contract *models.Contract) error {
	if contract.Status != models.ContractStatusActive {
		return apperror.Conflict("договор не активен")
	}
	return nil
}

// Fund блокирует сумму этапа на кошельке клиента.
func (s *ContractService) Fund(ctx context.Context, actor Actor, milestoneID uuid.UUID) (*models.Milestone, error) {
	milestone, contract, err := s.loadMilestone(ctx, actor, milestoneID)
	if err != nil {
		return nil, err
	}
	if contract.ClientID != actor.ID {
		return nil, apperror.Forbidden("оплатить этап может только клиент")
	}
	if err := requireActive(contract); err != nil {
		return nil, err
	}
	if milestone.Status != models.MilestoneStatusPending {
		return nil, apperror.Conflict("этап уже оплачен или закрыт")
	}

	available, err := s.escrow.LockFunds(ctx, contract.ProjectID, contract.ClientID, milestone.ID, milestone.Amount)
	metrics.RecordPayment("lock", err)
	if err != nil {
		return nil, translate(err, "не удалось заблокировать средства")
	}

	logger.Log.WithFields(logrus.Fields{
		"milestone_id": milestone.ID,
		"contract_id":  contract.ID,
		"amount":       milestone.Amount,
		"available":    available,
	}).Info("escrow: средства заблокированы")

	notify(s.notifier, "milestone.funded", map[string]any{
		"milestone_id": milestone.ID,
		"contract_id":  contract.ID,
		"amount":       milestone.Amount,
	}, contract.FreelancerID)

	return s.reload(ctx, milestone.ID)
}

// SubmitInput результат работы по этапу.
type SubmitInput struct {
	Note    *string
	MediaID *uuid.UUID
}

// Submit сдаёт результат по оплаченному этапу.
func (s *ContractService) Submit(ctx context.Context, actor Actor, milestoneID uuid.UUID, in SubmitInput) (*models.Milestone, error) {
	milestone, contract, err := s.loadMilestone(ctx, actor, milestoneID)
	if err != nil {
		return nil, err
	}
	if contract.FreelancerID != actor.ID {
		return nil, apperror.Forbidden("сдать этап может только исполнитель")
	}
	if err := requireActive(contract); err != nil {
		return nil, err
	}
	if milestone.Status != models.MilestoneStatusFunded {
		return nil, apperror.Conflict("сдать можно только оплаченный этап")
	}
	if err := validation.ValidateOptionalLength("комментарий", in.Note, validation.MaxPortfolioTextLength); err != nil {
		return nil, validationError(err)
	}

	updated, err := s.contracts.SubmitMilestone(ctx, milestone.ID, trimmedOrNil(in.Note), in.MediaID)
	if err != nil {
		return nil, translate(err, "не удалось сдать этап")
	}

	data := map[string]any{
		"milestone_id":    updated.ID,
		"contract_id":     contract.ID,
		"milestone_title": updated.Title,
		"amount":          updated.Amount,
	}
	notify(s.notifier, events.MilestoneSubmitted, data, contract.ClientID)
	publishAsync(s.publisher, events.New(events.MilestoneSubmitted, data, contract.ClientID))

	return updated, nil
}

// RequestChanges возвращает сданный этап на доработку.
func (s *ContractService) RequestChanges(ctx context.Context, actor Actor, milestoneID uuid.UUID, note string) (*models.Milestone, error) {
	milestone, contract, err := s.loadMilestone(ctx, actor, milestoneID)
	if err != nil {
		return nil, err
	}
	if contract.ClientID != actor.ID {
		return nil, apperror.Forbidden("запросить доработку может только клиент")
	}
	if err := requireActive(contract); err != nil {
		return nil, err
	}
	if milestone.Status != models.MilestoneStatusSubmitted {
		return nil, apperror.Conflict("доработку можно запросить только по сданному этапу")
	}

	note = strings.TrimSpace(note)
	if err := validation.ValidateLength("комментарий", note, 1, validation.MaxNegotiationMessageLen); err != nil {
		return nil, validationError(err)
	}

	updated, err := s.contracts.RequestChanges(ctx, milestone.ID, note)
	if err != nil {
		return nil, translate(err, "не удалось вернуть этап на доработку")
	}

	notify(s.notifier, "milestone.changes_requested", map[string]any{
		"milestone_id": updated.ID,
		"contract_id":  contract.ID,
		"note":         note,
	}, contract.FreelancerID)

	return updated, nil
}

// Approve принимает этап и выставляет счёт исполнителя.
func (s *ContractService) Approve(ctx context.Context, actor Actor, milestoneID uuid.UUID) (*models.Invoice, error) {
	milestone, contract, err := s.loadMilestone(ctx, actor, milestoneID)
	if err != nil {
		return nil, err
	}
	if contract.ClientID != actor.ID {
		return nil, apperror.Forbidden("принять этап может только клиент")
	}
	if err := requireActive(contract); err != nil {
		return nil, err
	}
	if milestone.Status != models.MilestoneStatusSubmitted {
		return nil, apperror.Conflict("принять можно только сданный этап")
	}

	supplier, customer, irpfReduced, err := s.billingParties(ctx, contract)
	if err != nil {
		return nil, err
	}

	result, err := s.tax.Calculate(tax.Input{
		Supplier:    taxParty(supplier),
		IRPFReduced: irpfReduced,
		Customer:    taxParty(customer),
		Subtotal:    milestone.Amount,
	})
	if err != nil {
		return nil, taxError(err)
	}

	issued := s.now().UTC()
	invoice := &models.Invoice{
		ContractID:   contract.ID,
		MilestoneID:  milestone.ID,
		FreelancerID: contract.FreelancerID,
		ClientID:     contract.ClientID,
		IssueDate:    issued,
		DueDate:      issued.AddDate(0, 0, s.cfg.InvoiceDueDays),
		Currency:     contract.Currency,
		Supplier:     supplier,
		Customer:     customer,
	}
	applyTaxResult(invoice, result)

	if err := s.invoices.IssueForMilestone(ctx, invoice); err != nil {
		return nil, translate(err, "не удалось выставить счёт")
	}
	metrics.RecordInvoiceIssued(invoice.TaxRegime)

	logger.Log.WithFields(logrus.Fields{
		"invoice_id":   invoice.ID,
		"number":       invoice.Number,
		"milestone_id": milestone.ID,
		"regime":       invoice.TaxRegime,
		"total":        invoice.Total,
	}).Info("invoice: выставлен")

	data := map[string]any{
		"invoice_id":     invoice.ID,
		"invoice_number": invoice.Number,
		"milestone_id":   milestone.ID,
		"contract_id":    contract.ID,
		"total":          invoice.Total,
		"currency":       invoice.Currency,
	}
	notify(s.notifier, events.InvoiceIssued, data, contract.ClientID, contract.FreelancerID)
	publishAsync(s.publisher, events.New(events.InvoiceIssued, data, contract.ClientID, contract.FreelancerID))

	return invoice, nil
}

// billingParties собирает реквизиты исполнителя и клиента для счёта.
func (s *ContractService) billingParties(ctx context.Context, contract *models.Contract) (models.BillingParty, models.BillingParty, bool, error) {
	supplierProfile, err := s.profiles.GetProfile(ctx, contract.FreelancerID)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return models.BillingParty{}, models.BillingParty{}, false, translate(err, "не удалось загрузить реквизиты исполнителя")
	}
	customerProfile, err := s.profiles.GetProfile(ctx, contract.ClientID)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return models.BillingParty{}, models.BillingParty{}, false, translate(err, "не удалось загрузить реквизиты клиента")
	}

	supplier := billingParty(contract.FreelancerID, supplierProfile)
	if supplier.CountryCode == "" {
		return models.BillingParty{}, models.BillingParty{}, false,
			apperror.Conflict("исполнитель не указал страну в платёжном профиле")
	}
	irpfReduced := supplierProfile != nil && supplierProfile.IRPFReduced

	return supplier, billingParty(contract.ClientID, customerProfile), irpfReduced, nil
}

// Release выплачивает этап исполнителю за вычетом комиссии площадки.
func (s *ContractService) Release(ctx context.Context, actor Actor, milestoneID uuid.UUID) (*models.Milestone, error) {
	milestone, contract, err := s.loadMilestone(ctx, actor, milestoneID)
	if err != nil {
		return nil, err
	}
	if contract.ClientID != actor.ID && !actor.IsAdmin() {
		return nil, apperror.Forbidden("выплату подтверждает клиент или администратор")
	}

	switch {
	case milestone.Status == models.MilestoneStatusPaid:
		return nil, apperror.Conflict("этап уже оплачен")
	case milestone.Status != models.MilestoneStatusApproved:
		return nil, apperror.Conflict("этап ещё не принят клиентом")
	case milestone.InvoiceID == nil:
		return nil, apperror.Conflict("по этапу не выставлен счёт")
	}

	invoice, err := s.invoices.GetByID(ctx, *milestone.InvoiceID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить счёт")
	}
	if invoice.Status != models.InvoiceStatusApproved {
		return nil, apperror.Conflict("счёт по этапу ещё не утверждён")
	}

	net, err := s.escrow.ReleaseMilestone(ctx, milestone.ID, s.cfg.FeeRate)
	metrics.RecordPayment("release", err)
	if err != nil {
		return nil, translate(err, "не удалось выплатить этап")
	}

	logger.Log.WithFields(logrus.Fields{
		"milestone_id": milestone.ID,
		"contract_id":  contract.ID,
		"gross":        milestone.Amount,
		"net":          net,
		"actor_id":     actor.ID,
	}).Info("escrow: этап выплачен")

	data := map[string]any{
		"milestone_id":    milestone.ID,
		"contract_id":     contract.ID,
		"milestone_title": milestone.Title,
		"amount":          milestone.Amount,
		"net_amount":      net,
		"currency":        contract.Currency,
	}
	notify(s.notifier, events.MilestonePaid, data, contract.FreelancerID, contract.ClientID)
	publishAsync(s.publisher, events.New(events.MilestonePaid, data, contract.FreelancerID, contract.ClientID))

	return s.reload(ctx, milestone.ID)
}

// Cancel отменяет договор: оплаченные этапы возвращаются клиенту,
// неоплаченные отменяются. Этапы, сданные или принятые, блокируют отмену.
func (s *ContractService) Cancel(ctx context.Context, actor Actor, contractID uuid.UUID) (*models.Contract, error) {
	contract, err := s.contracts.GetWithMilestones(ctx, contractID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить договор")
	}
	if contract.ClientID != actor.ID && !actor.IsAdmin() {
		return nil, apperror.Forbidden("отменить договор может только клиент")
	}
	if err := requireActive(contract); err != nil {
		return nil, err
	}

	for _, m := range contract.Milestones {
		if m.Status == models.MilestoneStatusSubmitted || m.Status == models.MilestoneStatusApproved {
			return nil, apperror.Conflict("по договору есть сданные этапы: сначала примите или верните их")
		}
	}

	// Каждый этап возвращается отдельной функцией и сразу становится cancelled.
	// При ошибке договор остаётся активным, повторная отмена вернёт оставшиеся этапы.
	for _, m := range contract.Milestones {
		if m.Status != models.MilestoneStatusFunded {
			continue
		}
		_, err := s.escrow.RefundMilestone(ctx, m.ID)
		metrics.RecordPayment("refund", err)
		if err != nil {
			return nil, translate(err, "не удалось вернуть средства по этапу")
		}
	}

	if err := s.contracts.CancelPendingMilestones(ctx, contract.ID); err != nil {
		return nil, translate(err, "не удалось отменить этапы")
	}
	if err := s.contracts.Cancel(ctx, contract.ID); err != nil {
		return nil, translate(err, "не удалось отменить договор")
	}

	logger.Log.WithFields(logrus.Fields{"contract_id": contract.ID, "actor_id": actor.ID}).Info("contract: отменён")

	notify(s.notifier, "contract.cancelled", map[string]any{
		"contract_id": contract.ID,
		"project_id":  contract.ProjectID,
	}, contract.FreelancerID, contract.ClientID)

	return s.Get(ctx, actor, contract.ID)
}

func (s *ContractService) reload(ctx context.Context, milestoneID uuid.UUID) (*models.Milestone, error) {
	milestone, err := s.contracts.GetMilestone(ctx, milestoneID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить этап")
	}
	return milestone, nil
}

func taxError(err error) error {
	switch {
	case errors.Is(err, tax.ErrSupplierCountry):
		return apperror.Conflict(err.Error())
	case errors.Is(err, tax.ErrInvalidAmount):
		return apperror.Validation(err.Error())
	}
	return apperror.Internal(err, "не удалось рассчитать налоги")
}
