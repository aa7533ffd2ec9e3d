package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/payments"
	"github.com/ignatzorin/admarket-backend/internal/repository"
)

type sentEvent struct {
	UserID  uuid.UUID
	Event   string
	Persist bool
}

// recordingNotifier запоминает отправленные события.
type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *recordingNotifier) BroadcastToUser(userID uuid.UUID, event string, data any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{UserID: userID, Event: event, Persist: true})
	return nil
}

func (n *recordingNotifier) Push(userID uuid.UUID, event string, data any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{UserID: userID, Event: event})
	return nil
}

func (n *recordingNotifier) sentTo(userID uuid.UUID, event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e.UserID == userID && e.Event == event {
			return true
		}
	}
	return false
}

type mockContractRepo struct {
	mock.Mock
}

func (m *mockContractRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contract), args.Error(1)
}

func (m *mockContractRepo) GetWithMilestones(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contract), args.Error(1)
}

func (m *mockContractRepo) ListByUser(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.Contract, error) {
	args := m.Called(ctx, userID, status, limit, offset)
	return args.Get(0).([]models.Contract), args.Error(1)
}

func (m *mockContractRepo) GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Milestone), args.Error(1)
}

func (m *mockContractRepo) ListMilestones(ctx context.Context, contractID uuid.UUID) ([]models.Milestone, error) {
	args := m.Called(ctx, contractID)
	return args.Get(0).([]models.Milestone), args.Error(1)
}

func (m *mockContractRepo) SubmitMilestone(ctx context.Context, id uuid.UUID, note *string, mediaID *uuid.UUID) (*models.Milestone, error) {
	args := m.Called(ctx, id, note, mediaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Milestone), args.Error(1)
}

func (m *mockContractRepo) RequestChanges(ctx context.Context, id uuid.UUID, note string) (*models.Milestone, error) {
	args := m.Called(ctx, id, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Milestone), args.Error(1)
}

func (m *mockContractRepo) CancelPendingMilestones(ctx context.Context, contractID uuid.UUID) error {
	return m.Called(ctx, contractID).Error(0)
}

func (m *mockContractRepo) Cancel(ctx context.Context, contractID uuid.UUID) error {
	return m.Called(ctx, contractID).Error(0)
}

type mockEscrowRepo struct {
	mock.Mock
}

func (m *mockEscrowRepo) LockFunds(ctx context.Context, projectID, clientID, milestoneID uuid.UUID, amount float64) (float64, error) {
	args := m.Called(ctx, projectID, clientID, milestoneID, amount)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockEscrowRepo) ReleaseMilestone(ctx context.Context, milestoneID uuid.UUID, feeRate float64) (float64, error) {
	args := m.Called(ctx, milestoneID, feeRate)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockEscrowRepo) RefundMilestone(ctx context.Context, milestoneID uuid.UUID) (float64, error) {
	args := m.Called(ctx, milestoneID)
	return args.Get(0).(float64), args.Error(1)
}

type mockInvoiceIssuer struct {
	mock.Mock
}

func (m *mockInvoiceIssuer) IssueForMilestone(ctx context.Context, invoice *models.Invoice) error {
	args := m.Called(ctx, invoice)
	if args.Error(0) == nil {
		invoice.ID = uuid.New()
		invoice.Number = repository.FormatInvoiceNumber(invoice.IssueDate.Year(), 1)
		invoice.Status = models.InvoiceStatusIssued
	}
	return args.Error(0)
}

func (m *mockInvoiceIssuer) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

// fakeProfiles отдаёт профили из карты.
type fakeProfiles map[uuid.UUID]*models.Profile

func (f fakeProfiles) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	if p, ok := f[userID]; ok {
		return p, nil
	}
	return nil, repository.ErrUserNotFound
}

type mockProposalRepo struct {
	mock.Mock
}

func (m *mockProposalRepo) Create(ctx context.Context, proposal *models.Proposal) error {
	args := m.Called(ctx, proposal)
	if args.Error(0) == nil {
		proposal.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *mockProposalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Proposal), args.Error(1)
}

func (m *mockProposalRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Proposal, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).([]models.Proposal), args.Error(1)
}

func (m *mockProposalRepo) ListByFreelancer(ctx context.Context, freelancerID uuid.UUID, limit, offset int) ([]models.Proposal, error) {
	args := m.Called(ctx, freelancerID, limit, offset)
	return args.Get(0).([]models.Proposal), args.Error(1)
}

func (m *mockProposalRepo) AppendCounterOffer(ctx context.Context, proposal *models.Proposal, readAt time.Time) error {
	return m.Called(ctx, proposal, readAt).Error(0)
}

func (m *mockProposalRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *mockProposalRepo) Accept(ctx context.Context, params repository.AcceptParams) (*models.Contract, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Contract), args.Error(1)
}

// fakeProjects отдаёт проекты из карты.
type fakeProjects map[uuid.UUID]*models.Project

func (f fakeProjects) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	if p, ok := f[id]; ok {
		return p, nil
	}
	return nil, repository.ErrProjectNotFound
}

type mockWalletRepo struct {
	mock.Mock
}

func (m *mockWalletRepo) GetClientWallet(ctx context.Context, clientID uuid.UUID) (*models.ClientWallet, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ClientWallet), args.Error(1)
}

func (m *mockWalletRepo) GetFreelancerWallet(ctx context.Context, freelancerID uuid.UUID) (*models.FreelancerWallet, error) {
	args := m.Called(ctx, freelancerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FreelancerWallet), args.Error(1)
}

func (m *mockWalletRepo) AddBalance(ctx context.Context, clientID uuid.UUID, amount float64, reference string) (float64, error) {
	args := m.Called(ctx, clientID, amount, reference)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockWalletRepo) Withdraw(ctx context.Context, freelancerID uuid.UUID, amount float64, reference string) (uuid.UUID, error) {
	args := m.Called(ctx, freelancerID, amount, reference)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *mockWalletRepo) RestoreWithdrawal(ctx context.Context, txID uuid.UUID, reason string) error {
	return m.Called(ctx, txID, reason).Error(0)
}

func (m *mockWalletRepo) CompletePayout(ctx context.Context, txID uuid.UUID, transferID string) error {
	return m.Called(ctx, txID, transferID).Error(0)
}

func (m *mockWalletRepo) CreatePendingDeposit(ctx context.Context, tx *models.Transaction) error {
	args := m.Called(ctx, tx)
	if args.Error(0) == nil {
		tx.ID = uuid.New()
		tx.Status = models.TransactionStatusPending
	}
	return args.Error(0)
}

func (m *mockWalletRepo) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.Transaction), args.Int(1), args.Error(2)
}

type mockAccounts struct {
	mock.Mock
}

func (m *mockAccounts) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockAccounts) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *mockAccounts) SetStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error {
	return m.Called(ctx, userID, customerID).Error(0)
}

func (m *mockAccounts) SetStripeAccountID(ctx context.Context, userID uuid.UUID, accountID string) error {
	return m.Called(ctx, userID, accountID).Error(0)
}

func (m *mockAccounts) ApplyPayoutsUpdate(ctx context.Context, eventID, accountID string, enabled bool) (bool, error) {
	args := m.Called(ctx, eventID, accountID, enabled)
	return args.Bool(0), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCustomer(ctx context.Context, userID uuid.UUID, email, name string) (string, error) {
	args := m.Called(ctx, userID, email, name)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreatePaymentIntent(ctx context.Context, in payments.PaymentIntentInput) (*payments.PaymentIntent, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.PaymentIntent), args.Error(1)
}

func (m *mockGateway) CreateConnectedAccount(ctx context.Context, userID uuid.UUID, email, country string) (string, error) {
	args := m.Called(ctx, userID, email, country)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreateOnboardingLink(ctx context.Context, accountID string) (string, error) {
	args := m.Called(ctx, accountID)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreateTransfer(ctx context.Context, in payments.TransferInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) ParseWebhook(payload []byte, signature string) (*payments.WebhookEvent, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.WebhookEvent), args.Error(1)
}

type mockWebhookRepo struct {
	mock.Mock
}

func (m *mockWebhookRepo) ApplyDeposit(ctx context.Context, eventID string, clientID uuid.UUID, amount float64, reference string) (bool, error) {
	args := m.Called(ctx, eventID, clientID, amount, reference)
	return args.Bool(0), args.Error(1)
}

func (m *mockWebhookRepo) ApplyDepositFailure(ctx context.Context, eventID, reference, reason string) (bool, error) {
	args := m.Called(ctx, eventID, reference, reason)
	return args.Bool(0), args.Error(1)
}

// memoryDeduper дедупликатор в памяти.
type memoryDeduper struct {
	seen     map[string]bool
	released []string
}

func newMemoryDeduper() *memoryDeduper {
	return &memoryDeduper{seen: map[string]bool{}}
}

func (d *memoryDeduper) AcquireOnce(_ context.Context, scope, id string) bool {
	key := scope + ":" + id
	if d.seen[key] {
		return false
	}
	d.seen[key] = true
	return true
}

func (d *memoryDeduper) Release(_ context.Context, scope, id string) {
	key := scope + ":" + id
	delete(d.seen, key)
	d.released = append(d.released, key)
}

// countingInvalidator считает сбросы кэша статистики.
type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) InvalidateStats() {
	c.calls++
}
