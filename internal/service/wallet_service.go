package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/admarket-backend/internal/logger"
	"github.com/ignatzorin/admarket-backend/internal/metrics"
	"github.com/ignatzorin/admarket-backend/internal/models"
	"github.com/ignatzorin/admarket-backend/internal/payments"
	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/admarket-backend/internal/validation"
)

// WalletRepository зависимости WalletService.
type WalletRepository interface {
	GetClientWallet(ctx context.Context, clientID uuid.UUID) (*models.ClientWallet, error)
	GetFreelancerWallet(ctx context.Context, freelancerID uuid.UUID) (*models.FreelancerWallet, error)
	AddBalance(ctx context.Context, clientID uuid.UUID, amount float64, reference string) (float64, error)
	Withdraw(ctx context.Context, freelancerID uuid.UUID, amount float64, reference string) (uuid.UUID, error)
	RestoreWithdrawal(ctx context.Context, txID uuid.UUID, reason string) error
	CompletePayout(ctx context.Context, txID uuid.UUID, transferID string) error
	CreatePendingDeposit(ctx context.Context, tx *models.Transaction) error
	ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, int, error)
}

// PaymentAccountRepository платёжные идентификаторы пользователя.
type PaymentAccountRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	SetStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error
	SetStripeAccountID(ctx context.Context, userID uuid.UUID, accountID string) error
}

// StatsInvalidator сбрасывает кэш статистики после изменения балансов.
type StatsInvalidator interface {
	InvalidateStats()
}

// WalletService кошельки, пополнения и выплаты.
type WalletService struct {
	wallets  WalletRepository
	users    PaymentAccountRepository
	gateway  payments.Gateway
	currency string
	stats    StatsInvalidator
}

// NewWalletService создаёт сервис кошельков. gateway может быть nil,
// тогда операции через платёжного провайдера недоступны.
func NewWalletService(wallets WalletRepository, users PaymentAccountRepository, gateway payments.Gateway, currency string, stats StatsInvalidator) *WalletService {
	return &WalletService{
		wallets:  wallets,
		users:    users,
		gateway:  gateway,
		currency: currency,
		stats:    stats,
	}
}

// WalletView кошелёк пользователя в зависимости от роли.
type WalletView struct {
	Client     *models.ClientWallet     `json:"client,omitempty"`
	Freelancer *models.FreelancerWallet `json:"freelancer,omitempty"`
}

// Get возвращает кошелёк текущего пользователя.
func (s *WalletService) Get(ctx context.Context, actor Actor) (*WalletView, error) {
	switch actor.Role {
	case models.RoleClient:
		wallet, err := s.wallets.GetClientWallet(ctx, actor.ID)
		if err != nil {
			return nil, translate(err, "не удалось загрузить кошелёк")
		}
		return &WalletView{Client: wallet}, nil
	case models.RoleFreelancer:
		wallet, err := s.wallets.GetFreelancerWallet(ctx, actor.ID)
		if err != nil {
			return nil, translate(err, "не удалось загрузить кошелёк")
		}
		return &WalletView{Freelancer: wallet}, nil
	}
	return nil, apperror.Forbidden("у администратора нет кошелька")
}

// Deposit результат создания пополнения.
type Deposit struct {
	TransactionID   uuid.UUID `json:"transaction_id"`
	Reference       string    `json:"reference"`
	PaymentIntentID string    `json:"payment_intent_id"`
	ClientSecret    string    `json:"client_secret"`
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
}

// CreateDeposit создаёт платёж для пополнения кошелька клиента.
// Баланс зачисляется после подтверждения платежа вебхуком.
func (s *WalletService) CreateDeposit(ctx context.Context, actor Actor, amount float64) (*Deposit, error) {
	if s.gateway == nil {
		return nil, apperror.ErrPaymentsDisabled
	}
	if actor.Role != models.RoleClient {
		return nil, apperror.Forbidden("пополнять кошелёк могут только клиенты")
	}
	if err := validation.ValidateAmount("сумма", amount); err != nil {
		return nil, validationError(err)
	}

	customerID, err := s.ensureCustomer(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	reference := "dep_" + uuid.NewString()
	intent, err := s.gateway.CreatePaymentIntent(ctx, payments.PaymentIntentInput{
		CustomerID: customerID,
		Amount:     amount,
		Currency:   s.currency,
		UserID:     actor.ID,
		Reference:  reference,
	})
	if err != nil {
		metrics.RecordPayment("deposit", err)
		return nil, apperror.Internal(err, "не удалось создать платёж")
	}

	metadata, _ := json.Marshal(map[string]string{"payment_intent_id": intent.ID})
	tx := &models.Transaction{
		UserID:    actor.ID,
		Amount:    amount,
		Currency:  s.currency,
		Reference: &reference,
		Metadata:  metadata,
	}
	if err := s.wallets.CreatePendingDeposit(ctx, tx); err != nil {
		return nil, translate(err, "не удалось записать пополнение")
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":        actor.ID,
		"amount":         amount,
		"reference":      reference,
		"payment_intent": intent.ID,
	}).Info("wallet: создано пополнение")

	return &Deposit{
		TransactionID:   tx.ID,
		Reference:       reference,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          amount,
		Currency:        s.currency,
	}, nil
}

func (s *WalletService) ensureCustomer(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", translate(err, "не удалось загрузить пользователя")
	}
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	customerID, err := s.gateway.CreateCustomer(ctx, user.ID, user.Email, s.displayName(ctx, user))
	if err != nil {
		return "", apperror.Internal(err, "не удалось зарегистрировать плательщика")
	}
	if err := s.users.SetStripeCustomerID(ctx, user.ID, customerID); err != nil {
		return "", translate(err, "не удалось сохранить плательщика")
	}
	return customerID, nil
}

func (s *WalletService) displayName(ctx context.Context, user *models.User) string {
	profile, err := s.users.GetProfile(ctx, user.ID)
	if err != nil || profile == nil || profile.DisplayName == "" {
		return user.Username
	}
	return profile.DisplayName
}

// ConnectOnboarding создаёт подключённый аккаунт исполнителя и ссылку на анкету.
func (s *WalletService) ConnectOnboarding(ctx context.Context, actor Actor) (string, error) {
	if s.gateway == nil {
		return "", apperror.ErrPaymentsDisabled
	}
	if actor.Role != models.RoleFreelancer {
		return "", apperror.Forbidden("подключение выплат доступно только исполнителям")
	}

	user, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return "", translate(err, "не удалось загрузить пользователя")
	}

	accountID := ""
	if user.StripeAccountID != nil {
		accountID = *user.StripeAccountID
	}
	if accountID == "" {
		country := ""
		if profile, err := s.users.GetProfile(ctx, user.ID); err == nil && profile.CountryCode != nil {
			country = *profile.CountryCode
		}
		accountID, err = s.gateway.CreateConnectedAccount(ctx, user.ID, user.Email, country)
		if err != nil {
			return "", apperror.Internal(err, "не удалось создать аккаунт для выплат")
		}
		if err := s.users.SetStripeAccountID(ctx, user.ID, accountID); err != nil {
			return "", translate(err, "не удалось сохранить аккаунт для выплат")
		}
	}

	link, err := s.gateway.CreateOnboardingLink(ctx, accountID)
	if err != nil {
		return "", apperror.Internal(err, "не удалось получить ссылку на анкету")
	}
	return link, nil
}

// Withdrawal результат выплаты.
type Withdrawal struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	TransferID    string    `json:"transfer_id"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
}

// Withdraw списывает средства исполнителя и переводит их на подключённый аккаунт.
// Неудачный перевод возвращает средства на кошелёк.
func (s *WalletService) Withdraw(ctx context.Context, actor Actor, amount float64) (*Withdrawal, error) {
	if s.gateway == nil {
		return nil, apperror.ErrPaymentsDisabled
	}
	if actor.Role != models.RoleFreelancer {
		return nil, apperror.Forbidden("вывод средств доступен только исполнителям")
	}
	if err := validation.ValidateAmount("сумма", amount); err != nil {
		return nil, validationError(err)
	}

	user, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, translate(err, "не удалось загрузить пользователя")
	}
	if user.StripeAccountID == nil || *user.StripeAccountID == "" || !user.PayoutsEnabled {
		return nil, apperror.Conflict("сначала завершите подключение выплат")
	}

	reference := "payout_" + uuid.NewString()
	txID, err := s.wallets.Withdraw(ctx, actor.ID, amount, reference)
	if err != nil {
		metrics.RecordPayment("payout", err)
		return nil, translate(err, "не удалось списать средства")
	}

	log := logger.Log.WithFields(logrus.Fields{
		"user_id":        actor.ID,
		"amount":         amount,
		"transaction_id": txID,
	})

	transferID, err := s.gateway.CreateTransfer(ctx, payments.TransferInput{
		AccountID: *user.StripeAccountID,
		Amount:    amount,
		Currency:  s.currency,
		Reference: reference,
	})
	if err != nil {
		metrics.RecordPayment("payout", err)
		log.WithError(err).Error("wallet: перевод не выполнен, возвращаем средства")
		if restoreErr := s.wallets.RestoreWithdrawal(ctx, txID, truncate(err.Error(), 200)); restoreErr != nil {
			log.WithError(restoreErr).Error("wallet: не удалось вернуть средства после неудачного перевода")
			return nil, apperror.Internal(restoreErr, "выплата не выполнена, средства будут возвращены")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeUnavailable, "платёжный провайдер отклонил выплату, средства возвращены")
	}

	if err := s.wallets.CompletePayout(ctx, txID, transferID); err != nil {
		// перевод уже ушёл, запись догонит сверка
		log.WithError(err).WithField("transfer_id", transferID).Error("wallet: не удалось отметить выплату выполненной")
	}
	metrics.RecordPayment("payout", nil)
	log.WithField("transfer_id", transferID).Info("wallet: выплата выполнена")

	return &Withdrawal{TransactionID: txID, TransferID: transferID, Amount: amount, Currency: s.currency}, nil
}

// ListTransactions возвращает журнал операций пользователя.
func (s *WalletService) ListTransactions(ctx context.Context, actor Actor, filter models.TransactionFilter) (*Page[models.Transaction], error) {
	if !actor.IsAdmin() {
		filter.UserID = &actor.ID
	}
	filter.Type = strings.TrimSpace(filter.Type)
	filter.Status = strings.TrimSpace(filter.Status)
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	items, total, err := s.wallets.ListTransactions(ctx, filter)
	if err != nil {
		return nil, translate(err, "не удалось получить транзакции")
	}
	return newPage(items, total, filter.Limit, filter.Offset), nil
}

// ManualCredit зачисляет средства клиенту вручную (администратор).
func (s *WalletService) ManualCredit(ctx context.Context, admin Actor, clientID uuid.UUID, amount float64) (float64, error) {
	if !admin.IsAdmin() {
		return 0, apperror.ErrForbidden
	}
	if err := validation.ValidateAmount("сумма", amount); err != nil {
		return 0, validationError(err)
	}

	user, err := s.users.GetByID(ctx, clientID)
	if err != nil {
		return 0, translate(err, "не удалось загрузить пользователя")
	}
	if user.Role != models.RoleClient {
		return 0, apperror.Validation("зачислить средства можно только клиенту")
	}

	balance, err := s.wallets.AddBalance(ctx, clientID, amount, fmt.Sprintf("manual:%s", admin.ID))
	metrics.RecordPayment("credit", err)
	if err != nil {
		return 0, translate(err, "не удалось зачислить средства")
	}
	if s.stats != nil {
		s.stats.InvalidateStats()
	}

	logger.Log.WithFields(logrus.Fields{
		"admin_id":  admin.ID,
		"client_id": clientID,
		"amount":    amount,
		"balance":   balance,
	}).Warn("wallet: ручное зачисление")

	return balance, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
