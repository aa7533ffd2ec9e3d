package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/admarket-backend/internal/idempotency"
	"github.com/ignatzorin/admarket-backend/internal/logger"
	"github.com/ignatzorin/admarket-backend/internal/metrics"
	"github.com/ignatzorin/admarket-backend/internal/payments"
	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/admarket-backend/internal/repository"
)

const webhookScope = "stripe"

// WebhookRepository зависимости StripeWebhookService.
type WebhookRepository interface {
	ApplyDeposit(ctx context.Context, eventID string, clientID uuid.UUID, amount float64, reference string) (bool, error)
	ApplyDepositFailure(ctx context.Context, eventID, reference, reason string) (bool, error)
}

// PayoutAccountUpdater отмечает готовность аккаунта к выплатам.
type PayoutAccountUpdater interface {
	ApplyPayoutsUpdate(ctx context.Context, eventID, accountID string, enabled bool) (bool, error)
}

// StripeWebhookService обрабатывает события платёжного провайдера.
// Событие записывается в stripe_events в одной транзакции с его действием,
// поэтому после ошибки повторная доставка применяет его снова.
type StripeWebhookService struct {
	gateway  payments.Gateway
	wallets  WebhookRepository
	accounts PayoutAccountUpdater
	deduper  idempotency.Deduper
	notifier Notifier
	stats    StatsInvalidator
}

// NewStripeWebhookService создаёт обработчик вебхуков.
func NewStripeWebhookService(gateway payments.Gateway, wallets WebhookRepository, accounts PayoutAccountUpdater, deduper idempotency.Deduper, notifier Notifier, stats StatsInvalidator) *StripeWebhookService {
	if deduper == nil {
		deduper = idempotency.NoopDeduper{}
	}
	return &StripeWebhookService{
		gateway:  gateway,
		wallets:  wallets,
		accounts: accounts,
		deduper:  deduper,
		notifier: notifierOrNoop(notifier),
		stats:    stats,
	}
}

// Handle проверяет подпись и применяет событие.
// Ошибка обработки возвращается, чтобы провайдер повторил доставку.
func (s *StripeWebhookService) Handle(ctx context.Context, payload []byte, signature string) error {
	if s.gateway == nil {
		return apperror.ErrPaymentsDisabled
	}

	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		metrics.RecordWebhookEvent("unknown", "rejected")
		if errors.Is(err, payments.ErrInvalidSignature) {
			return apperror.BadRequest("неверная подпись")
		}
		return apperror.BadRequest("некорректное событие")
	}

	log := logger.Component("stripe").WithFields(logrus.Fields{
		"event_id": event.ID,
		"type":     event.Type,
	})

	if !s.deduper.AcquireOnce(ctx, webhookScope, event.ID) {
		metrics.RecordWebhookEvent(event.Type, "duplicate")
		log.Debug("stripe: повторное событие пропущено")
		return nil
	}

	result, err := s.dispatch(ctx, event)
	if err != nil {
		s.deduper.Release(ctx, webhookScope, event.ID)
		metrics.RecordWebhookEvent(event.Type, "failed")
		log.WithError(err).Error("stripe: событие не обработано")
		return apperror.Internal(err, "не удалось обработать событие")
	}

	metrics.RecordWebhookEvent(event.Type, result)
	log.WithField("result", result).Info("stripe: событие обработано")
	return nil
}

func (s *StripeWebhookService) dispatch(ctx context.Context, event *payments.WebhookEvent) (string, error) {
	switch {
	case event.Type == payments.EventPaymentSucceeded && event.PaymentIntent != nil:
		return s.applyDeposit(ctx, event.ID, event.PaymentIntent)
	case event.Type == payments.EventPaymentFailed && event.PaymentIntent != nil:
		return s.failDeposit(ctx, event)
	case event.Type == payments.EventAccountUpdated && event.Account != nil:
		return s.updateAccount(ctx, event)
	}
	return "ignored", nil
}

func (s *StripeWebhookService) applyDeposit(ctx context.Context, eventID string, pi *payments.PaymentIntentEvent) (string, error) {
	userID, err := uuid.Parse(pi.Metadata[payments.MetaUserID])
	if err != nil {
		// чужой платёж, повтор доставки не поможет
		logger.Component("stripe").WithField("payment_intent", pi.ID).Warn("stripe: платёж без user_id")
		return "ignored", nil
	}
	reference := pi.Metadata[payments.MetaReference]
	if reference == "" {
		reference = pi.ID
	}

	applied, err := s.wallets.ApplyDeposit(ctx, eventID, userID, pi.Amount, reference)
	metrics.RecordPayment("deposit", err)
	if err != nil {
		return "", err
	}
	if !applied {
		return "duplicate", nil
	}

	if s.stats != nil {
		s.stats.InvalidateStats()
	}
	notify(s.notifier, "wallet.deposit_succeeded", map[string]any{
		"amount":    pi.Amount,
		"currency":  pi.Currency,
		"reference": reference,
	}, userID)
	return "processed", nil
}

func (s *StripeWebhookService) failDeposit(ctx context.Context, event *payments.WebhookEvent) (string, error) {
	pi := event.PaymentIntent
	reference := pi.Metadata[payments.MetaReference]
	if reference == "" {
		reference = pi.ID
	}
	reason := pi.FailureError
	if reason == "" {
		reason = "payment_failed"
	}

	applied, err := s.wallets.ApplyDepositFailure(ctx, event.ID, reference, reason)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return "ignored", nil
		}
		return "", err
	}
	if !applied {
		return "duplicate", nil
	}

	if userID, err := uuid.Parse(pi.Metadata[payments.MetaUserID]); err == nil {
		notify(s.notifier, "wallet.deposit_failed", map[string]any{
			"amount":    pi.Amount,
			"reference": reference,
			"reason":    reason,
		}, userID)
	}
	return "processed", nil
}

func (s *StripeWebhookService) updateAccount(ctx context.Context, event *payments.WebhookEvent) (string, error) {
	applied, err := s.accounts.ApplyPayoutsUpdate(ctx, event.ID, event.Account.ID, event.Account.PayoutsEnabled)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "ignored", nil
		}
		return "", err
	}
	if !applied {
		return "duplicate", nil
	}
	return "processed", nil
}
