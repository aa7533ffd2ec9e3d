package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/admarket-backend/internal/payments"
	"github.com/ignatzorin/admarket-backend/internal/pkg/apperror"
	"github.com/ignatzorin/admarket-backend/internal/repository"
)

type webhookFixture struct {
	svc      *StripeWebhookService
	gateway  *mockGateway
	wallets  *mockWebhookRepo
	accounts *mockAccounts
	deduper  *memoryDeduper
	notifier *recordingNotifier
	stats    *countingInvalidator
}

func newWebhookFixture() *webhookFixture {
	f := &webhookFixture{
		gateway:  new(mockGateway),
		wallets:  new(mockWebhookRepo),
		accounts: new(mockAccounts),
		deduper:  newMemoryDeduper(),
		notifier: &recordingNotifier{},
		stats:    &countingInvalidator{},
	}
	f.svc = NewStripeWebhookService(f.gateway, f.wallets, f.accounts, f.deduper, f.notifier, f.stats)
	return f
}

func succeededEvent(id string, userID uuid.UUID) *payments.WebhookEvent {
	return &payments.WebhookEvent{
		ID:   id,
		Type: payments.EventPaymentSucceeded,
		PaymentIntent: &payments.PaymentIntentEvent{
			ID:       "pi_1",
			Amount:   120,
			Currency: "eur",
			Metadata: map[string]string{
				payments.MetaUserID:    userID.String(),
				payments.MetaReference: "dep_abc",
			},
		},
	}
}

func TestStripeWebhook_Disabled(t *testing.T) {
	svc := NewStripeWebhookService(nil, nil, nil, nil, nil, nil)
	err := svc.Handle(context.Background(), []byte("{}"), "sig")
	assert.Equal(t, apperror.ErrPaymentsDisabled, err)
}

func TestStripeWebhook_InvalidSignature(t *testing.T) {
	f := newWebhookFixture()
	f.gateway.On("ParseWebhook", mock.Anything, "bad").Return(nil, payments.ErrInvalidSignature)

	err := f.svc.Handle(context.Background(), []byte("{}"), "bad")
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.ErrCodeBadRequest, appErr.Code)
	f.wallets.AssertNotCalled(t, "ApplyDeposit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStripeWebhook_DepositSucceeded(t *testing.T) {
	f := newWebhookFixture()
	userID := uuid.New()
	f.gateway.On("ParseWebhook", mock.Anything, "sig").Return(succeededEvent("evt_1", userID), nil)
	f.wallets.On("ApplyDeposit", mock.Anything, "evt_1", userID, 120.0, "dep_abc").Return(true, nil)

	require.NoError(t, f.svc.Handle(context.Background(), []byte("{}"), "sig"))
	assert.Equal(t, 1, f.stats.calls)
	assert.True(t, f.notifier.sentTo(userID, "wallet.deposit_succeeded"))
}

func TestStripeWebhook_RedeliveryIsSkipped(t *testing.T) {
	f := newWebhookFixture()
	userID := uuid.New()
	f.gateway.On("ParseWebhook", mock.Anything, "sig").Return(succeededEvent("evt_1", userID), nil)
	f.wallets.On("ApplyDeposit", mock.Anything, "evt_1", userID, 120.0, "dep_abc").Return(true, nil).Once()

	require.NoError(t, f.svc.Handle(context.Background(), []byte("{}"), "sig"))
	require.NoError(t, f.svc.Handle(context.Background(), []byte("{}"), "sig"))
	f.wallets.AssertNumberOfCalls(t, "ApplyDeposit", 1)
}

func TestStripeWebhook_AlreadyAppliedInDatabase(t *testing.T) {
	f := newWebhookFixture()
	userID := uuid.New()
	f.gateway.On("ParseWebhook", mock.Anything, "sig").Return(succeededEvent("evt_2", userID), nil)
	f.wallets.On("ApplyDeposit", mock.Anything, "evt_2", userID, 120.0, "dep_abc").Return(false, nil)

	require.NoError(t, f.svc.Handle(context.Background(), []byte("{}"), "sig"))
	assert.Zero(t, f.stats.calls)
	assert.False(t, f.notifier.sentTo(userID, "wallet.deposit_succeeded"))
}

func TestStripeWebhook_FailureReleasesDedup(t *testing.T) {
	f := newWebhookFixture()
	userID := uuid.New()
	f.gateway.On("ParseWebhook", mock.Anything, "sig").Return(succeededEvent("evt_3", userID), nil)
	f.wallets.On("ApplyDeposit", mock.Anything, "evt_3", userID, 120.0, "dep_abc").Return(false, errors.New("db down"))

	err := f.svc.Handle(context.Background(), []byte("{}"), "sig")
	require.Error(t, err)
	assert.Equal(t, []string{"stripe:evt_3"}, f.deduper.released)
}

func TestStripeWebhook_ForeignPaymentIgnored(t *testing.T) {
	f := newWebhookFixture()
	event := succeededEvent("evt_4", uuid.New())
	event.PaymentIntent.Metadata = map[string]string{}
	f.gateway.On("ParseWebhook", mock.Anything, "sig").Return(event, nil)

	require.NoError(t, f.svc.Handle(context.Background(), []byte("{}"), "sig"))
	f.wallets.AssertNotCalled(t, "ApplyDeposit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStripeWebhook_DepositFailed(t *testing.T) {
	f := newWebhookFixture()
	userID := uuid.New()
	event := succeededEvent("evt_5", userID)
	event.Type = payments.EventPaymentFailed
	event.PaymentIntent.FailureError = "card_declined"

	f.gateway.On("ParseWebhook", mock.Anything, "sig").Return(event, nil)
	f.wallets.On("ApplyDepositFailure", mock.Anything, "evt_5", "dep_abc", "card_declined").Return(true, nil)

	require.NoError(t, f.svc.Handle(context.Background(), []byte("{}"), "sig"))
	assert.True(t, f.notifier.sentTo(userID, "wallet.deposit_failed"))
}

func TestStripeWebhook_AccountUpdated(t *testing.T) {
	f := newWebhookFixture()
	event := &payments.WebhookEvent{
		ID:      "evt_6",
		Type:    payments.EventAccountUpdated,
		Account: &payments.AccountEvent{ID: "acct_9", PayoutsEnabled: true},
	}
	f.gateway.On("ParseWebhook", mock.Anything, "sig").Return(event, nil)
	f.accounts.On("ApplyPayoutsUpdate", mock.Anything, "evt_6", "acct_9", true).Return(true, nil)

	require.NoError(t, f.svc.Handle(context.Background(), []byte("{}"), "sig"))
	f.accounts.AssertExpectations(t)
}

func TestStripeWebhook_UnknownAccountIgnored(t *testing.T) {
	f := newWebhookFixture()
	event := &payments.WebhookEvent{
		ID:      "evt_7",
		Type:    payments.EventAccountUpdated,
		Account: &payments.AccountEvent{ID: "acct_unknown"},
	}
	f.gateway.On("ParseWebhook", mock.Anything, "sig").Return(event, nil)
	f.accounts.On("ApplyPayoutsUpdate", mock.Anything, "evt_7", "acct_unknown", false).Return(false, repository.ErrUserNotFound)

	require.NoError(t, f.svc.Handle(context.Background(), []byte("{}"), "sig"))
	assert.Empty(t, f.deduper.released)
}

// flakyStripeStore хранит записанные события вместе с их действием:
// при ошибке событие не считается записанным.
type flakyStripeStore struct {
	events   map[string]bool
	failures int
	calls    int
	payouts  map[string]bool
	failed   map[string]string
}

func newFlakyStripeStore(failures int) *flakyStripeStore {
	return &flakyStripeStore{
		events:   map[string]bool{},
		failures: failures,
		payouts:  map[string]bool{},
		failed:   map[string]string{},
	}
}

func (s *flakyStripeStore) apply(eventID string, effect func()) (bool, error) {
	s.calls++
	if s.events[eventID] {
		return false, nil
	}
	if s.failures > 0 {
		s.failures--
		return false, errors.New("connection reset")
	}
	s.events[eventID] = true
	effect()
	return true, nil
}

func (s *flakyStripeStore) ApplyDeposit(_ context.Context, eventID string, _ uuid.UUID, _ float64, _ string) (bool, error) {
	return s.apply(eventID, func() {})
}

func (s *flakyStripeStore) ApplyDepositFailure(_ context.Context, eventID, reference, reason string) (bool, error) {
	return s.apply(eventID, func() { s.failed[reference] = reason })
}

func (s *flakyStripeStore) ApplyPayoutsUpdate(_ context.Context, eventID, accountID string, enabled bool) (bool, error) {
	return s.apply(eventID, func() { s.payouts[accountID] = enabled })
}

func TestStripeWebhook_AccountUpdatedAppliedOnRedelivery(t *testing.T) {
	gateway := new(mockGateway)
	store := newFlakyStripeStore(1)
	deduper := newMemoryDeduper()
	svc := NewStripeWebhookService(gateway, store, store, deduper, &recordingNotifier{}, &countingInvalidator{})
	gateway.On("ParseWebhook", mock.Anything, "sig").Return(&payments.WebhookEvent{
		ID:      "evt_20",
		Type:    payments.EventAccountUpdated,
		Account: &payments.AccountEvent{ID: "acct_20", PayoutsEnabled: true},
	}, nil)

	require.Error(t, svc.Handle(context.Background(), []byte("{}"), "sig"))
	assert.Equal(t, []string{"stripe:evt_20"}, deduper.released)
	assert.False(t, store.payouts["acct_20"])

	require.NoError(t, svc.Handle(context.Background(), []byte("{}"), "sig"))
	assert.True(t, store.payouts["acct_20"])
	assert.Equal(t, 2, store.calls)

	// ключ в redis истёк, повтор отсекает база
	svc = NewStripeWebhookService(gateway, store, store, newMemoryDeduper(), &recordingNotifier{}, &countingInvalidator{})
	require.NoError(t, svc.Handle(context.Background(), []byte("{}"), "sig"))
	assert.Equal(t, 3, store.calls)
	assert.Len(t, store.events, 1)
}

func TestStripeWebhook_DepositFailureAppliedOnRedelivery(t *testing.T) {
	gateway := new(mockGateway)
	store := newFlakyStripeStore(1)
	notifier := &recordingNotifier{}
	deduper := newMemoryDeduper()
	svc := NewStripeWebhookService(gateway, store, store, deduper, notifier, &countingInvalidator{})
	userID := uuid.New()
	event := succeededEvent("evt_21", userID)
	event.Type = payments.EventPaymentFailed
	event.PaymentIntent.FailureError = "insufficient_funds"
	gateway.On("ParseWebhook", mock.Anything, "sig").Return(event, nil)

	require.Error(t, svc.Handle(context.Background(), []byte("{}"), "sig"))
	assert.Equal(t, []string{"stripe:evt_21"}, deduper.released)
	assert.Empty(t, store.failed)
	assert.False(t, notifier.sentTo(userID, "wallet.deposit_failed"))

	require.NoError(t, svc.Handle(context.Background(), []byte("{}"), "sig"))
	assert.Equal(t, "insufficient_funds", store.failed["dep_abc"])
	assert.Equal(t, 2, store.calls)
	assert.True(t, notifier.sentTo(userID, "wallet.deposit_failed"))
}
