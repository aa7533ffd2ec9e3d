package payments

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/google/uuid"
)

// Типы событий платёжного провайдера, которые обрабатывает площадка.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventAccountUpdated   = "account.updated"
)

// Ключи метаданных платежа.
const (
	MetaUserID    = "user_id"
	MetaReference = "transaction_reference"
)

// ErrInvalidSignature подпись вебхука не прошла проверку.
var ErrInvalidSignature = errors.New("payments: неверная подпись вебхука")

// PaymentIntentInput параметры пополнения.
type PaymentIntentInput struct {
	CustomerID string
	Amount     float64
	Currency   string
	UserID     uuid.UUID
	Reference  string
}

// PaymentIntent созданный платёж.
type PaymentIntent struct {
	ID           string
	ClientSecret string
}

// TransferInput параметры перевода исполнителю.
type TransferInput struct {
	AccountID string
	Amount    float64
	Currency  string
	Reference string
}

// PaymentIntentEvent данные платежа из вебхука.
type PaymentIntentEvent struct {
	ID           string
	Amount       float64
	Currency     string
	Metadata     map[string]string
	FailureError string
}

// AccountEvent данные подключённого аккаунта из вебхука.
type AccountEvent struct {
	ID             string
	PayoutsEnabled bool
}

// WebhookEvent проверенное событие вебхука.
type WebhookEvent struct {
	ID            string
	Type          string
	PaymentIntent *PaymentIntentEvent
	Account       *AccountEvent
}

// Gateway операции платёжного провайдера.
type Gateway interface {
	CreateCustomer(ctx context.Context, userID uuid.UUID, email, name string) (string, error)
	CreatePaymentIntent(ctx context.Context, in PaymentIntentInput) (*PaymentIntent, error)
	CreateConnectedAccount(ctx context.Context, userID uuid.UUID, email, country string) (string, error)
	CreateOnboardingLink(ctx context.Context, accountID string) (string, error)
	CreateTransfer(ctx context.Context, in TransferInput) (string, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// ToCents переводит сумму в минимальные единицы валюты.
func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromCents переводит минимальные единицы в сумму.
func FromCents(cents int64) float64 {
	return float64(cents) / 100
}

// NormalizeCurrency приводит код валюты к нижнему регистру, как ожидает провайдер.
func NormalizeCurrency(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
