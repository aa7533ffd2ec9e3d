package stripegw

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/ignatzorin/admarket-backend/internal/config"
	"github.com/ignatzorin/admarket-backend/internal/payments"
)

// Gateway реализация payments.Gateway поверх Stripe API.
type Gateway struct {
	api           *client.API
	webhookSecret string
	returnURL     string
	refreshURL    string
}

// New создаёт клиента Stripe.
func New(cfg config.StripeConfig) *Gateway {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)

	return &Gateway{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		returnURL:     cfg.ConnectReturnURL,
		refreshURL:    cfg.ConnectRefreshURL,
	}
}

// CreateCustomer создаёт покупателя для пополнений клиента.
func (g *Gateway) CreateCustomer(ctx context.Context, userID uuid.UUID, email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	params.AddMetadata(payments.MetaUserID, userID.String())

	cus, err := g.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create customer %w", err)
	}
	return cus.ID, nil
}

// CreatePaymentIntent создаёт платёж на пополнение кошелька.
func (g *Gateway) CreatePaymentIntent(ctx context.Context, in payments.PaymentIntentInput) (*payments.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(payments.ToCents(in.Amount)),
		Currency: stripe.String(payments.NormalizeCurrency(in.Currency)),
		Customer: stripe.String(in.CustomerID),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(in.Reference)
	params.AddMetadata(payments.MetaUserID, in.UserID.String())
	params.AddMetadata(payments.MetaReference, in.Reference)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create payment intent %w", err)
	}
	return &payments.PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// CreateConnectedAccount создаёт express аккаунт исполнителя для выплат.
func (g *Gateway) CreateConnectedAccount(ctx context.Context, userID uuid.UUID, email, country string) (string, error) {
	params := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if country != "" {
		params.Country = stripe.String(country)
	}
	params.Context = ctx
	params.AddMetadata(payments.MetaUserID, userID.String())

	acct, err := g.api.Accounts.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create account %w", err)
	}
	return acct.ID, nil
}

// CreateOnboardingLink возвращает ссылку на онбординг подключённого аккаунта.
func (g *Gateway) CreateOnboardingLink(ctx context.Context, accountID string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(g.refreshURL),
		ReturnURL:  stripe.String(g.returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	link, err := g.api.AccountLinks.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create account link %w", err)
	}
	return link.URL, nil
}

// CreateTransfer переводит средства на подключённый аккаунт исполнителя.
func (g *Gateway) CreateTransfer(ctx context.Context, in payments.TransferInput) (string, error) {
	params := &stripe.TransferParams{
		Amount:        stripe.Int64(payments.ToCents(in.Amount)),
		Currency:      stripe.String(payments.NormalizeCurrency(in.Currency)),
		Destination:   stripe.String(in.AccountID),
		TransferGroup: stripe.String(in.Reference),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(in.Reference)
	params.AddMetadata(payments.MetaReference, in.Reference)

	tr, err := g.api.Transfers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create transfer %w", err)
	}
	return tr.ID, nil
}

// ParseWebhook проверяет подпись и разбирает интересующие площадку события.
func (g *Gateway) ParseWebhook(payload []byte, signature string) (*payments.WebhookEvent, error) {
	return parseWebhook(payload, signature, g.webhookSecret)
}

func parseWebhook(payload []byte, signature, secret string) (*payments.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payments.ErrInvalidSignature, err)
	}

	out := &payments.WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}

	switch out.Type {
	case payments.EventPaymentSucceeded, payments.EventPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("stripe: decode payment intent %w", err)
		}
		piEvent := &payments.PaymentIntentEvent{
			ID:       pi.ID,
			Amount:   payments.FromCents(pi.Amount),
			Currency: string(pi.Currency),
			Metadata: pi.Metadata,
		}
		if pi.LastPaymentError != nil {
			piEvent.FailureError = pi.LastPaymentError.Msg
		}
		out.PaymentIntent = piEvent
	case payments.EventAccountUpdated:
		var acct stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
			return nil, fmt.Errorf("stripe: decode account %w", err)
		}
		out.Account = &payments.AccountEvent{ID: acct.ID, PayoutsEnabled: acct.PayoutsEnabled}
	}

	return out, nil
}
