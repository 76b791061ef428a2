// Package payment is the port to the external payment processor.
package payment

import (
	"context"
	"errors"

	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shopspring/decimal"
)

var (
	ErrNotConfigured    = errors.New("payment provider not configured")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Intent is a provider payment intent with its status normalised to the order's
// payment status enum.
type Intent struct {
	ID           string
	ClientSecret string
	Status       model.PaymentStatus
	Method       string
}

type CreateParams struct {
	OrderID        uint64
	BuyerUID       string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
}

// WebhookEvent is a verified provider event. Status is empty for event types
// that do not affect payment state.
type WebhookEvent struct {
	ID       string
	Type     string
	IntentID string
	Status   model.PaymentStatus
	Method   string
}

type Provider interface {
	CreateIntent(ctx context.Context, p CreateParams) (*Intent, error)
	GetIntent(ctx context.Context, intentID string) (*Intent, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
