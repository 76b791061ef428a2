package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	return &StripeProvider{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
	}
}

func (p *StripeProvider) CreateIntent(ctx context.Context, in CreateParams) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(minorUnits(in.Amount)),
		Currency: stripe.String(in.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", strconv.FormatUint(in.OrderID, 10))
	params.AddMetadata("buyer_uid", in.BuyerUID)
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create intent: %w", err)
	}
	return toIntent(pi), nil
}

func (p *StripeProvider) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get intent: %w", err)
	}
	return toIntent(pi), nil
}

func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	out := &WebhookEvent{ID: ev.ID, Type: string(ev.Type)}

	switch ev.Type {
	case "payment_intent.succeeded", "payment_intent.processing", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		in := toIntent(&pi)
		out.IntentID = in.ID
		out.Method = in.Method
		switch ev.Type {
		case "payment_intent.succeeded":
			out.Status = model.PaymentStatusSucceeded
		case "payment_intent.processing":
			out.Status = model.PaymentStatusProcessing
		default:
			out.Status = model.PaymentStatusFailed
		}
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("decode charge: %w", err)
		}
		if ch.PaymentIntent != nil {
			out.IntentID = ch.PaymentIntent.ID
			out.Status = model.PaymentStatusRefunded
		}
	}
	return out, nil
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	in := &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       statusOf(pi),
	}
	if pi.PaymentMethod != nil && pi.PaymentMethod.Type != "" {
		in.Method = string(pi.PaymentMethod.Type)
	} else if len(pi.PaymentMethodTypes) > 0 {
		in.Method = pi.PaymentMethodTypes[0]
	}
	return in
}

func statusOf(pi *stripe.PaymentIntent) model.PaymentStatus {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return model.PaymentStatusSucceeded
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		return model.PaymentStatusProcessing
	case stripe.PaymentIntentStatusCanceled:
		return model.PaymentStatusFailed
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return model.PaymentStatusFailed
		}
	}
	return model.PaymentStatusPending
}

func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
