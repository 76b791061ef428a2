package payment

import (
	"testing"
	"time"

	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testSecret = "whsec_test"

func signed(t *testing.T, payload string) (string, []byte) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return sp.Header, sp.Payload
}

func TestParseWebhookPaymentIntentEvents(t *testing.T) {
	p := NewStripeProvider("sk_test", testSecret)
	tests := []struct {
		eventType string
		want      model.PaymentStatus
	}{
		{"payment_intent.succeeded", model.PaymentStatusSucceeded},
		{"payment_intent.processing", model.PaymentStatusProcessing},
		{"payment_intent.payment_failed", model.PaymentStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			header, body := signed(t, `{"id":"evt_1","object":"event","type":"`+tt.eventType+`",
				"data":{"object":{"id":"pi_123","object":"payment_intent","status":"succeeded","payment_method_types":["card"]}}}`)
			ev, err := p.ParseWebhook(body, header)
			require.NoError(t, err)
			assert.Equal(t, "evt_1", ev.ID)
			assert.Equal(t, "pi_123", ev.IntentID)
			assert.Equal(t, tt.want, ev.Status)
			assert.Equal(t, "card", ev.Method)
		})
	}
}

func TestParseWebhookChargeRefunded(t *testing.T) {
	p := NewStripeProvider("sk_test", testSecret)
	header, body := signed(t, `{"id":"evt_2","object":"event","type":"charge.refunded",
		"data":{"object":{"id":"ch_1","object":"charge","payment_intent":"pi_9"}}}`)
	ev, err := p.ParseWebhook(body, header)
	require.NoError(t, err)
	assert.Equal(t, "pi_9", ev.IntentID)
	assert.Equal(t, model.PaymentStatusRefunded, ev.Status)
}

func TestParseWebhookIgnoresOtherEvents(t *testing.T) {
	p := NewStripeProvider("sk_test", testSecret)
	header, body := signed(t, `{"id":"evt_3","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`)
	ev, err := p.ParseWebhook(body, header)
	require.NoError(t, err)
	assert.Empty(t, ev.Status)
	assert.Empty(t, ev.IntentID)
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	p := NewStripeProvider("sk_test", testSecret)
	_, err := p.ParseWebhook([]byte(`{"id":"evt_1"}`), "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, model.PaymentStatusSucceeded, statusOf(&stripe.PaymentIntent{Status: stripe.PaymentIntentStatusSucceeded}))
	assert.Equal(t, model.PaymentStatusProcessing, statusOf(&stripe.PaymentIntent{Status: stripe.PaymentIntentStatusRequiresCapture}))
	assert.Equal(t, model.PaymentStatusFailed, statusOf(&stripe.PaymentIntent{Status: stripe.PaymentIntentStatusCanceled}))
	assert.Equal(t, model.PaymentStatusPending, statusOf(&stripe.PaymentIntent{Status: stripe.PaymentIntentStatusRequiresPaymentMethod}))
	assert.Equal(t, model.PaymentStatusFailed, statusOf(&stripe.PaymentIntent{
		Status:           stripe.PaymentIntentStatusRequiresPaymentMethod,
		LastPaymentError: &stripe.Error{Msg: "card declined"},
	}))
}

func TestMinorUnits(t *testing.T) {
	assert.EqualValues(t, 600, minorUnits(decimal.RequireFromString("6.00")))
	assert.EqualValues(t, 1999, minorUnits(decimal.RequireFromString("19.99")))
}
