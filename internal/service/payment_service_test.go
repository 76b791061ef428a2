package service

import (
	"context"
	"testing"

	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shinyyama/farm-market-backend/internal/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placeOrder(t *testing.T, env *testEnv) (*model.Order, Actor, Actor) {
	t.Helper()
	farmer := env.user(t, "farmer-1", model.RoleFarmer)
	buyer := env.user(t, "buyer-1", model.RoleBuyer)
	p := env.product(t, farmer.UID, "2.00", 10)
	o, err := env.orders.Place(context.Background(), buyer.UID, PlaceOrderInput{ProductID: p.ID, Quantity: 3})
	require.NoError(t, err)
	return o, farmer, buyer
}

func TestCreateIntentReusesExistingIntent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, _, buyer := placeOrder(t, env)

	first, err := env.payments.CreateIntent(ctx, buyer.UID, o.ID)
	require.NoError(t, err)
	assert.False(t, first.Reused)
	assert.Equal(t, model.PaymentStatusProcessing, first.PaymentStatus)
	assert.NotEmpty(t, first.ClientSecret)

	second, err := env.payments.CreateIntent(ctx, buyer.UID, o.ID)
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, first.IntentID, second.IntentID)
	assert.Equal(t, first.ClientSecret, second.ClientSecret)
	assert.Equal(t, 1, env.provider.created)
}

func TestCreateIntentShortCircuitsWhenPaid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, _, buyer := placeOrder(t, env)

	res, err := env.payments.CreateIntent(ctx, buyer.UID, o.ID)
	require.NoError(t, err)
	_, err = env.payments.RecordResult(ctx, PaymentResult{IntentID: res.IntentID, Status: model.PaymentStatusSucceeded, Method: "card"})
	require.NoError(t, err)

	// provider unreachable: a paid order must not need it
	env.provider.intents = map[string]*payment.Intent{}
	again, err := env.payments.CreateIntent(ctx, buyer.UID, o.ID)
	require.NoError(t, err)
	assert.True(t, again.Reused)
	assert.Equal(t, model.PaymentStatusSucceeded, again.PaymentStatus)
	assert.Equal(t, 1, env.provider.created)
}

func TestCreateIntentChecks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, farmer, buyer := placeOrder(t, env)

	_, err := env.payments.CreateIntent(ctx, farmer.UID, o.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	env.provider.failNew = true
	_, err = env.payments.CreateIntent(ctx, buyer.UID, o.ID)
	assert.ErrorIs(t, err, ErrPaymentProvider)

	_, err = env.orders.Cancel(ctx, buyer.UID, o.ID, "")
	require.NoError(t, err)
	_, err = env.payments.CreateIntent(ctx, buyer.UID, o.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRecordResultIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, _, buyer := placeOrder(t, env)
	res, err := env.payments.CreateIntent(ctx, buyer.UID, o.ID)
	require.NoError(t, err)

	first, err := env.payments.RecordResult(ctx, PaymentResult{IntentID: res.IntentID, Status: model.PaymentStatusSucceeded, Method: "card"})
	require.NoError(t, err)
	require.NotNil(t, first.PaidAt)
	assert.Equal(t, model.PaymentStatusSucceeded, first.PaymentStatus)
	assert.Equal(t, "card", first.PaymentMethod)

	second, err := env.payments.RecordResult(ctx, PaymentResult{IntentID: res.IntentID, Status: model.PaymentStatusSucceeded, Method: "card"})
	require.NoError(t, err)
	assert.True(t, first.PaidAt.Equal(*second.PaidAt))
	assert.Equal(t, first.PaymentStatus, second.PaymentStatus)
	assert.Equal(t, model.OrderStatusPending, second.Status)
	assert.Len(t, second.StatusHistory, 1)

	assert.Equal(t, 1, countType(env.notifications(t, buyer.UID), model.NotificationPaymentSucceeded))
}

func TestRecordResultOrdering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, _, buyer := placeOrder(t, env)
	res, err := env.payments.CreateIntent(ctx, buyer.UID, o.ID)
	require.NoError(t, err)

	_, err = env.payments.RecordResult(ctx, PaymentResult{IntentID: res.IntentID, Status: model.PaymentStatusRefunded})
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = env.payments.RecordResult(ctx, PaymentResult{IntentID: res.IntentID, Status: model.PaymentStatusSucceeded})
	require.NoError(t, err)
	// a late processing signal does not undo success
	got, err := env.payments.RecordResult(ctx, PaymentResult{IntentID: res.IntentID, Status: model.PaymentStatusProcessing})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusSucceeded, got.PaymentStatus)

	got, err = env.payments.RecordResult(ctx, PaymentResult{IntentID: res.IntentID, Status: model.PaymentStatusRefunded})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, got.PaymentStatus)

	_, err = env.payments.RecordResult(ctx, PaymentResult{IntentID: "pi_unknown", Status: model.PaymentStatusSucceeded})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfirmFromProvider(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, _, buyer := placeOrder(t, env)

	_, err := env.payments.ConfirmFromProvider(ctx, buyer.UID, o.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	res, err := env.payments.CreateIntent(ctx, buyer.UID, o.ID)
	require.NoError(t, err)
	env.provider.setStatus(res.IntentID, model.PaymentStatusSucceeded)

	got, err := env.payments.ConfirmFromProvider(ctx, buyer.UID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusSucceeded, got.PaymentStatus)
	assert.Equal(t, "card", got.PaymentMethod)
}

func TestHandleWebhookDeduplicatesEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	o, _, buyer := placeOrder(t, env)
	res, err := env.payments.CreateIntent(ctx, buyer.UID, o.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, env.payments.HandleWebhook(ctx, []byte("{}"), "forged"), ErrInvalidInput)

	env.provider.event = &payment.WebhookEvent{
		ID: "evt_1", Type: "payment_intent.succeeded", IntentID: res.IntentID, Status: model.PaymentStatusSucceeded, Method: "card",
	}
	require.NoError(t, env.payments.HandleWebhook(ctx, []byte("{}"), "valid"))
	require.NoError(t, env.payments.HandleWebhook(ctx, []byte("{}"), "valid"))

	got, err := env.orders.Get(ctx, buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusSucceeded, got.PaymentStatus)
	assert.Equal(t, 1, countType(env.notifications(t, buyer.UID), model.NotificationPaymentSucceeded))

	// unknown intents are acknowledged so the provider stops retrying
	env.provider.event = &payment.WebhookEvent{ID: "evt_2", Type: "payment_intent.succeeded", IntentID: "pi_other", Status: model.PaymentStatusSucceeded}
	assert.NoError(t, env.payments.HandleWebhook(ctx, []byte("{}"), "valid"))
}

func TestIntentKeyIsStablePerOrder(t *testing.T) {
	assert.Equal(t, IntentKey(42), IntentKey(42))
	assert.NotEqual(t, IntentKey(42), IntentKey(43))
}
