package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceConfirmCancelScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	farmer := env.user(t, "farmer-1", model.RoleFarmer)
	buyer := env.user(t, "buyer-1", model.RoleBuyer)
	p := env.product(t, farmer.UID, "2.00", 10)

	// placing does not reserve stock
	o, err := env.orders.Place(ctx, buyer.UID, PlaceOrderInput{ProductID: p.ID, Quantity: 3, DeliveryAddress: "1 Farm Rd"})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, o.Status)
	assert.Equal(t, model.PaymentStatusPending, o.PaymentStatus)
	assert.Equal(t, model.DeliveryStatusPending, o.DeliveryStatus)
	assert.Equal(t, "6.00", o.TotalPrice.StringFixed(2))
	assert.Len(t, o.StatusHistory, 1)
	qty, _ := env.stock(t, p.ID)
	assert.Equal(t, 10, qty)
	assert.Equal(t, 1, countType(env.notifications(t, farmer.UID), model.NotificationNewOrder))

	o, err = env.orders.Confirm(ctx, farmer.UID, o.ID, ConfirmInput{})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusConfirmed, o.Status)
	assert.Equal(t, model.DeliveryStatusScheduled, o.DeliveryStatus)
	require.NotNil(t, o.EstimatedDeliveryDate)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 7), *o.EstimatedDeliveryDate, time.Minute)
	assert.Len(t, o.StatusHistory, 2)
	qty, _ = env.stock(t, p.ID)
	assert.Equal(t, 7, qty)
	buyerNotes := env.notifications(t, buyer.UID)
	assert.Equal(t, 1, countType(buyerNotes, model.NotificationOrderConfirmed))
	assert.Len(t, buyerNotes, 1)

	o, err = env.orders.Cancel(ctx, buyer.UID, o.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, o.Status)
	require.NotNil(t, o.CancelledBy)
	assert.Equal(t, model.CancelledByBuyer, *o.CancelledBy)
	assert.NotNil(t, o.CancelledAt)
	assert.Len(t, o.StatusHistory, 3)
	qty, _ = env.stock(t, p.ID)
	assert.Equal(t, 10, qty)
	// the counterpart of a buyer cancellation is the farmer
	assert.Equal(t, 1, countType(env.notifications(t, farmer.UID), model.NotificationOrderCancelled))
	assert.Equal(t, 0, countType(env.notifications(t, buyer.UID), model.NotificationOrderCancelled))

	statuses := make([]string, 0, len(o.StatusHistory))
	for _, h := range o.StatusHistory {
		statuses = append(statuses, h.Status)
	}
	assert.Equal(t, []string{"pending", "confirmed", "cancelled"}, statuses)
}

func TestConfirmToZeroFlipsSoldOutAndCancelRestores(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	farmer := env.user(t, "farmer-1", model.RoleFarmer)
	buyer := env.user(t, "buyer-1", model.RoleBuyer)
	p := env.product(t, farmer.UID, "5.00", 3)

	o, err := env.orders.Place(ctx, buyer.UID, PlaceOrderInput{ProductID: p.ID, Quantity: 3})
	require.NoError(t, err)
	_, err = env.orders.Confirm(ctx, farmer.UID, o.ID, ConfirmInput{})
	require.NoError(t, err)
	qty, status := env.stock(t, p.ID)
	assert.Equal(t, 0, qty)
	assert.Equal(t, model.ProductStatusSoldOut, status)

	_, err = env.orders.Cancel(ctx, buyer.UID, o.ID, "")
	require.NoError(t, err)
	qty, status = env.stock(t, p.ID)
	assert.Equal(t, 3, qty)
	assert.Equal(t, model.ProductStatusActive, status)
}

func TestPlacePreconditions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	farmer := env.user(t, "farmer-1", model.RoleFarmer)
	buyer := env.user(t, "buyer-1", model.RoleBuyer)
	p := env.product(t, farmer.UID, "2.00", 5)
	hidden := env.product(t, farmer.UID, "2.00", 5)
	hidden.Approved = false
	require.NoError(t, env.store.Products().Update(ctx, hidden))

	tests := []struct {
		name  string
		buyer string
		in    PlaceOrderInput
		want  error
	}{
		{"own product", farmer.UID, PlaceOrderInput{ProductID: p.ID, Quantity: 1}, ErrForbidden},
		{"too many", buyer.UID, PlaceOrderInput{ProductID: p.ID, Quantity: 6}, ErrInsufficientStock},
		{"zero quantity", buyer.UID, PlaceOrderInput{ProductID: p.ID, Quantity: 0}, ErrInvalidInput},
		{"negative delivery cost", buyer.UID, PlaceOrderInput{ProductID: p.ID, Quantity: 1, DeliveryCost: decimal.NewFromInt(-1)}, ErrInvalidInput},
		{"unapproved", buyer.UID, PlaceOrderInput{ProductID: hidden.ID, Quantity: 1}, ErrInvalidState},
		{"missing product", buyer.UID, PlaceOrderInput{ProductID: 9999, Quantity: 1}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.orders.Place(ctx, tt.buyer, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPlaceAddsDeliveryCost(t *testing.T) {
	env := newTestEnv(t)
	farmer := env.user(t, "farmer-1", model.RoleFarmer)
	buyer := env.user(t, "buyer-1", model.RoleBuyer)
	p := env.product(t, farmer.UID, "2.50", 10)

	o, err := env.orders.Place(context.Background(), buyer.UID, PlaceOrderInput{
		ProductID: p.ID, Quantity: 4, DeliveryCost: decimal.RequireFromString("3.75"),
	})
	require.NoError(t, err)
	assert.Equal(t, "13.75", o.TotalPrice.StringFixed(2))
	assert.Equal(t, "2.50", o.UnitPrice.StringFixed(2))
}

func TestConfirmRequiresStockAndFarmer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	farmer := env.user(t, "farmer-1", model.RoleFarmer)
	buyer := env.user(t, "buyer-1", model.RoleBuyer)
	p := env.product(t, farmer.UID, "2.00", 5)

	o, err := env.orders.Place(ctx, buyer.UID, PlaceOrderInput{ProductID: p.ID, Quantity: 4})
	require.NoError(t, err)

	_, err = env.orders.Confirm(ctx, buyer.UID, o.ID, ConfirmInput{})
	assert.ErrorIs(t, err, ErrForbidden)

	// stock sold elsewhere after placement
	require.NoError(t, env.store.Products().SetStock(ctx, p.ID, 5, 2, model.ProductStatusActive))
	_, err = env.orders.Confirm(ctx, farmer.UID, o.ID, ConfirmInput{})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	got, err := env.orders.Get(ctx, buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, got.Status)
	assert.Len(t, got.StatusHistory, 1)
	qty, _ := env.stock(t, p.ID)
	assert.Equal(t, 2, qty)
}

func TestConfirmHonoursEstimatedDateOverride(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	farmer := env.user(t, "farmer-1", model.RoleFarmer)
	buyer := env.user(t, "buyer-1", model.RoleBuyer)
	p := env.product(t, farmer.UID, "2.00", 5)
	o, err := env.orders.Place(ctx, buyer.UID, PlaceOrderInput{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)

	eta := time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC)
	o, err = env.orders.Confirm(ctx, farmer.UID, o.ID, ConfirmInput{EstimatedDeliveryDate: &eta, Notes: "picking Monday"})
	require.NoError(t, err)
	require.NotNil(t, o.EstimatedDeliveryDate)
	assert.True(t, eta.Equal(*o.EstimatedDeliveryDate))
	assert.Equal(t, "picking Monday", o.StatusHistory[1].Notes)
}

func TestDeclineLeavesStockAlone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	farmer := env.user(t, "farmer-1", model.RoleFarmer)
	buyer := env.user(t, "buyer-1", model.RoleBuyer)
	p := env.product(t, farmer.UID, "2.00", 5)
	o, err := env.orders.Place(ctx, buyer.UID, PlaceOrderInput{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)

	o, err = env.orders.Decline(ctx, farmer.UID, o.ID, "out of season")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, o.Status)
	require.NotNil(t, o.CancelledBy)
	assert.Equal(t, model.CancelledByFarmer, *o.CancelledBy)
	assert.Equal(t, "out of season", o.CancelReason)
	qty, _ := env.stock(t, p.ID)
	assert.Equal(t, 5, qty)
	assert.Equal(t, 1, countType(env.notifications(t, buyer.UID), model.NotificationOrderCancelled))
}

func TestTerminalStatesRejectEveryTransition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	farmer := env.user(t, "farmer-1", model.RoleFarmer)
	buyer := env.user(t, "buyer-1", model.RoleBuyer)
	p := env.product(t, farmer.UID, "2.00", 10)

	completed, err := env.orders.Place(ctx, buyer.UID, PlaceOrderInput{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = env.orders.Confirm(ctx, farmer.UID, completed.ID, ConfirmInput{})
	require.NoError(t, err)
	completed, err = env.orders.Complete(ctx, farmer.UID, completed.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStatusDelivered, completed.DeliveryStatus)
	assert.NotNil(t, completed.CompletedAt)
	assert.NotNil(t, completed.ActualDeliveryDate)

	cancelled, err := env.orders.Place(ctx, buyer.UID, PlaceOrderInput{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = env.orders.Cancel(ctx, buyer.UID, cancelled.ID, "")
	require.NoError(t, err)

	for _, id := range []uint64{completed.ID, cancelled.ID} {
		_, err = env.orders.Confirm(ctx, farmer.UID, id, ConfirmInput{})
		assert.ErrorIs(t, err, ErrInvalidState)
		_, err = env.orders.Decline(ctx, farmer.UID, id, "")
		assert.ErrorIs(t, err, ErrInvalidState)
		_, err = env.orders.Cancel(ctx, buyer.UID, id, "")
		assert.ErrorIs(t, err, ErrInvalidState)
		_, err = env.orders.Complete(ctx, farmer.UID, id, "")
		assert.ErrorIs(t, err, ErrInvalidState)
	}

	got, err := env.orders.Get(ctx, buyer, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCompleted, got.Status)
	assert.Len(t, got.StatusHistory, 3)
	qty, _ := env.stock(t, p.ID)
	assert.Equal(t, 9, qty)
}

func TestCompleteRequiresConfirmed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	farmer := env.user(t, "farmer-1", model.RoleFarmer)
	buyer := env.user(t, "buyer-1", model.RoleBuyer)
	p := env.product(t, farmer.UID, "2.00", 10)
	o, err := env.orders.Place(ctx, buyer.UID, PlaceOrderInput{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)

	_, err = env.orders.Complete(ctx, farmer.UID, o.ID, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestUpdateDeliveryAppendsOnlyOnChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	farmer := env.user(t, "farmer-1", model.RoleFarmer)
	buyer := env.user(t, "buyer-1", model.RoleBuyer)
	admin := env.user(t, "admin-1", model.RoleAdmin)
	p := env.product(t, farmer.UID, "2.00", 10)
	o, err := env.orders.Place(ctx, buyer.UID, PlaceOrderInput{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = env.orders.Confirm(ctx, farmer.UID, o.ID, ConfirmInput{})
	require.NoError(t, err)

	tracking, carrier := "TRK-1", "FarmPost"
	o, err = env.orders.UpdateDelivery(ctx, farmer, o.ID, DeliveryUpdate{Status: model.DeliveryStatusInTransit, TrackingNumber: &tracking, Carrier: &carrier})
	require.NoError(t, err)
	assert.Len(t, o.StatusHistory, 3)
	assert.Equal(t, "TRK-1", o.TrackingNumber)
	assert.Equal(t, model.HistoryKindDelivery, o.StatusHistory[2].Kind)

	// same value again: fields update, no history entry
	tracking = "TRK-2"
	o, err = env.orders.UpdateDelivery(ctx, admin, o.ID, DeliveryUpdate{Status: model.DeliveryStatusInTransit, TrackingNumber: &tracking})
	require.NoError(t, err)
	assert.Len(t, o.StatusHistory, 3)
	assert.Equal(t, "TRK-2", o.TrackingNumber)

	_, err = env.orders.UpdateDelivery(ctx, buyer, o.ID, DeliveryUpdate{Status: model.DeliveryStatusDelivered})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.orders.UpdateDelivery(ctx, farmer, o.ID, DeliveryUpdate{Status: "teleported"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	o, err = env.orders.UpdateDelivery(ctx, farmer, o.ID, DeliveryUpdate{Status: model.DeliveryStatusDelivered})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCompleted, o.Status)
	assert.NotNil(t, o.ActualDeliveryDate)
	assert.NotNil(t, o.CompletedAt)
	require.Len(t, o.StatusHistory, 4)
	assert.Equal(t, model.HistoryKindOrder, o.StatusHistory[3].Kind)
	assert.Equal(t, "completed", o.StatusHistory[3].Status)
	assert.Equal(t, "delivered", o.StatusHistory[3].Notes)
	assert.Equal(t, model.DeliveryStatusDelivered, o.DeliveryStatus)
	assert.Equal(t, 1, countType(env.notifications(t, buyer.UID), model.NotificationOrderCompleted))
}

func TestUpdateDeliveryRejectsCancelled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	farmer := env.user(t, "farmer-1", model.RoleFarmer)
	buyer := env.user(t, "buyer-1", model.RoleBuyer)
	p := env.product(t, farmer.UID, "2.00", 10)
	o, err := env.orders.Place(ctx, buyer.UID, PlaceOrderInput{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = env.orders.Decline(ctx, farmer.UID, o.ID, "")
	require.NoError(t, err)

	_, err = env.orders.UpdateDelivery(ctx, farmer, o.ID, DeliveryUpdate{Status: model.DeliveryStatusScheduled})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestUpdateDeliveryRequiresConfirmedOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	farmer := env.user(t, "farmer-1", model.RoleFarmer)
	buyer := env.user(t, "buyer-1", model.RoleBuyer)
	p := env.product(t, farmer.UID, "2.00", 10)
	o, err := env.orders.Place(ctx, buyer.UID, PlaceOrderInput{ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)

	_, err = env.orders.UpdateDelivery(ctx, farmer, o.ID, DeliveryUpdate{Status: model.DeliveryStatusDelivered})
	assert.ErrorIs(t, err, ErrInvalidState)
	o, err = env.orders.Get(ctx, farmer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStatusPending, o.DeliveryStatus)
	assert.Nil(t, o.ActualDeliveryDate)
	assert.Len(t, o.StatusHistory, 1)

	_, err = env.orders.Confirm(ctx, farmer.UID, o.ID, ConfirmInput{})
	require.NoError(t, err)
	o, err = env.orders.UpdateDelivery(ctx, farmer, o.ID, DeliveryUpdate{Status: model.DeliveryStatusDelivered})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCompleted, o.Status)
	assert.NotNil(t, o.ActualDeliveryDate)
	assert.Len(t, o.StatusHistory, 3)

	// tracking edits stay possible after completion without reopening it
	carrier := "FarmPost"
	o, err = env.orders.UpdateDelivery(ctx, farmer, o.ID, DeliveryUpdate{Status: model.DeliveryStatusDelivered, Carrier: &carrier})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCompleted, o.Status)
	assert.Equal(t, "FarmPost", o.Carrier)
	assert.Len(t, o.StatusHistory, 3)
}

func TestGetAndListVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	farmer := env.user(t, "farmer-1", model.RoleFarmer)
	buyer := env.user(t, "buyer-1", model.RoleBuyer)
	stranger := env.user(t, "buyer-2", model.RoleBuyer)
	admin := env.user(t, "admin-1", model.RoleAdmin)
	p := env.product(t, farmer.UID, "2.00", 10)
	o, err := env.orders.Place(ctx, buyer.UID, PlaceOrderInput{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)

	_, err = env.orders.Get(ctx, stranger, o.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.orders.Get(ctx, admin, o.ID)
	assert.NoError(t, err)
	_, err = env.orders.Get(ctx, buyer, 4242)
	assert.ErrorIs(t, err, ErrNotFound)

	list, total, err := env.orders.List(ctx, farmer.UID, OrderListFilter{Role: model.RoleFarmer})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, list, 1)
	_, total, err = env.orders.List(ctx, farmer.UID, OrderListFilter{Role: model.RoleBuyer})
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
	_, total, err = env.orders.List(ctx, buyer.UID, OrderListFilter{Status: model.OrderStatusPending})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestConcurrentConfirmAndDeclineOnlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	farmer := env.user(t, "farmer-1", model.RoleFarmer)
	buyer := env.user(t, "buyer-1", model.RoleBuyer)
	p := env.product(t, farmer.UID, "2.00", 10)
	o, err := env.orders.Place(ctx, buyer.UID, PlaceOrderInput{ProductID: p.ID, Quantity: 4})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = env.orders.Confirm(ctx, farmer.UID, o.ID, ConfirmInput{})
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = env.orders.Decline(ctx, farmer.UID, o.ID, "")
	}()
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInvalidState)
		}
	}
	assert.Equal(t, 1, succeeded)

	got, err := env.orders.Get(ctx, buyer, o.ID)
	require.NoError(t, err)
	assert.Len(t, got.StatusHistory, 2)
	qty, _ := env.stock(t, p.ID)
	if got.Status == model.OrderStatusConfirmed {
		assert.Equal(t, 6, qty)
	} else {
		assert.Equal(t, 10, qty)
	}
}
