package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shinyyama/farm-market-backend/internal/payment"
	"github.com/shinyyama/farm-market-backend/internal/reqctx"
	"github.com/shinyyama/farm-market-backend/internal/repository"
)

// intentKeySpace namespaces the idempotency keys derived from order ids.
var intentKeySpace = uuid.MustParse("6f1c1a52-3a0e-4e53-9a8e-1d0f5c6b7a10")

type PaymentResult struct {
	IntentID string
	Status   model.PaymentStatus
	Method   string
}

type IntentResult struct {
	OrderID       uint64
	IntentID      string
	ClientSecret  string
	PaymentStatus model.PaymentStatus
	// Reused is set when an existing intent was returned instead of a new one.
	Reused bool
}

type PaymentService interface {
	CreateIntent(ctx context.Context, buyerUID string, orderID uint64) (*IntentResult, error)
	RecordResult(ctx context.Context, res PaymentResult) (*model.Order, error)
	ConfirmFromProvider(ctx context.Context, buyerUID string, orderID uint64) (*model.Order, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type paymentService struct {
	store     *repository.Store
	provider  payment.Provider
	events    EventPublisher
	log       *slog.Logger
	currency  string
	txTimeout time.Duration
	now       func() time.Time
}

func NewPaymentService(store *repository.Store, provider payment.Provider, events EventPublisher, logger *slog.Logger, currency string, txTimeout time.Duration) PaymentService {
	if events == nil {
		events = discardPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if currency == "" {
		currency = "usd"
	}
	if txTimeout <= 0 {
		txTimeout = 5 * time.Second
	}
	return &paymentService{
		store:     store,
		provider:  provider,
		events:    events,
		log:       logger,
		currency:  currency,
		txTimeout: txTimeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// IntentKey is the provider idempotency key for an order's payment intent.
func IntentKey(orderID uint64) string {
	return uuid.NewSHA1(intentKeySpace, []byte(fmt.Sprintf("order-%d", orderID))).String()
}

func (s *paymentService) CreateIntent(ctx context.Context, buyerUID string, orderID uint64) (*IntentResult, error) {
	o, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, storeErr(err)
	}
	if o.BuyerUID != buyerUID {
		return nil, ErrForbidden
	}
	if o.Status == model.OrderStatusCancelled {
		return nil, fmt.Errorf("%w: order is cancelled", ErrInvalidState)
	}

	res := &IntentResult{OrderID: o.ID, PaymentStatus: o.PaymentStatus}
	if o.PaymentIntentID != nil {
		res.IntentID = *o.PaymentIntentID
		res.Reused = true
		if o.PaymentStatus == model.PaymentStatusSucceeded {
			return res, nil
		}
	}
	if s.provider == nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentProvider, payment.ErrNotConfigured)
	}

	if res.Reused {
		in, err := s.provider.GetIntent(ctx, res.IntentID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
		}
		res.ClientSecret = in.ClientSecret
		if in.Status == model.PaymentStatusSucceeded {
			updated, err := s.RecordResult(ctx, PaymentResult{IntentID: in.ID, Status: in.Status, Method: in.Method})
			if err != nil {
				return nil, err
			}
			res.PaymentStatus = updated.PaymentStatus
		}
		return res, nil
	}

	in, err := s.provider.CreateIntent(ctx, payment.CreateParams{
		OrderID:        o.ID,
		BuyerUID:       o.BuyerUID,
		Amount:         o.TotalPrice,
		Currency:       s.currency,
		IdempotencyKey: IntentKey(o.ID),
	})
	if err != nil {
		s.log.Error("create payment intent failed", "rid", reqctx.RID(ctx), "order_id", o.ID, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}
	if err := s.store.Orders().Update(ctx, o.ID, map[string]interface{}{
		"payment_intent_id": in.ID,
		"payment_status":    model.PaymentStatusProcessing,
	}); err != nil {
		return nil, storeErr(err)
	}
	s.log.Info("payment intent created", "rid", reqctx.RID(ctx), "order_id", o.ID, "intent_id", in.ID)
	res.IntentID = in.ID
	res.ClientSecret = in.ClientSecret
	res.PaymentStatus = model.PaymentStatusProcessing
	return res, nil
}

func (s *paymentService) RecordResult(ctx context.Context, res PaymentResult) (*model.Order, error) {
	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var (
		orderID uint64
		events  []Event
	)
	err := s.store.Transaction(txCtx, func(tx *repository.Store) error {
		var err error
		orderID, events, err = s.record(txCtx, tx, res)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		ev.RID = reqctx.RID(ctx)
		s.events.Publish(ctx, ev)
	}
	o, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, storeErr(err)
	}
	return o, nil
}

// record applies a provider result to the order holding the intent. Repeated
// or stale signals leave the order untouched and produce no events.
func (s *paymentService) record(ctx context.Context, tx *repository.Store, res PaymentResult) (uint64, []Event, error) {
	if res.IntentID == "" {
		return 0, nil, fmt.Errorf("%w: intent id is required", ErrInvalidInput)
	}
	o, err := tx.Orders().FindByPaymentIntent(ctx, res.IntentID)
	if err != nil {
		return 0, nil, storeErr(err)
	}

	cur, next := o.PaymentStatus, res.Status
	switch {
	case cur == next, cur == model.PaymentStatusRefunded:
		return o.ID, nil, nil
	case next == model.PaymentStatusRefunded && cur != model.PaymentStatusSucceeded:
		return 0, nil, fmt.Errorf("%w: refund before payment succeeded", ErrInvalidState)
	case cur == model.PaymentStatusSucceeded && next != model.PaymentStatusRefunded:
		s.log.Info("stale payment signal ignored", "order_id", o.ID, "current", cur, "signal", next)
		return o.ID, nil, nil
	}

	fields := map[string]interface{}{"payment_status": next}
	if res.Method != "" {
		fields["payment_method"] = res.Method
	}
	var events []Event
	if next == model.PaymentStatusSucceeded {
		fields["paid_at"] = s.now()
		events = append(events, Event{Type: model.NotificationPaymentSucceeded, OrderID: o.ID})
	}
	if err := tx.Orders().Update(ctx, o.ID, fields); err != nil {
		return 0, nil, err
	}
	s.log.Info("payment status recorded", "rid", reqctx.RID(ctx), "order_id", o.ID, "from", cur, "to", next)
	return o.ID, events, nil
}

func (s *paymentService) ConfirmFromProvider(ctx context.Context, buyerUID string, orderID uint64) (*model.Order, error) {
	o, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, storeErr(err)
	}
	if o.BuyerUID != buyerUID {
		return nil, ErrForbidden
	}
	if o.PaymentIntentID == nil {
		return nil, fmt.Errorf("%w: no payment intent for order", ErrInvalidState)
	}
	if s.provider == nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentProvider, payment.ErrNotConfigured)
	}
	in, err := s.provider.GetIntent(ctx, *o.PaymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}
	return s.RecordResult(ctx, PaymentResult{IntentID: in.ID, Status: in.Status, Method: in.Method})
}

// HandleWebhook applies a verified provider event once; redelivered event ids
// are acknowledged without effect.
func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.provider == nil {
		return fmt.Errorf("%w: %v", ErrPaymentProvider, payment.ErrNotConfigured)
	}
	ev, err := s.provider.ParseWebhook(payload, signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var events []Event
	err = s.store.Transaction(txCtx, func(tx *repository.Store) error {
		fresh, err := tx.WebhookEvents().MarkProcessed(txCtx, ev.ID, ev.Type)
		if err != nil {
			return err
		}
		if !fresh {
			s.log.Info("duplicate webhook event", "event_id", ev.ID, "type", ev.Type)
			return nil
		}
		if ev.IntentID == "" || ev.Status == "" {
			return nil
		}
		_, events, err = s.record(txCtx, tx, PaymentResult{IntentID: ev.IntentID, Status: ev.Status, Method: ev.Method})
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidState) {
			s.log.Warn("webhook event not applied", "event_id", ev.ID, "intent_id", ev.IntentID, "err", err)
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	for _, e := range events {
		e.RID = reqctx.RID(ctx)
		s.events.Publish(ctx, e)
	}
	return nil
}
