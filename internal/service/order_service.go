package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shinyyama/farm-market-backend/internal/reqctx"
	"github.com/shinyyama/farm-market-backend/internal/repository"
	"github.com/shopspring/decimal"
)

type PlaceOrderInput struct {
	ProductID       uint64
	Quantity        int
	DeliveryAddress string
	DeliveryCost    decimal.Decimal
	Notes           string
}

type ConfirmInput struct {
	Notes                 string
	EstimatedDeliveryDate *time.Time
}

// DeliveryUpdate changes delivery tracking. Nil pointers leave the field as is.
type DeliveryUpdate struct {
	Status         model.DeliveryStatus
	TrackingNumber *string
	Carrier        *string
	EstimatedDate  *time.Time
	Notes          string
}

type OrderListFilter struct {
	Role   model.UserRole // buyer, farmer, or empty for both sides
	Status model.OrderStatus
	Limit  int
	Offset int
}

type OrderService interface {
	Place(ctx context.Context, buyerUID string, in PlaceOrderInput) (*model.Order, error)
	Confirm(ctx context.Context, farmerUID string, orderID uint64, in ConfirmInput) (*model.Order, error)
	Decline(ctx context.Context, farmerUID string, orderID uint64, notes string) (*model.Order, error)
	Cancel(ctx context.Context, buyerUID string, orderID uint64, reason string) (*model.Order, error)
	Complete(ctx context.Context, farmerUID string, orderID uint64, notes string) (*model.Order, error)
	UpdateDelivery(ctx context.Context, actor Actor, orderID uint64, in DeliveryUpdate) (*model.Order, error)
	Get(ctx context.Context, actor Actor, orderID uint64) (*model.Order, error)
	List(ctx context.Context, uid string, f OrderListFilter) ([]model.Order, int64, error)
}

type OrderOptions struct {
	DefaultDeliveryDays int
	TxTimeout           time.Duration
}

type orderService struct {
	store  *repository.Store
	events EventPublisher
	log    *slog.Logger
	opts   OrderOptions
	now    func() time.Time
}

func NewOrderService(store *repository.Store, events EventPublisher, logger *slog.Logger, opts OrderOptions) OrderService {
	if events == nil {
		events = discardPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultDeliveryDays <= 0 {
		opts.DefaultDeliveryDays = 7
	}
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = 5 * time.Second
	}
	return &orderService{
		store:  store,
		events: events,
		log:    logger,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *orderService) Place(ctx context.Context, buyerUID string, in PlaceOrderInput) (*model.Order, error) {
	if buyerUID == "" {
		return nil, ErrForbidden
	}
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	if in.DeliveryCost.IsNegative() {
		return nil, fmt.Errorf("%w: delivery cost must not be negative", ErrInvalidInput)
	}

	txCtx, cancel := context.WithTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	var order *model.Order
	err := s.store.Transaction(txCtx, func(tx *repository.Store) error {
		p, err := tx.Products().FindByID(txCtx, in.ProductID)
		if err != nil {
			return storeErr(err)
		}
		if !p.Orderable() {
			return fmt.Errorf("%w: product %d is not available", ErrInvalidState, p.ID)
		}
		if p.FarmerUID == buyerUID {
			return fmt.Errorf("%w: cannot order your own product", ErrForbidden)
		}
		if in.Quantity > p.Quantity {
			return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientStock, in.Quantity, p.Quantity)
		}

		deliveryCost := in.DeliveryCost.Round(2)
		total := p.Price.Mul(decimal.NewFromInt(int64(in.Quantity))).Add(deliveryCost).Round(2)
		order = &model.Order{
			BuyerUID:        buyerUID,
			FarmerUID:       p.FarmerUID,
			ProductID:       p.ID,
			Quantity:        in.Quantity,
			UnitPrice:       p.Price,
			DeliveryCost:    deliveryCost,
			TotalPrice:      total,
			Status:          model.OrderStatusPending,
			PaymentStatus:   model.PaymentStatusPending,
			DeliveryStatus:  model.DeliveryStatusPending,
			DeliveryAddress: strings.TrimSpace(in.DeliveryAddress),
			Notes:           strings.TrimSpace(in.Notes),
			StatusHistory: []model.OrderStatusEvent{{
				Kind:     model.HistoryKindOrder,
				Status:   string(model.OrderStatusPending),
				Notes:    "order placed",
				ActorUID: buyerUID,
			}},
		}
		return tx.Orders().Create(txCtx, order)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order placed", "rid", reqctx.RID(ctx), "order_id", order.ID, "product_id", order.ProductID, "quantity", order.Quantity)
	s.publish(ctx, Event{Type: model.NotificationNewOrder, OrderID: order.ID, ActorUID: buyerUID})
	return s.load(ctx, order.ID)
}

func (s *orderService) Confirm(ctx context.Context, farmerUID string, orderID uint64, in ConfirmInput) (*model.Order, error) {
	return s.mutate(ctx, orderID, func(txCtx context.Context, tx *repository.Store, o *model.Order) ([]Event, error) {
		if o.FarmerUID != farmerUID {
			return nil, ErrForbidden
		}
		if o.Status != model.OrderStatusPending {
			return nil, fmt.Errorf("%w: order is %s", ErrInvalidState, o.Status)
		}
		if err := s.adjustStock(txCtx, tx, o.ProductID, -o.Quantity); err != nil {
			return nil, err
		}

		now := s.now()
		eta := now.AddDate(0, 0, s.opts.DefaultDeliveryDays)
		if in.EstimatedDeliveryDate != nil {
			eta = in.EstimatedDeliveryDate.UTC()
		}
		fields := map[string]interface{}{
			"confirmed_at":            now,
			"estimated_delivery_date": eta,
			"delivery_status":         model.DeliveryStatusScheduled,
		}
		if err := s.transition(txCtx, tx, o, model.OrderStatusConfirmed, fields, farmerUID, in.Notes); err != nil {
			return nil, err
		}
		return []Event{{Type: model.NotificationOrderConfirmed, OrderID: o.ID, ActorUID: farmerUID}}, nil
	})
}

func (s *orderService) Decline(ctx context.Context, farmerUID string, orderID uint64, notes string) (*model.Order, error) {
	return s.mutate(ctx, orderID, func(txCtx context.Context, tx *repository.Store, o *model.Order) ([]Event, error) {
		if o.FarmerUID != farmerUID {
			return nil, ErrForbidden
		}
		if o.Status != model.OrderStatusPending {
			return nil, fmt.Errorf("%w: only pending orders can be declined", ErrInvalidState)
		}
		fields := map[string]interface{}{
			"cancelled_by":  model.CancelledByFarmer,
			"cancelled_at":  s.now(),
			"cancel_reason": strings.TrimSpace(notes),
		}
		if err := s.transition(txCtx, tx, o, model.OrderStatusCancelled, fields, farmerUID, notes); err != nil {
			return nil, err
		}
		return []Event{{Type: model.NotificationOrderCancelled, OrderID: o.ID, ActorUID: farmerUID}}, nil
	})
}

func (s *orderService) Cancel(ctx context.Context, buyerUID string, orderID uint64, reason string) (*model.Order, error) {
	return s.mutate(ctx, orderID, func(txCtx context.Context, tx *repository.Store, o *model.Order) ([]Event, error) {
		if o.BuyerUID != buyerUID {
			return nil, ErrForbidden
		}
		if !o.Status.CanTransitionTo(model.OrderStatusCancelled) {
			return nil, fmt.Errorf("%w: order is %s", ErrInvalidState, o.Status)
		}
		if o.Status == model.OrderStatusConfirmed {
			if err := s.adjustStock(txCtx, tx, o.ProductID, o.Quantity); err != nil {
				return nil, err
			}
		}
		fields := map[string]interface{}{
			"cancelled_by":  model.CancelledByBuyer,
			"cancelled_at":  s.now(),
			"cancel_reason": strings.TrimSpace(reason),
		}
		if err := s.transition(txCtx, tx, o, model.OrderStatusCancelled, fields, buyerUID, reason); err != nil {
			return nil, err
		}
		return []Event{{Type: model.NotificationOrderCancelled, OrderID: o.ID, ActorUID: buyerUID}}, nil
	})
}

func (s *orderService) Complete(ctx context.Context, farmerUID string, orderID uint64, notes string) (*model.Order, error) {
	return s.mutate(ctx, orderID, func(txCtx context.Context, tx *repository.Store, o *model.Order) ([]Event, error) {
		if o.FarmerUID != farmerUID {
			return nil, ErrForbidden
		}
		if o.Status != model.OrderStatusConfirmed {
			return nil, fmt.Errorf("%w: only confirmed orders can be completed", ErrInvalidState)
		}
		now := s.now()
		fields := map[string]interface{}{
			"completed_at":         now,
			"actual_delivery_date": now,
			"delivery_status":      model.DeliveryStatusDelivered,
		}
		if err := s.transition(txCtx, tx, o, model.OrderStatusCompleted, fields, farmerUID, notes); err != nil {
			return nil, err
		}
		return []Event{{Type: model.NotificationOrderCompleted, OrderID: o.ID, ActorUID: farmerUID}}, nil
	})
}

// UpdateDelivery tracks delivery of confirmed or completed orders and logs a
// delivery history entry only when the delivery status value changes. Marking
// a confirmed order delivered completes it and logs the completion instead.
func (s *orderService) UpdateDelivery(ctx context.Context, actor Actor, orderID uint64, in DeliveryUpdate) (*model.Order, error) {
	if !in.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown delivery status %q", ErrInvalidInput, in.Status)
	}
	return s.mutate(ctx, orderID, func(txCtx context.Context, tx *repository.Store, o *model.Order) ([]Event, error) {
		if o.FarmerUID != actor.UID && !actor.IsAdmin() {
			return nil, ErrForbidden
		}
		if o.Status != model.OrderStatusConfirmed && o.Status != model.OrderStatusCompleted {
			return nil, fmt.Errorf("%w: delivery cannot be tracked on a %s order", ErrInvalidState, o.Status)
		}

		fields := map[string]interface{}{"delivery_status": in.Status}
		if in.TrackingNumber != nil {
			fields["tracking_number"] = strings.TrimSpace(*in.TrackingNumber)
		}
		if in.Carrier != nil {
			fields["carrier"] = strings.TrimSpace(*in.Carrier)
		}
		if in.EstimatedDate != nil {
			fields["estimated_delivery_date"] = in.EstimatedDate.UTC()
		}
		now := s.now()
		completes := in.Status == model.DeliveryStatusDelivered && o.Status == model.OrderStatusConfirmed
		if completes {
			fields["actual_delivery_date"] = now
		}
		if err := tx.Orders().Update(txCtx, o.ID, fields); err != nil {
			return nil, err
		}

		// delivering a confirmed order completes it; the completion entry stands
		// for the delivery change so the call still logs a single entry
		if completes {
			notes := in.Notes
			if notes == "" {
				notes = "delivered"
			}
			if err := s.transition(txCtx, tx, o, model.OrderStatusCompleted, map[string]interface{}{"completed_at": now}, actor.UID, notes); err != nil {
				return nil, err
			}
			return []Event{{Type: model.NotificationOrderCompleted, OrderID: o.ID, ActorUID: actor.UID}}, nil
		}

		if in.Status != o.DeliveryStatus {
			if err := tx.Orders().AppendHistory(txCtx, &model.OrderStatusEvent{
				OrderID:  o.ID,
				Kind:     model.HistoryKindDelivery,
				Status:   string(in.Status),
				Notes:    in.Notes,
				ActorUID: actor.UID,
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
}

func (s *orderService) Get(ctx context.Context, actor Actor, orderID uint64) (*model.Order, error) {
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsParticipant(actor.UID) && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return o, nil
}

func (s *orderService) List(ctx context.Context, uid string, f OrderListFilter) ([]model.Order, int64, error) {
	if uid == "" {
		return nil, 0, ErrForbidden
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	rf := repository.OrderFilter{Status: f.Status, Limit: f.Limit, Offset: f.Offset}
	switch f.Role {
	case model.RoleBuyer:
		rf.BuyerUID = uid
	case model.RoleFarmer:
		rf.FarmerUID = uid
	default:
		rf.BuyerUID, rf.FarmerUID = uid, uid
	}
	return s.store.Orders().List(ctx, rf)
}

type orderMutation func(txCtx context.Context, tx *repository.Store, o *model.Order) ([]Event, error)

// mutate runs fn in one bounded transaction with the order row locked and
// publishes the returned events only after commit.
func (s *orderService) mutate(ctx context.Context, orderID uint64, fn orderMutation) (*model.Order, error) {
	txCtx, cancel := context.WithTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	var events []Event
	err := s.store.Transaction(txCtx, func(tx *repository.Store) error {
		o, err := tx.Orders().FindByIDForUpdate(txCtx, orderID)
		if err != nil {
			return storeErr(err)
		}
		events, err = fn(txCtx, tx, o)
		return err
	})
	if err != nil {
		s.log.Warn("order mutation rejected", "rid", reqctx.RID(ctx), "order_id", orderID, "err", err)
		return nil, err
	}
	for _, ev := range events {
		s.publish(ctx, ev)
	}
	return s.load(ctx, orderID)
}

// transition moves the order to next with a compare-and-swap on its current
// status and appends the matching history entry.
func (s *orderService) transition(ctx context.Context, tx *repository.Store, o *model.Order, next model.OrderStatus, fields map[string]interface{}, actorUID, notes string) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, o.Status, next)
	}
	fields["status"] = next
	if err := tx.Orders().TransitionStatus(ctx, o.ID, o.Status, fields); err != nil {
		if errors.Is(err, repository.ErrStaleWrite) {
			return fmt.Errorf("%w: order %d changed concurrently", ErrInvalidState, o.ID)
		}
		return err
	}
	s.log.Info("order status changed", "rid", reqctx.RID(ctx), "order_id", o.ID, "from", o.Status, "to", next)
	return tx.Orders().AppendHistory(ctx, &model.OrderStatusEvent{
		OrderID:  o.ID,
		Kind:     model.HistoryKindOrder,
		Status:   string(next),
		Notes:    strings.TrimSpace(notes),
		ActorUID: actorUID,
	})
}

// adjustStock applies delta to the locked product row and keeps its status in
// line with the resulting quantity.
func (s *orderService) adjustStock(ctx context.Context, tx *repository.Store, productID uint64, delta int) error {
	p, err := tx.Products().FindByIDForUpdate(ctx, productID)
	if err != nil {
		return storeErr(err)
	}
	next := p.Quantity + delta
	if next < 0 {
		return fmt.Errorf("%w: requested %d, available %d", ErrInsufficientStock, -delta, p.Quantity)
	}
	if err := tx.Products().SetStock(ctx, p.ID, p.Quantity, next, p.StockStatus(next)); err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *orderService) load(ctx context.Context, orderID uint64) (*model.Order, error) {
	o, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, storeErr(err)
	}
	return o, nil
}

func (s *orderService) publish(ctx context.Context, ev Event) {
	ev.RID = reqctx.RID(ctx)
	s.events.Publish(ctx, ev)
}
