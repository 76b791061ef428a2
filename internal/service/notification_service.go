package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shinyyama/farm-market-backend/internal/repository"
	"gorm.io/datatypes"
)

// PushEvent is the payload pushed to a user's live connections.
type PushEvent struct {
	ID        uint64                 `json:"id"`
	Type      model.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      datatypes.JSONMap      `json:"data,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Pusher delivers to a user's live connections and drops the event when there are none.
type Pusher interface {
	PushTo(userUID string, v any)
}

type Mailer interface {
	SendNotification(ctx context.Context, to string, n *model.Notification) error
}

type NotifyInput struct {
	UserUID string
	Type    model.NotificationType
	Title   string
	Message string
	Data    map[string]interface{}
}

type PreferencePatch struct {
	Type    model.NotificationType
	Channel model.Channel
	Enabled bool
}

type NotificationService interface {
	EventHandler
	Notify(ctx context.Context, in NotifyInput)
	List(ctx context.Context, userUID string, unreadOnly bool, limit, offset int) ([]model.Notification, int64, error)
	MarkRead(ctx context.Context, userUID string, id uint64) error
	MarkAllRead(ctx context.Context, userUID string) (int64, error)
	Delete(ctx context.Context, userUID string, id uint64) error
	GetPreferences(ctx context.Context, userUID string) (*model.NotificationPreference, error)
	UpdatePreferences(ctx context.Context, userUID string, patch []PreferencePatch) (*model.NotificationPreference, error)
}

type notificationService struct {
	store       *repository.Store
	pusher      Pusher
	mailer      Mailer
	log         *slog.Logger
	frontendURL string
}

// NewNotificationService builds the fan-out engine. pusher and mailer may be nil
// to disable those channels.
func NewNotificationService(store *repository.Store, pusher Pusher, mailer Mailer, logger *slog.Logger, frontendURL string) NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &notificationService{
		store:       store,
		pusher:      pusher,
		mailer:      mailer,
		log:         logger,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// Notify persists the notification and then delivers it on the channels the
// recipient allows. Failures are logged, never returned.
func (s *notificationService) Notify(ctx context.Context, in NotifyInput) {
	if in.UserUID == "" || in.Type == "" {
		return
	}
	user, err := s.store.Users().FindByUID(ctx, in.UserUID)
	if err != nil {
		s.log.Warn("notify: recipient not resolved", "user_uid", in.UserUID, "type", in.Type, "err", err)
		return
	}

	n := &model.Notification{
		UserUID: in.UserUID,
		Type:    in.Type,
		Title:   in.Title,
		Message: in.Message,
		Data:    datatypes.JSONMap(in.Data),
	}
	if err := s.store.Notifications().Create(ctx, n); err != nil {
		s.log.Error("notify: persist failed", "user_uid", in.UserUID, "type", in.Type, "err", err)
		return
	}

	pref, err := s.store.Preferences().Get(ctx, in.UserUID)
	if err != nil {
		s.log.Error("notify: preferences unavailable", "user_uid", in.UserUID, "err", err)
		return
	}

	if s.pusher != nil && pref.Allows(in.Type, model.ChannelPush) {
		s.pusher.PushTo(in.UserUID, PushEvent{
			ID:        n.ID,
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			Data:      n.Data,
			CreatedAt: n.CreatedAt,
		})
	}

	if s.mailer != nil && user.Email != "" && pref.Allows(in.Type, model.ChannelEmail) {
		if err := s.mailer.SendNotification(ctx, user.Email, n); err != nil {
			s.log.Warn("notify: email failed", "notification_id", n.ID, "user_uid", in.UserUID, "err", err)
			return
		}
		if err := s.store.Notifications().MarkEmailSent(ctx, n.ID); err != nil {
			s.log.Warn("notify: mark email sent failed", "notification_id", n.ID, "err", err)
		}
	}
}

// HandleEvent resolves the recipients of ev and notifies each of them.
func (s *notificationService) HandleEvent(ctx context.Context, ev Event) {
	log := s.log.With("rid", ev.RID, "type", ev.Type)
	var inputs []NotifyInput
	var err error
	switch ev.Type {
	case model.NotificationNewOrder, model.NotificationOrderConfirmed, model.NotificationOrderCompleted,
		model.NotificationOrderCancelled, model.NotificationPaymentSucceeded:
		inputs, err = s.orderNotifications(ctx, ev)
	case model.NotificationNewProduct:
		inputs, err = s.newProductNotifications(ctx, ev)
	case model.NotificationPriceDrop:
		s.priceDrop(ctx, ev, log)
		return
	case model.NotificationNewReview:
		inputs, err = s.reviewNotifications(ctx, ev)
	case model.NotificationNewMessage:
		inputs, err = s.messageNotifications(ctx, ev)
	default:
		log.Warn("unknown event type")
		return
	}
	if err != nil {
		log.Warn("event recipients not resolved", "err", err)
		return
	}
	for _, in := range inputs {
		s.Notify(ctx, in)
	}
}

func (s *notificationService) orderNotifications(ctx context.Context, ev Event) ([]NotifyInput, error) {
	o, err := s.store.Orders().FindByID(ctx, ev.OrderID)
	if err != nil {
		return nil, err
	}
	p, err := s.store.Products().FindByID(ctx, o.ProductID)
	if err != nil {
		return nil, err
	}
	data := map[string]interface{}{"orderId": o.ID, "url": s.link("/orders/%d", o.ID)}

	in := NotifyInput{UserUID: o.BuyerUID, Type: ev.Type, Data: data}
	switch ev.Type {
	case model.NotificationNewOrder:
		in.UserUID = o.FarmerUID
		in.Title = "New order received"
		in.Message = fmt.Sprintf("New order for %d x %s (total %s).", o.Quantity, p.Name, o.TotalPrice.StringFixed(2))
	case model.NotificationOrderConfirmed:
		in.Title = "Order confirmed"
		in.Message = fmt.Sprintf("Your order for %s has been confirmed.", p.Name)
		if o.EstimatedDeliveryDate != nil {
			in.Message = fmt.Sprintf("Your order for %s has been confirmed. Estimated delivery: %s.", p.Name, o.EstimatedDeliveryDate.Format("2006-01-02"))
		}
	case model.NotificationOrderCompleted:
		in.Title = "Order completed"
		in.Message = fmt.Sprintf("Your order for %s has been delivered.", p.Name)
	case model.NotificationOrderCancelled:
		in.Title = "Order cancelled"
		in.Message = fmt.Sprintf("The order for %s has been cancelled.", p.Name)
		if ev.ActorUID == o.BuyerUID {
			in.UserUID = o.FarmerUID
			in.Message = fmt.Sprintf("The buyer cancelled the order for %d x %s.", o.Quantity, p.Name)
		}
	case model.NotificationPaymentSucceeded:
		in.Title = "Payment received"
		in.Message = fmt.Sprintf("Payment of %s for %s succeeded.", o.TotalPrice.StringFixed(2), p.Name)
	}
	return []NotifyInput{in}, nil
}

func (s *notificationService) newProductNotifications(ctx context.Context, ev Event) ([]NotifyInput, error) {
	p, err := s.store.Products().FindByID(ctx, ev.ProductID)
	if err != nil {
		return nil, err
	}
	followers, err := s.store.Follows().Followers(ctx, p.FarmerUID)
	if err != nil {
		return nil, err
	}
	farmName := p.FarmerUID
	if farmer, err := s.store.Users().FindByUID(ctx, p.FarmerUID); err == nil {
		farmName = farmer.DisplayName()
	}
	out := make([]NotifyInput, 0, len(followers))
	for _, uid := range followers {
		out = append(out, NotifyInput{
			UserUID: uid,
			Type:    model.NotificationNewProduct,
			Title:   "New product available",
			Message: fmt.Sprintf("%s listed %s.", farmName, p.Name),
			Data:    map[string]interface{}{"productId": p.ID, "url": s.link("/products/%d", p.ID)},
		})
	}
	return out, nil
}

// priceDrop notifies wishlist owners whose recorded price is above the new
// price and then lowers their recorded price so the same drop is sent once.
func (s *notificationService) priceDrop(ctx context.Context, ev Event, log *slog.Logger) {
	p, err := s.store.Products().FindByID(ctx, ev.ProductID)
	if err != nil {
		log.Warn("price drop: product not found", "product_id", ev.ProductID, "err", err)
		return
	}
	items, err := s.store.Wishlist().PriceDropCandidates(ctx, p.ID, ev.NewPrice)
	if err != nil {
		log.Warn("price drop: wishlist lookup failed", "product_id", p.ID, "err", err)
		return
	}
	for _, it := range items {
		s.Notify(ctx, NotifyInput{
			UserUID: it.UserUID,
			Type:    model.NotificationPriceDrop,
			Title:   "Price drop",
			Message: fmt.Sprintf("%s dropped from %s to %s.", p.Name, it.RecordedPrice.StringFixed(2), ev.NewPrice.StringFixed(2)),
			Data: map[string]interface{}{
				"productId": p.ID,
				"oldPrice":  it.RecordedPrice.StringFixed(2),
				"newPrice":  ev.NewPrice.StringFixed(2),
				"url":       s.link("/products/%d", p.ID),
			},
		})
		if err := s.store.Wishlist().UpdateRecordedPrice(ctx, it.ID, ev.NewPrice); err != nil {
			log.Warn("price drop: recorded price not updated", "wishlist_id", it.ID, "err", err)
		}
	}
}

func (s *notificationService) reviewNotifications(ctx context.Context, ev Event) ([]NotifyInput, error) {
	rv, err := s.store.Reviews().FindByOrder(ctx, ev.OrderID)
	if err != nil {
		return nil, err
	}
	name := "your product"
	if p, err := s.store.Products().FindByID(ctx, rv.ProductID); err == nil {
		name = p.Name
	}
	return []NotifyInput{{
		UserUID: rv.FarmerUID,
		Type:    model.NotificationNewReview,
		Title:   "New review",
		Message: fmt.Sprintf("%s received a %d-star review.", name, rv.Rating),
		Data:    map[string]interface{}{"reviewId": rv.ID, "productId": rv.ProductID, "url": s.link("/products/%d", rv.ProductID)},
	}}, nil
}

func (s *notificationService) messageNotifications(ctx context.Context, ev Event) ([]NotifyInput, error) {
	if ev.RecipientUID == "" {
		return nil, fmt.Errorf("message %d has no recipient", ev.MessageID)
	}
	sender := ev.ActorUID
	if u, err := s.store.Users().FindByUID(ctx, ev.ActorUID); err == nil {
		sender = u.DisplayName()
	}
	return []NotifyInput{{
		UserUID: ev.RecipientUID,
		Type:    model.NotificationNewMessage,
		Title:   "New message",
		Message: fmt.Sprintf("%s sent you a message.", sender),
		Data:    map[string]interface{}{"messageId": ev.MessageID, "senderUid": ev.ActorUID, "url": s.link("/messages/%s", ev.ActorUID)},
	}}, nil
}

func (s *notificationService) link(format string, args ...interface{}) string {
	return s.frontendURL + fmt.Sprintf(format, args...)
}

func (s *notificationService) List(ctx context.Context, userUID string, unreadOnly bool, limit, offset int) ([]model.Notification, int64, error) {
	if userUID == "" {
		return nil, 0, nil
	}
	if offset < 0 {
		offset = 0
	}
	list, err := s.store.Notifications().ListByUser(ctx, userUID, unreadOnly, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	cnt, err := s.store.Notifications().CountUnread(ctx, userUID)
	if err != nil {
		return list, 0, err
	}
	return list, cnt, nil
}

func (s *notificationService) MarkRead(ctx context.Context, userUID string, id uint64) error {
	n, err := s.store.Notifications().MarkRead(ctx, userUID, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userUID string) (int64, error) {
	if userUID == "" {
		return 0, nil
	}
	return s.store.Notifications().MarkAllRead(ctx, userUID)
}

func (s *notificationService) Delete(ctx context.Context, userUID string, id uint64) error {
	n, err := s.store.Notifications().Delete(ctx, userUID, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *notificationService) GetPreferences(ctx context.Context, userUID string) (*model.NotificationPreference, error) {
	if userUID == "" {
		return nil, ErrForbidden
	}
	return s.store.Preferences().Get(ctx, userUID)
}

func (s *notificationService) UpdatePreferences(ctx context.Context, userUID string, patch []PreferencePatch) (*model.NotificationPreference, error) {
	if userUID == "" {
		return nil, ErrForbidden
	}
	pref, err := s.store.Preferences().Get(ctx, userUID)
	if err != nil {
		return nil, err
	}
	for _, p := range patch {
		if p.Channel != model.ChannelEmail && p.Channel != model.ChannelPush {
			return nil, fmt.Errorf("%w: unknown channel %q", ErrInvalidInput, p.Channel)
		}
		if !pref.Set(p.Type, p.Channel, p.Enabled) {
			return nil, fmt.Errorf("%w: unknown notification type %q", ErrInvalidInput, p.Type)
		}
	}
	if err := s.store.Preferences().Save(ctx, pref); err != nil {
		return nil, err
	}
	return pref, nil
}
