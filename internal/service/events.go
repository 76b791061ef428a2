package service

import (
	"context"

	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shopspring/decimal"
)

// Event is a domain event handed to the notification fan-out after the
// originating change has committed. Only the ids relevant to Type are set.
type Event struct {
	Type      model.NotificationType
	OrderID   uint64
	ProductID uint64
	ReviewID  uint64
	MessageID uint64
	// ActorUID is the user whose action produced the event.
	ActorUID string
	// RecipientUID, when set, overrides the per-type recipient resolution.
	RecipientUID string
	NewPrice     decimal.Decimal
	RID          string
}

// EventPublisher hands events to background delivery. Publish must not block
// on delivery and never reports delivery failures.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event)
}

// EventHandler consumes published events.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev Event)
}

// SyncPublisher delivers events inline. Tests and one-shot tools use it.
type SyncPublisher struct {
	Handler EventHandler
}

func (p SyncPublisher) Publish(ctx context.Context, ev Event) {
	if p.Handler != nil {
		p.Handler.HandleEvent(context.WithoutCancel(ctx), ev)
	}
}

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, Event) {}

// Actor is the authenticated caller of an operation that admins may also perform.
type Actor struct {
	UID  string
	Role model.UserRole
}

func (a Actor) IsAdmin() bool {
	return a.Role == model.RoleAdmin
}
