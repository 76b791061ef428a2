package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusCompleted, OrderStatusCancelled},
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

type DeliveryStatus string

const (
	DeliveryStatusPending        DeliveryStatus = "pending"
	DeliveryStatusScheduled      DeliveryStatus = "scheduled"
	DeliveryStatusInTransit      DeliveryStatus = "in_transit"
	DeliveryStatusOutForDelivery DeliveryStatus = "out_for_delivery"
	DeliveryStatusDelivered      DeliveryStatus = "delivered"
	DeliveryStatusFailed         DeliveryStatus = "failed"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusScheduled, DeliveryStatusInTransit,
		DeliveryStatusOutForDelivery, DeliveryStatusDelivered, DeliveryStatusFailed:
		return true
	}
	return false
}

type CancelActor string

const (
	CancelledByBuyer  CancelActor = "buyer"
	CancelledByFarmer CancelActor = "farmer"
)

type Order struct {
	ID                    uint64          `gorm:"primaryKey;autoIncrement"`
	BuyerUID              string          `gorm:"column:buyer_uid;size:128;index;not null"`
	FarmerUID             string          `gorm:"column:farmer_uid;size:128;index;not null"`
	ProductID             uint64          `gorm:"column:product_id;index;not null"`
	Quantity              int             `gorm:"not null"`
	UnitPrice             decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	DeliveryCost          decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	TotalPrice            decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status                OrderStatus     `gorm:"size:16;not null;index"`
	PaymentStatus         PaymentStatus   `gorm:"column:payment_status;size:16;not null"`
	DeliveryStatus        DeliveryStatus  `gorm:"column:delivery_status;size:24;not null"`
	DeliveryAddress       string          `gorm:"column:delivery_address;type:text"`
	Notes                 string          `gorm:"type:text"`
	CancelledBy           *CancelActor    `gorm:"column:cancelled_by;size:8"`
	CancelledAt           *time.Time      `gorm:"column:cancelled_at"`
	CancelReason          string          `gorm:"column:cancel_reason;type:text"`
	PaymentIntentID       *string         `gorm:"column:payment_intent_id;size:255;uniqueIndex"`
	PaymentMethod         string          `gorm:"column:payment_method;size:64"`
	PaidAt                *time.Time      `gorm:"column:paid_at"`
	TrackingNumber        string          `gorm:"column:tracking_number;size:128"`
	Carrier               string          `gorm:"size:64"`
	ScheduledDeliveryDate *time.Time      `gorm:"column:scheduled_delivery_date"`
	EstimatedDeliveryDate *time.Time      `gorm:"column:estimated_delivery_date"`
	ActualDeliveryDate    *time.Time      `gorm:"column:actual_delivery_date"`
	ConfirmedAt           *time.Time      `gorm:"column:confirmed_at"`
	CompletedAt           *time.Time      `gorm:"column:completed_at"`
	CreatedAt             time.Time       `gorm:"autoCreateTime"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime"`

	StatusHistory []OrderStatusEvent `gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string {
	return "orders"
}

func (o *Order) IsParticipant(uid string) bool {
	return uid != "" && (o.BuyerUID == uid || o.FarmerUID == uid)
}

type HistoryKind string

const (
	HistoryKindOrder    HistoryKind = "order"
	HistoryKindDelivery HistoryKind = "delivery"
)

// OrderStatusEvent is one append-only entry of an order's status history.
// Order and delivery changes share the log and are told apart by Kind.
type OrderStatusEvent struct {
	ID        uint64      `gorm:"primaryKey;autoIncrement"`
	OrderID   uint64      `gorm:"column:order_id;index;not null"`
	Kind      HistoryKind `gorm:"size:16;not null"`
	Status    string      `gorm:"size:24;not null"`
	Notes     string      `gorm:"type:text"`
	ActorUID  string      `gorm:"column:actor_uid;size:128"`
	CreatedAt time.Time   `gorm:"autoCreateTime"`
}

func (OrderStatusEvent) TableName() string {
	return "order_status_events"
}
