package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WishlistItem records the price seen when the item was saved; price drops are
// measured against RecordedPrice.
type WishlistItem struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement"`
	UserUID        string          `gorm:"column:user_uid;size:128;not null;uniqueIndex:uk_wishlist_user_product"`
	ProductID      uint64          `gorm:"column:product_id;not null;uniqueIndex:uk_wishlist_user_product;index"`
	RecordedPrice  decimal.Decimal `gorm:"column:recorded_price;type:decimal(10,2);not null"`
	PriceDropAlert bool            `gorm:"column:price_drop_alert;not null;default:true"`
	CreatedAt      time.Time       `gorm:"autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime"`
}

func (WishlistItem) TableName() string {
	return "wishlist_items"
}

type Review struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	OrderID   uint64    `gorm:"column:order_id;not null;uniqueIndex"`
	ProductID uint64    `gorm:"column:product_id;not null;index"`
	FarmerUID string    `gorm:"column:farmer_uid;size:128;not null;index"`
	BuyerUID  string    `gorm:"column:buyer_uid;size:128;not null;index"`
	Rating    int       `gorm:"not null"`
	Comment   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Review) TableName() string {
	return "reviews"
}

// PaymentWebhookEvent marks a provider event id as processed.
type PaymentWebhookEvent struct {
	EventID     string    `gorm:"column:event_id;primaryKey;size:255"`
	EventType   string    `gorm:"column:event_type;size:64;index"`
	ProcessedAt time.Time `gorm:"column:processed_at;autoCreateTime"`
}

func (PaymentWebhookEvent) TableName() string {
	return "payment_webhook_events"
}

// All lists every migrated model.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Product{},
		&Order{},
		&OrderStatusEvent{},
		&Notification{},
		&NotificationPreference{},
		&WishlistItem{},
		&Follow{},
		&Review{},
		&Message{},
		&PaymentWebhookEvent{},
	}
}
