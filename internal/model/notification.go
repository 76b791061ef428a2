package model

import (
	"time"

	"gorm.io/datatypes"
)

type NotificationType string

const (
	NotificationNewOrder         NotificationType = "new_order"
	NotificationOrderConfirmed   NotificationType = "order_confirmed"
	NotificationOrderCompleted   NotificationType = "order_completed"
	NotificationOrderCancelled   NotificationType = "order_cancelled"
	NotificationPaymentSucceeded NotificationType = "payment_succeeded"
	NotificationNewProduct       NotificationType = "new_product"
	NotificationPriceDrop        NotificationType = "price_drop"
	NotificationNewReview        NotificationType = "new_review"
	NotificationNewMessage       NotificationType = "new_message"
)

func (t NotificationType) Valid() bool {
	_, _, ok := (&NotificationPreference{}).flags(t)
	return ok
}

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

type Notification struct {
	ID        uint64            `gorm:"primaryKey;autoIncrement"`
	UserUID   string            `gorm:"column:user_uid;size:128;index;not null"`
	Type      NotificationType  `gorm:"column:type;size:32;not null"`
	Title     string            `gorm:"column:title;size:255"`
	Message   string            `gorm:"column:message;type:text"`
	Data      datatypes.JSONMap `gorm:"column:data"`
	IsRead    bool              `gorm:"column:is_read;not null;default:false"`
	ReadAt    *time.Time        `gorm:"column:read_at"`
	EmailSent bool              `gorm:"column:email_sent;not null;default:false"`
	CreatedAt time.Time         `gorm:"autoCreateTime"`
}

func (Notification) TableName() string {
	return "notifications"
}

// NotificationPreference holds one email and one push flag per notification type.
// Rows are created lazily with every flag enabled.
type NotificationPreference struct {
	UserUID             string    `gorm:"column:user_uid;primaryKey;size:128"`
	EmailNewOrder       bool      `gorm:"not null;default:true"`
	PushNewOrder        bool      `gorm:"not null;default:true"`
	EmailOrderConfirmed bool      `gorm:"not null;default:true"`
	PushOrderConfirmed  bool      `gorm:"not null;default:true"`
	EmailOrderCompleted bool      `gorm:"not null;default:true"`
	PushOrderCompleted  bool      `gorm:"not null;default:true"`
	EmailOrderCancelled bool      `gorm:"not null;default:true"`
	PushOrderCancelled  bool      `gorm:"not null;default:true"`
	EmailNewProduct     bool      `gorm:"not null;default:true"`
	PushNewProduct      bool      `gorm:"not null;default:true"`
	EmailPriceDrop      bool      `gorm:"not null;default:true"`
	PushPriceDrop       bool      `gorm:"not null;default:true"`
	EmailNewReview      bool      `gorm:"not null;default:true"`
	PushNewReview       bool      `gorm:"not null;default:true"`
	EmailNewMessage     bool      `gorm:"not null;default:true"`
	PushNewMessage      bool      `gorm:"not null;default:true"`
	CreatedAt           time.Time `gorm:"autoCreateTime"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime"`
}

func (NotificationPreference) TableName() string {
	return "notification_preferences"
}

func DefaultNotificationPreference(userUID string) NotificationPreference {
	return NotificationPreference{
		UserUID:             userUID,
		EmailNewOrder:       true,
		PushNewOrder:        true,
		EmailOrderConfirmed: true,
		PushOrderConfirmed:  true,
		EmailOrderCompleted: true,
		PushOrderCompleted:  true,
		EmailOrderCancelled: true,
		PushOrderCancelled:  true,
		EmailNewProduct:     true,
		PushNewProduct:      true,
		EmailPriceDrop:      true,
		PushPriceDrop:       true,
		EmailNewReview:      true,
		PushNewReview:       true,
		EmailNewMessage:     true,
		PushNewMessage:      true,
	}
}

// flags maps a notification type to its email and push flag.
// payment_succeeded shares the order_confirmed flags.
func (p *NotificationPreference) flags(t NotificationType) (email, push *bool, ok bool) {
	switch t {
	case NotificationNewOrder:
		return &p.EmailNewOrder, &p.PushNewOrder, true
	case NotificationOrderConfirmed, NotificationPaymentSucceeded:
		return &p.EmailOrderConfirmed, &p.PushOrderConfirmed, true
	case NotificationOrderCompleted:
		return &p.EmailOrderCompleted, &p.PushOrderCompleted, true
	case NotificationOrderCancelled:
		return &p.EmailOrderCancelled, &p.PushOrderCancelled, true
	case NotificationNewProduct:
		return &p.EmailNewProduct, &p.PushNewProduct, true
	case NotificationPriceDrop:
		return &p.EmailPriceDrop, &p.PushPriceDrop, true
	case NotificationNewReview:
		return &p.EmailNewReview, &p.PushNewReview, true
	case NotificationNewMessage:
		return &p.EmailNewMessage, &p.PushNewMessage, true
	}
	return nil, nil, false
}

// Allows reports whether the user accepts notifications of type t on channel ch.
// Unknown types default to allowed.
func (p *NotificationPreference) Allows(t NotificationType, ch Channel) bool {
	email, push, ok := p.flags(t)
	if !ok {
		return true
	}
	if ch == ChannelEmail {
		return *email
	}
	return *push
}

// Set changes one flag and reports whether the type was known.
func (p *NotificationPreference) Set(t NotificationType, ch Channel, enabled bool) bool {
	email, push, ok := p.flags(t)
	if !ok || t == NotificationPaymentSucceeded {
		return false
	}
	if ch == ChannelEmail {
		*email = enabled
	} else {
		*push = enabled
	}
	return true
}

// PreferenceTypes lists the types that own a preference flag pair.
var PreferenceTypes = []NotificationType{
	NotificationNewOrder,
	NotificationOrderConfirmed,
	NotificationOrderCompleted,
	NotificationOrderCancelled,
	NotificationNewProduct,
	NotificationPriceDrop,
	NotificationNewReview,
	NotificationNewMessage,
}
