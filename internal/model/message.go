package model

import "time"

// Message is a direct message between two users, optionally about an order or product.
type Message struct {
	ID           uint64     `gorm:"primaryKey;autoIncrement"`
	SenderUID    string     `gorm:"column:sender_uid;size:128;index;not null"`
	RecipientUID string     `gorm:"column:recipient_uid;size:128;index;not null"`
	OrderID      *uint64    `gorm:"column:order_id;index"`
	ProductID    *uint64    `gorm:"column:product_id;index"`
	Body         string     `gorm:"type:text;not null"`
	ReadAt       *time.Time `gorm:"column:read_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime"`
}

func (Message) TableName() string {
	return "messages"
}
