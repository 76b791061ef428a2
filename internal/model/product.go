package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusSoldOut  ProductStatus = "sold_out"
	ProductStatusInactive ProductStatus = "inactive"
)

type Product struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement"`
	FarmerUID   string          `gorm:"column:farmer_uid;size:128;index;not null"`
	Name        string          `gorm:"size:160;not null"`
	Description string          `gorm:"type:text"`
	Category    string          `gorm:"size:64;index"`
	Unit        string          `gorm:"size:32;not null;default:unit"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Quantity    int             `gorm:"not null;default:0"`
	Status      ProductStatus   `gorm:"size:16;not null;index"`
	Approved    bool            `gorm:"not null;default:false"`
	Organic     bool            `gorm:"not null;default:false"`
	HarvestDate *time.Time      `gorm:"column:harvest_date"`
	Location    string          `gorm:"size:160"`
	ImageURL    *string         `gorm:"column:image_url;size:512"`
	CreatedAt   time.Time       `gorm:"autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime"`
}

func (Product) TableName() string {
	return "products"
}

// Orderable reports whether buyers may place orders against the listing.
func (p *Product) Orderable() bool {
	return p.Status == ProductStatusActive && p.Approved
}

// StockStatus returns the status implied by a stock level, leaving inactive listings alone.
func (p *Product) StockStatus(quantity int) ProductStatus {
	switch {
	case p.Status == ProductStatusInactive:
		return ProductStatusInactive
	case quantity <= 0:
		return ProductStatusSoldOut
	default:
		return ProductStatusActive
	}
}
