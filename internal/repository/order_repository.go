package repository

import (
	"context"

	"github.com/shinyyama/farm-market-backend/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderFilter struct {
	BuyerUID  string
	FarmerUID string
	Status    model.OrderStatus
	Limit     int
	Offset    int
}

type OrderRepository interface {
	Create(ctx context.Context, o *model.Order) error
	FindByID(ctx context.Context, id uint64) (*model.Order, error)
	FindByIDForUpdate(ctx context.Context, id uint64) (*model.Order, error)
	FindByPaymentIntent(ctx context.Context, intentID string) (*model.Order, error)
	TransitionStatus(ctx context.Context, id uint64, from model.OrderStatus, fields map[string]interface{}) error
	Update(ctx context.Context, id uint64, fields map[string]interface{}) error
	AppendHistory(ctx context.Context, ev *model.OrderStatusEvent) error
	History(ctx context.Context, orderID uint64) ([]model.OrderStatusEvent, error)
	List(ctx context.Context, f OrderFilter) ([]model.Order, int64, error)
	CountByProduct(ctx context.Context, productID uint64) (int64, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create inserts the order together with any seeded history entries.
func (r *orderRepository) Create(ctx context.Context, o *model.Order) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *orderRepository) FindByID(ctx context.Context, id uint64) (*model.Order, error) {
	var o model.Order
	if err := r.db.WithContext(ctx).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&o, id).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) FindByIDForUpdate(ctx context.Context, id uint64) (*model.Order, error) {
	var o model.Order
	if err := r.db.WithContext(ctx).Clauses(forUpdate()).First(&o, id).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) FindByPaymentIntent(ctx context.Context, intentID string) (*model.Order, error) {
	var o model.Order
	if err := r.db.WithContext(ctx).
		Clauses(forUpdate()).
		Where("payment_intent_id = ?", intentID).
		First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// TransitionStatus writes fields only while the order is still in status from.
func (r *orderRepository) TransitionStatus(ctx context.Context, id uint64, from model.OrderStatus, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleWrite
	}
	return nil
}

func (r *orderRepository) Update(ctx context.Context, id uint64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", id).
		Omit(clause.Associations).
		Updates(fields).Error
}

func (r *orderRepository) AppendHistory(ctx context.Context, ev *model.OrderStatusEvent) error {
	return r.db.WithContext(ctx).Create(ev).Error
}

func (r *orderRepository) History(ctx context.Context, orderID uint64) ([]model.OrderStatusEvent, error) {
	var list []model.OrderStatusEvent
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *orderRepository) List(ctx context.Context, f OrderFilter) ([]model.Order, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Order{})
	if f.BuyerUID != "" && f.FarmerUID != "" {
		q = q.Where("buyer_uid = ? OR farmer_uid = ?", f.BuyerUID, f.FarmerUID)
	} else if f.BuyerUID != "" {
		q = q.Where("buyer_uid = ?", f.BuyerUID)
	} else if f.FarmerUID != "" {
		q = q.Where("farmer_uid = ?", f.FarmerUID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.Order
	if err := q.Order("id DESC").Limit(f.Limit).Offset(f.Offset).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *orderRepository) CountByProduct(ctx context.Context, productID uint64) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Order{}).Where("product_id = ?", productID).Count(&cnt).Error
	return cnt, err
}
