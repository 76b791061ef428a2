package repository

import (
	"context"

	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WishlistRepository interface {
	Add(ctx context.Context, item *model.WishlistItem) (*model.WishlistItem, error)
	Remove(ctx context.Context, userUID string, productID uint64) (int64, error)
	ListByUser(ctx context.Context, userUID string) ([]model.WishlistItem, error)
	SetAlert(ctx context.Context, userUID string, productID uint64, enabled bool) (int64, error)
	// PriceDropCandidates lists alert-enabled entries whose recorded price is above newPrice.
	PriceDropCandidates(ctx context.Context, productID uint64, newPrice decimal.Decimal) ([]model.WishlistItem, error)
	UpdateRecordedPrice(ctx context.Context, id uint64, price decimal.Decimal) error
}

type wishlistRepository struct {
	db *gorm.DB
}

func NewWishlistRepository(db *gorm.DB) WishlistRepository {
	return &wishlistRepository{db: db}
}

// Add keeps an existing entry untouched so its recorded price survives re-adds.
func (r *wishlistRepository) Add(ctx context.Context, item *model.WishlistItem) (*model.WishlistItem, error) {
	var out model.WishlistItem
	if err := r.db.WithContext(ctx).
		Where(model.WishlistItem{UserUID: item.UserUID, ProductID: item.ProductID}).
		Attrs(model.WishlistItem{RecordedPrice: item.RecordedPrice, PriceDropAlert: true}).
		FirstOrCreate(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *wishlistRepository) Remove(ctx context.Context, userUID string, productID uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_uid = ? AND product_id = ?", userUID, productID).
		Delete(&model.WishlistItem{})
	return res.RowsAffected, res.Error
}

func (r *wishlistRepository) ListByUser(ctx context.Context, userUID string) ([]model.WishlistItem, error) {
	var list []model.WishlistItem
	if err := r.db.WithContext(ctx).
		Where("user_uid = ?", userUID).
		Order("id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// SetAlert reports 1 whenever the entry exists, even if the flag already had
// the requested value, and 0 when there is no such entry.
func (r *wishlistRepository) SetAlert(ctx context.Context, userUID string, productID uint64, enabled bool) (int64, error) {
	var item model.WishlistItem
	if err := r.db.WithContext(ctx).
		Where("user_uid = ? AND product_id = ?", userUID, productID).
		First(&item).Error; err != nil {
		if IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	if item.PriceDropAlert == enabled {
		return 1, nil
	}
	if err := r.db.WithContext(ctx).
		Model(&model.WishlistItem{}).
		Where("id = ?", item.ID).
		Update("price_drop_alert", enabled).Error; err != nil {
		return 0, err
	}
	return 1, nil
}

func (r *wishlistRepository) PriceDropCandidates(ctx context.Context, productID uint64, newPrice decimal.Decimal) ([]model.WishlistItem, error) {
	var list []model.WishlistItem
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND price_drop_alert = ? AND recorded_price > ?", productID, true, newPrice).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *wishlistRepository) UpdateRecordedPrice(ctx context.Context, id uint64, price decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&model.WishlistItem{}).
		Where("id = ?", id).
		Update("recorded_price", price).Error
}

type FollowRepository interface {
	Follow(ctx context.Context, followerUID, farmerUID string) error
	Unfollow(ctx context.Context, followerUID, farmerUID string) (int64, error)
	Followers(ctx context.Context, farmerUID string) ([]string, error)
	Following(ctx context.Context, followerUID string) ([]model.Follow, error)
	CountFollowers(ctx context.Context, farmerUID string) (int64, error)
}

type followRepository struct {
	db *gorm.DB
}

func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db}
}

func (r *followRepository) Follow(ctx context.Context, followerUID, farmerUID string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Follow{FollowerUID: followerUID, FarmerUID: farmerUID}).Error
}

func (r *followRepository) Unfollow(ctx context.Context, followerUID, farmerUID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("follower_uid = ? AND farmer_uid = ?", followerUID, farmerUID).
		Delete(&model.Follow{})
	return res.RowsAffected, res.Error
}

func (r *followRepository) Followers(ctx context.Context, farmerUID string) ([]string, error) {
	var uids []string
	if err := r.db.WithContext(ctx).
		Model(&model.Follow{}).
		Where("farmer_uid = ?", farmerUID).
		Order("follower_uid ASC").
		Pluck("follower_uid", &uids).Error; err != nil {
		return nil, err
	}
	return uids, nil
}

func (r *followRepository) Following(ctx context.Context, followerUID string) ([]model.Follow, error) {
	var list []model.Follow
	if err := r.db.WithContext(ctx).
		Where("follower_uid = ?", followerUID).
		Order("created_at DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *followRepository) CountFollowers(ctx context.Context, farmerUID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Follow{}).Where("farmer_uid = ?", farmerUID).Count(&cnt).Error
	return cnt, err
}

// RatingSummary is the average rating and review count of a product or farmer.
type RatingSummary struct {
	Average float64
	Count   int64
}

type ReviewRepository interface {
	Create(ctx context.Context, rv *model.Review) error
	FindByOrder(ctx context.Context, orderID uint64) (*model.Review, error)
	ListByProduct(ctx context.Context, productID uint64, limit, offset int) ([]model.Review, error)
	ListByFarmer(ctx context.Context, farmerUID string, limit, offset int) ([]model.Review, error)
	SummaryForProduct(ctx context.Context, productID uint64) (RatingSummary, error)
	SummaryForFarmer(ctx context.Context, farmerUID string) (RatingSummary, error)
}

type reviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

func (r *reviewRepository) Create(ctx context.Context, rv *model.Review) error {
	return r.db.WithContext(ctx).Create(rv).Error
}

func (r *reviewRepository) FindByOrder(ctx context.Context, orderID uint64) (*model.Review, error) {
	var rv model.Review
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&rv).Error; err != nil {
		return nil, err
	}
	return &rv, nil
}

func (r *reviewRepository) ListByProduct(ctx context.Context, productID uint64, limit, offset int) ([]model.Review, error) {
	return r.list(ctx, r.db.Where("product_id = ?", productID), limit, offset)
}

func (r *reviewRepository) ListByFarmer(ctx context.Context, farmerUID string, limit, offset int) ([]model.Review, error) {
	return r.list(ctx, r.db.Where("farmer_uid = ?", farmerUID), limit, offset)
}

func (r *reviewRepository) list(ctx context.Context, q *gorm.DB, limit, offset int) ([]model.Review, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var list []model.Review
	if err := q.WithContext(ctx).Order("id DESC").Limit(limit).Offset(offset).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *reviewRepository) SummaryForProduct(ctx context.Context, productID uint64) (RatingSummary, error) {
	return r.summary(ctx, "product_id = ?", productID)
}

func (r *reviewRepository) SummaryForFarmer(ctx context.Context, farmerUID string) (RatingSummary, error) {
	return r.summary(ctx, "farmer_uid = ?", farmerUID)
}

func (r *reviewRepository) summary(ctx context.Context, where string, arg interface{}) (RatingSummary, error) {
	var s RatingSummary
	err := r.db.WithContext(ctx).
		Model(&model.Review{}).
		Select("COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count").
		Where(where, arg).
		Scan(&s).Error
	return s, err
}

type WebhookEventRepository interface {
	// MarkProcessed records eventID and reports false if it was already recorded.
	MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error)
}

type webhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.PaymentWebhookEvent{EventID: eventID, EventType: eventType})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
