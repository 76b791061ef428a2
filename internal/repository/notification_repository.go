package repository

import (
	"context"

	"github.com/shinyyama/farm-market-backend/internal/model"
	"gorm.io/gorm"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByUser(ctx context.Context, userUID string, unreadOnly bool, limit, offset int) ([]model.Notification, error)
	CountUnread(ctx context.Context, userUID string) (int64, error)
	MarkRead(ctx context.Context, userUID string, id uint64) (int64, error)
	MarkAllRead(ctx context.Context, userUID string) (int64, error)
	MarkEmailSent(ctx context.Context, id uint64) error
	Delete(ctx context.Context, userUID string, id uint64) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepository) ListByUser(ctx context.Context, userUID string, unreadOnly bool, limit, offset int) ([]model.Notification, error) {
	var list []model.Notification
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := r.db.WithContext(ctx).Model(&model.Notification{}).Where("user_uid = ?", userUID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, userUID string) (int64, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("user_uid = ? AND is_read = ?", userUID, false).
		Count(&cnt).Error; err != nil {
		return 0, err
	}
	return cnt, nil
}

// MarkRead returns 0 when the notification does not exist or belongs to someone else.
// An already-read notification keeps its original read_at.
func (r *notificationRepository) MarkRead(ctx context.Context, userUID string, id uint64) (int64, error) {
	var n model.Notification
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_uid = ?", id, userUID).
		First(&n).Error; err != nil {
		if IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	if n.IsRead {
		return 1, nil
	}
	res := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ? AND user_uid = ?", id, userUID).
		Updates(map[string]interface{}{"is_read": true, "read_at": r.db.NowFunc()})
	return res.RowsAffected, res.Error
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userUID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("user_uid = ? AND is_read = ?", userUID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": r.db.NowFunc()})
	return res.RowsAffected, res.Error
}

func (r *notificationRepository) MarkEmailSent(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ?", id).
		Update("email_sent", true).Error
}

func (r *notificationRepository) Delete(ctx context.Context, userUID string, id uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_uid = ?", id, userUID).
		Delete(&model.Notification{})
	return res.RowsAffected, res.Error
}
