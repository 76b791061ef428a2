package repository

import (
	"context"

	"github.com/shinyyama/farm-market-backend/internal/model"
	"gorm.io/gorm"
)

type PreferenceRepository interface {
	// Get returns the user's preferences, creating the all-enabled row on first use.
	Get(ctx context.Context, userUID string) (*model.NotificationPreference, error)
	Save(ctx context.Context, p *model.NotificationPreference) error
}

type preferenceRepository struct {
	db *gorm.DB
}

func NewPreferenceRepository(db *gorm.DB) PreferenceRepository {
	return &preferenceRepository{db: db}
}

func (r *preferenceRepository) Get(ctx context.Context, userUID string) (*model.NotificationPreference, error) {
	var p model.NotificationPreference
	err := r.db.WithContext(ctx).
		Where("user_uid = ?", userUID).
		Attrs(model.DefaultNotificationPreference(userUID)).
		FirstOrCreate(&p).Error
	if IsDuplicate(err) {
		// lost the insert race with another worker; the row exists now
		p = model.NotificationPreference{}
		err = r.db.WithContext(ctx).Where("user_uid = ?", userUID).First(&p).Error
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Save writes every flag, including false ones.
func (r *preferenceRepository) Save(ctx context.Context, p *model.NotificationPreference) error {
	return r.db.WithContext(ctx).Save(p).Error
}
