package model

import "time"

type Follow struct {
	FollowerUID string    `gorm:"column:follower_uid;size:128;primaryKey"`
	FarmerUID   string    `gorm:"column:farmer_uid;size:128;primaryKey;index"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (Follow) TableName() string {
	return "follows"
}
