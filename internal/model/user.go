package model

import "time"

type UserRole string

const (
	RoleFarmer UserRole = "farmer"
	RoleBuyer  UserRole = "buyer"
	RoleAdmin  UserRole = "admin"
)

// User is keyed by the Firebase UID of the account.
type User struct {
	UID       string    `gorm:"column:uid;primaryKey;size:128"`
	Name      string    `gorm:"size:120;not null"`
	Email     string    `gorm:"size:255;index"`
	Phone     string    `gorm:"size:32"`
	Address   string    `gorm:"type:text"`
	Role      UserRole  `gorm:"size:16;not null;default:buyer"`
	FarmName  string    `gorm:"column:farm_name;size:160"`
	Bio       string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// DisplayName prefers the farm name for farmers.
func (u *User) DisplayName() string {
	switch {
	case u.FarmName != "":
		return u.FarmName
	case u.Name != "":
		return u.Name
	}
	return u.UID
}
