package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an account holder. Email and username are matched exactly as
// persisted; no case normalisation is applied anywhere.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Password string `gorm:"not null" json:"-"`

	FullName string `json:"full_name"`

	IsActive    bool `gorm:"default:true" json:"is_active"`
	IsVerified  bool `gorm:"default:false" json:"is_verified"`
	IsSuperuser bool `gorm:"default:false" json:"is_superuser"`

	Sessions    []Session    `gorm:"foreignKey:UserID" json:"-"`
	Memberships []TeamMember `gorm:"foreignKey:UserID" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
