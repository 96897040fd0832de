package models

import "time"

// RevokedToken records a refresh token withdrawn before its natural expiry.
// Only the SHA-256 hash of the token is stored. Rows become garbage once
// ExpiresAt passes, since the token would no longer verify anyway.
type RevokedToken struct {
	BaseModel

	TokenHash string    `gorm:"uniqueIndex;not null" json:"-"`
	UserID    string    `gorm:"type:uuid;not null;index" json:"user_id"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}
