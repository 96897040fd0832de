package database

import (
	"gorm.io/gorm"

	"github.com/pulsecheck/pulsecheck/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Team{},
		&models.TeamMember{},
		&models.TeamInvitation{},
		&models.RevokedToken{},
	)
}
