package services

import "github.com/pulsecheck/pulsecheck/internal/database"

// isUniqueConstraintError reports whether err is a uniqueness violation
// from any supported driver.
func isUniqueConstraintError(err error) bool {
	return database.IsUniqueViolation(err)
}
