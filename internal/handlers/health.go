package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pulsecheck/pulsecheck/pkg/response"
)

// Health returns a status payload useful for readiness checks. When a
// database handle is supplied the check also pings it.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(requestContext(c))
			}
			if err != nil {
				response.Success(c, http.StatusServiceUnavailable, gin.H{
					"status":   "degraded",
					"database": "unreachable",
				})
				return
			}
		}

		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}
