package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pulsecheck/pulsecheck/internal/app"
	"github.com/pulsecheck/pulsecheck/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, db *gorm.DB) {
	if !cfg.Monitoring.Health.Enabled {
		r.GET("/health", disabledHealthHandler)
		r.GET("/api/health", disabledHealthHandler)
		return
	}

	check := handlers.Health(db)
	r.GET("/health", check)
	r.GET("/api/health", check)
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}
