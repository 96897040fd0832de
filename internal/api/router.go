package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/pulsecheck/pulsecheck/internal/app"
	"github.com/pulsecheck/pulsecheck/internal/handlers"
	"github.com/pulsecheck/pulsecheck/internal/middleware"
	"github.com/pulsecheck/pulsecheck/internal/services"
)

// Deps bundles the services the router mounts handlers on.
type Deps struct {
	DB    *gorm.DB
	Auth  *services.AuthService
	Teams *services.TeamService
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(cfg *app.Config, deps Deps) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service must be provided")
	}
	if deps.Teams == nil {
		return nil, fmt.Errorf("team service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	registerHealthRoutes(r, cfg, deps.DB)

	authHandler := handlers.NewAuthHandler(deps.Auth)
	teamHandler := handlers.NewTeamHandler(deps.Teams)

	requireAuth := middleware.Auth(deps.Auth)

	registerAuthRoutes(r, authHandler, requireAuth)

	api := r.Group("/api")
	api.Use(requireAuth)
	registerTeamRoutes(api, teamHandler)

	// Metrics endpoint
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
