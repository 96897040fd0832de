package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pulsecheck/pulsecheck/internal/api"
	"github.com/pulsecheck/pulsecheck/internal/app"
	"github.com/pulsecheck/pulsecheck/internal/app/maintenance"
	iauth "github.com/pulsecheck/pulsecheck/internal/auth"
	"github.com/pulsecheck/pulsecheck/internal/database"
	"github.com/pulsecheck/pulsecheck/internal/services"
	"github.com/pulsecheck/pulsecheck/pkg/logger"
	"github.com/pulsecheck/pulsecheck/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Sessions *iauth.SessionService
	AuthSvc  *services.AuthService
	TeamSvc  *services.TeamService
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine
}

// bootstrapRuntime initialises the database, services, background jobs, and
// the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	tokens, err := iauth.NewTokenService(cfg.Auth.TokenServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise token service: %w", err)
	}

	authenticator, err := buildAuthenticator(stack, cfg, tokens)
	if err != nil {
		return nil, err
	}

	emailSvc, err := buildEmailService(cfg, log)
	if err != nil {
		return nil, err
	}

	stack.AuthSvc, err = services.NewAuthService(services.AuthServiceConfig{
		DB:            stack.DB,
		Tokens:        tokens,
		Authenticator: authenticator,
		Sessions:      stack.Sessions,
		Emails:        emailSvc,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise auth service: %w", err)
	}

	stack.TeamSvc, err = services.NewTeamService(stack.DB, emailSvc, nil)
	if err != nil {
		return nil, fmt.Errorf("initialise team service: %w", err)
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(stack.DB, stack.Sessions,
			maintenance.WithSessionSchedule(cfg.Maintenance.SessionSchedule),
			maintenance.WithTokenSchedule(cfg.Maintenance.TokenSchedule),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(cfg, api.Deps{
		DB:    stack.DB,
		Auth:  stack.AuthSvc,
		Teams: stack.TeamSvc,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// buildAuthenticator selects the credential scheme from config. Session mode
// also fills stack.Sessions so maintenance and password reset can reach it.
func buildAuthenticator(stack *runtimeStack, cfg *app.Config, tokens *iauth.TokenService) (iauth.Authenticator, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Auth.Mode))
	switch mode {
	case "", iauth.ModeSession:
		sessions, err := iauth.NewSessionService(stack.DB, cfg.Auth.SessionServiceConfig())
		if err != nil {
			return nil, fmt.Errorf("initialise session service: %w", err)
		}
		stack.Sessions = sessions

		authenticator, err := iauth.NewSessionAuthenticator(stack.DB, sessions)
		if err != nil {
			return nil, fmt.Errorf("initialise session authenticator: %w", err)
		}
		return authenticator, nil
	case iauth.ModePair:
		authenticator, err := iauth.NewPairAuthenticator(stack.DB, tokens, cfg.Auth.PairAuthenticatorConfig())
		if err != nil {
			return nil, fmt.Errorf("initialise pair authenticator: %w", err)
		}
		return authenticator, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
}

func buildEmailService(cfg *app.Config, log *zap.Logger) (*services.EmailService, error) {
	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}
	if !cfg.Email.SMTP.Enabled {
		log.Info("smtp disabled; outbound email is skipped")
	}

	emailSvc, err := services.NewEmailService(mailer, cfg.Server.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("initialise email service: %w", err)
	}
	return emailSvc, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logger.WithModule("database").Info("database ready", zap.String("driver", dbCfg.Driver))
	return db, nil
}

// convertDatabaseConfig maps the application config onto the storage layer's
// Config. Unknown drivers pass through so database.Open reports them.
func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	fill := func(src app.DBAuthConfig) {
		dbCfg.Host = strings.TrimSpace(src.Host)
		dbCfg.Port = src.Port
		dbCfg.Name = strings.TrimSpace(src.Database)
		dbCfg.User = strings.TrimSpace(src.Username)
		dbCfg.Password = strings.TrimSpace(src.Password)
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		fill(cfg.Database.Postgres)
	case "mysql":
		fill(cfg.Database.MySQL)
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if err != nil {
		log.Warn("close database", zap.Error(err))
	}
}
