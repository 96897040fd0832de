package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	iauth "github.com/pulsecheck/pulsecheck/internal/auth"
	"github.com/pulsecheck/pulsecheck/internal/models"
	"github.com/pulsecheck/pulsecheck/pkg/logger"
)

const (
	defaultSessionSpec = "@hourly"
	defaultTokenSpec   = "@daily"
)

// Cleaner coordinates background maintenance tasks: purging expired or
// terminated sessions, dropping revoked refresh-token records that have aged
// out, and expiring stale team invitations.
type Cleaner struct {
	db       *gorm.DB
	sessions *iauth.SessionService
	cron     *cron.Cron
	now      func() time.Time
	log      *zap.Logger
	enabled  bool

	sessionSchedule string
	tokenSchedule   string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for scheduling and cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithSessionSchedule overrides the cron specification for session cleanup.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithTokenSchedule overrides the cron specification for token and invitation cleanup.
func WithTokenSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.tokenSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency results in
// the corresponding cleanup job being skipped.
func NewCleaner(db *gorm.DB, sessions *iauth.SessionService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:              db,
		sessions:        sessions,
		now:             time.Now,
		sessionSchedule: defaultSessionSpec,
		tokenSchedule:   defaultTokenSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.sessions != nil || cleaner.db != nil

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.sessions != nil {
		if _, err := c.cron.AddFunc(c.sessionSchedule, func() {
			ctx := context.Background()
			if _, err := c.sessions.CleanupExpired(ctx); err != nil {
				c.log.Warn("session cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.db != nil {
		if _, err := c.cron.AddFunc(c.tokenSchedule, func() {
			ctx := context.Background()
			if _, err := CleanupTokens(ctx, c.db, c.now()); err != nil {
				c.log.Warn("token cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.sessions != nil {
		if _, err := c.sessions.CleanupExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.db != nil {
		if _, err := CleanupTokens(ctx, c.db, c.now()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// TokenCleanupStats captures the number of records removed per table.
type TokenCleanupStats struct {
	RevokedTokens       int64
	ExpiredInvitations  int64
	ResolvedInvitations int64
}

// CleanupTokens removes aged-out revoked refresh tokens and prunes team
// invitations that expired or were already answered.
func CleanupTokens(ctx context.Context, db *gorm.DB, now time.Time) (TokenCleanupStats, error) {
	if db == nil {
		return TokenCleanupStats{}, errors.New("cleanup tokens: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	stats := TokenCleanupStats{}

	revoked, err := iauth.CleanupRevokedTokens(ctx, db, now)
	if err != nil {
		return stats, fmt.Errorf("cleanup tokens: revoked tokens: %w", err)
	}
	stats.RevokedTokens = revoked

	if result := db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", models.InvitationStatusPending, now).
		Delete(&models.TeamInvitation{}); result.Error != nil {
		return stats, fmt.Errorf("cleanup tokens: expired invitations: %w", result.Error)
	} else {
		stats.ExpiredInvitations = result.RowsAffected
	}

	if result := db.WithContext(ctx).
		Where("status IN ?", []string{models.InvitationStatusDeclined, models.InvitationStatusCancelled}).
		Delete(&models.TeamInvitation{}); result.Error != nil {
		return stats, fmt.Errorf("cleanup tokens: resolved invitations: %w", result.Error)
	} else {
		stats.ResolvedInvitations = result.RowsAffected
	}

	return stats, nil
}
