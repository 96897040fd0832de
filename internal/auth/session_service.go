package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/pulsecheck/pulsecheck/internal/models"
	"github.com/pulsecheck/pulsecheck/pkg/crypto"
	"github.com/pulsecheck/pulsecheck/pkg/metrics"
)

// Session token lifetimes. Extended lifetimes apply when the client asked to
// stay signed in.
const (
	DefaultSessionTTL  = 7 * 24 * time.Hour
	ExtendedSessionTTL = 30 * 24 * time.Hour

	// sessionTokenLength is the number of random bytes in a session token,
	// base64url-encoded before storage. 32 bytes gives 256 bits of entropy.
	sessionTokenLength = 32
)

var (
	// ErrSessionNotFound indicates that no session matches the provided token.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionInactive marks a session that was terminated by logout.
	ErrSessionInactive = errors.New("session: inactive")
	// ErrSessionExpired signals that the session has reached its expiry.
	ErrSessionExpired = errors.New("session: expired")
)

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	SessionTTL  time.Duration
	ExtendedTTL time.Duration
	Clock       func() time.Time
}

// SessionMetadata captures contextual information about the client.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
}

// SessionService manages creation, validation, and termination of
// server-side sessions. Tokens are opaque random strings; the database row
// is the source of truth for liveness.
type SessionService struct {
	db          *gorm.DB
	ttl         time.Duration
	extendedTTL time.Duration
	now         func() time.Time
}

// NewSessionService constructs a session manager backed by the provided database.
func NewSessionService(db *gorm.DB, cfg SessionConfig) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session service: db is required")
	}

	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	extended := cfg.ExtendedTTL
	if extended <= 0 {
		extended = ExtendedSessionTTL
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &SessionService{
		db:          db,
		ttl:         ttl,
		extendedTTL: extended,
		now:         clock,
	}, nil
}

// Create opens a new session for the user and returns the persisted row,
// including the freshly generated token.
func (s *SessionService) Create(ctx context.Context, userID string, meta SessionMetadata, extended bool) (*models.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("session service: user id is required")
	}

	token, err := crypto.GenerateToken(sessionTokenLength)
	if err != nil {
		return nil, fmt.Errorf("session service: generate token: %w", err)
	}

	now := s.now()
	ttl := s.ttl
	if extended {
		ttl = s.extendedTTL
	}

	session := &models.Session{
		UserID:       userID,
		Token:        token,
		IsActive:     true,
		IPAddress:    strings.TrimSpace(meta.IPAddress),
		UserAgent:    strings.TrimSpace(meta.UserAgent),
		ExpiresAt:    now.Add(ttl),
		LastActiveAt: now,
	}

	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("session service: create session: %w", err)
	}

	metrics.ActiveSessions.Inc()

	return session, nil
}

// Validate resolves a token to its session, enforcing liveness and expiry,
// and touches last_active_at as a side effect.
func (s *SessionService) Validate(ctx context.Context, token string) (*models.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrSessionNotFound
	}

	var session models.Session
	err := s.db.WithContext(ctx).Where("token = ?", token).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session service: find session: %w", err)
	}

	if !session.IsActive {
		return nil, ErrSessionInactive
	}

	now := s.now()
	if !session.ExpiresAt.After(now) {
		return nil, ErrSessionExpired
	}

	if err := s.db.WithContext(ctx).Model(&session).Update("last_active_at", now).Error; err != nil {
		return nil, fmt.Errorf("session service: touch session: %w", err)
	}
	session.LastActiveAt = now

	return &session, nil
}

// Terminate deactivates the session identified by token. Terminating an
// already inactive or unknown session is a no-op, so logout stays
// idempotent.
func (s *SessionService) Terminate(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}

	now := s.now()

	result := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("token = ? AND is_active = ?", token, true).
		Updates(map[string]any{
			"is_active":  false,
			"revoked_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("session service: terminate session: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	}

	return nil
}

// TerminateUserSessions deactivates every active session belonging to a
// user. Used after a password reset.
func (s *SessionService) TerminateUserSessions(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, errors.New("session service: user id is required")
	}

	now := s.now()

	result := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Updates(map[string]any{
			"is_active":  false,
			"revoked_at": now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("session service: terminate user sessions: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	}

	return result.RowsAffected, nil
}

// CleanupExpired deletes sessions that have expired or been deactivated.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	now := s.now()

	var activeExpired int64
	if err := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("expires_at < ? AND is_active = ?", now, true).
		Count(&activeExpired).Error; err != nil {
		return 0, fmt.Errorf("session service: count expired sessions: %w", err)
	}

	result := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Or("is_active = ?", false).
		Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("session service: cleanup expired sessions: %w", result.Error)
	}

	if activeExpired > 0 {
		metrics.ActiveSessions.Sub(float64(activeExpired))
	}

	return result.RowsAffected, nil
}
