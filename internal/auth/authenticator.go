package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pulsecheck/pulsecheck/internal/database"
	"github.com/pulsecheck/pulsecheck/internal/models"
)

// Authentication modes selectable via configuration.
const (
	ModeSession = "session"
	ModePair    = "pair"
)

// Refresh rotation policies for ModePair. Under RotationRotate a used
// refresh token simply stops being presented by well-behaved clients; under
// RotationRotateAndRevoke it is additionally recorded server-side and
// rejected on reuse.
const (
	RotationRotate          = "rotate"
	RotationRotateAndRevoke = "rotate_and_revoke"
)

// ErrRefreshUnsupported is returned by authenticators that have no refresh
// operation.
var ErrRefreshUnsupported = errors.New("auth: refresh not supported in session mode")

// ErrTokenRevoked marks a refresh token that was rotated out or withdrawn.
var ErrTokenRevoked = errors.New("auth: token revoked")

// Credentials is what a successful login hands back to the client. Session
// mode fills SessionToken; pair mode fills AccessToken and RefreshToken.
type Credentials struct {
	SessionToken string    `json:"session_token,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Authenticator abstracts how login credentials are issued, validated, and
// retired, so the rest of the application is indifferent to the mechanism.
type Authenticator interface {
	Issue(ctx context.Context, user *models.User, meta SessionMetadata, extended bool) (*Credentials, error)
	Validate(ctx context.Context, token string) (*models.User, error)
	Refresh(ctx context.Context, refreshToken string) (*Credentials, error)
	Logout(ctx context.Context, token string) error
}

// SessionAuthenticator implements Authenticator on top of server-side
// sessions. This is the default mode.
type SessionAuthenticator struct {
	db       *gorm.DB
	sessions *SessionService
}

// NewSessionAuthenticator wires the session-backed authenticator.
func NewSessionAuthenticator(db *gorm.DB, sessions *SessionService) (*SessionAuthenticator, error) {
	if db == nil {
		return nil, errors.New("auth: db is required")
	}
	if sessions == nil {
		return nil, errors.New("auth: session service is required")
	}
	return &SessionAuthenticator{db: db, sessions: sessions}, nil
}

func (a *SessionAuthenticator) Issue(ctx context.Context, user *models.User, meta SessionMetadata, extended bool) (*Credentials, error) {
	if user == nil {
		return nil, errors.New("auth: user is required")
	}

	session, err := a.sessions.Create(ctx, user.ID, meta, extended)
	if err != nil {
		return nil, err
	}

	return &Credentials{
		SessionToken: session.Token,
		TokenType:    "session",
		ExpiresAt:    session.ExpiresAt,
	}, nil
}

func (a *SessionAuthenticator) Validate(ctx context.Context, token string) (*models.User, error) {
	session, err := a.sessions.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := a.db.WithContext(ctx).Take(&user, "id = ?", session.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("auth: load session user: %w", err)
	}

	if !user.IsActive {
		return nil, ErrSessionInactive
	}

	return &user, nil
}

func (a *SessionAuthenticator) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	return nil, ErrRefreshUnsupported
}

func (a *SessionAuthenticator) Logout(ctx context.Context, token string) error {
	return a.sessions.Terminate(ctx, token)
}

// Token-pair lifetimes.
const (
	DefaultAccessTTL   = time.Hour
	ExtendedAccessTTL  = 7 * 24 * time.Hour
	DefaultRefreshTTL  = 7 * 24 * time.Hour
	ExtendedRefreshTTL = 30 * 24 * time.Hour
)

// PairConfig describes tunable behaviour for the PairAuthenticator.
type PairConfig struct {
	AccessTTL          time.Duration
	ExtendedAccessTTL  time.Duration
	RefreshTTL         time.Duration
	ExtendedRefreshTTL time.Duration
	RotationPolicy     string
	Clock              func() time.Time
}

// PairAuthenticator implements Authenticator with a JWT access/refresh
// token pair. Tokens carry the user's email as subject.
type PairAuthenticator struct {
	db          *gorm.DB
	tokens      *TokenService
	accessTTL   time.Duration
	extAccess   time.Duration
	refreshTTL  time.Duration
	extRefresh  time.Duration
	revokeOnUse bool
	now         func() time.Time
}

// NewPairAuthenticator wires the token-pair authenticator.
func NewPairAuthenticator(db *gorm.DB, tokens *TokenService, cfg PairConfig) (*PairAuthenticator, error) {
	if db == nil {
		return nil, errors.New("auth: db is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}

	switch cfg.RotationPolicy {
	case "", RotationRotate, RotationRotateAndRevoke:
	default:
		return nil, fmt.Errorf("auth: unknown rotation policy %q", cfg.RotationPolicy)
	}

	a := &PairAuthenticator{
		db:          db,
		tokens:      tokens,
		accessTTL:   cfg.AccessTTL,
		extAccess:   cfg.ExtendedAccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		extRefresh:  cfg.ExtendedRefreshTTL,
		revokeOnUse: cfg.RotationPolicy == RotationRotateAndRevoke,
		now:         cfg.Clock,
	}

	if a.accessTTL <= 0 {
		a.accessTTL = DefaultAccessTTL
	}
	if a.extAccess <= 0 {
		a.extAccess = ExtendedAccessTTL
	}
	if a.refreshTTL <= 0 {
		a.refreshTTL = DefaultRefreshTTL
	}
	if a.extRefresh <= 0 {
		a.extRefresh = ExtendedRefreshTTL
	}
	if a.now == nil {
		a.now = time.Now
	}

	return a, nil
}

func (a *PairAuthenticator) Issue(ctx context.Context, user *models.User, meta SessionMetadata, extended bool) (*Credentials, error) {
	if user == nil {
		return nil, errors.New("auth: user is required")
	}

	accessTTL, refreshTTL := a.accessTTL, a.refreshTTL
	if extended {
		accessTTL, refreshTTL = a.extAccess, a.extRefresh
	}

	access, err := a.tokens.Issue(user.Email, TokenTypeAccess, accessTTL)
	if err != nil {
		return nil, err
	}

	refresh, err := a.tokens.Issue(user.Email, TokenTypeRefresh, refreshTTL)
	if err != nil {
		return nil, err
	}

	return &Credentials{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    a.now().Add(accessTTL),
	}, nil
}

func (a *PairAuthenticator) Validate(ctx context.Context, token string) (*models.User, error) {
	email, err := a.tokens.Verify(token, TokenTypeAccess)
	if err != nil {
		return nil, err
	}
	return a.lookupUser(ctx, email)
}

// Refresh verifies the presented refresh token and issues a fresh pair.
// Under the rotate_and_revoke policy the old token is recorded server-side
// and any replay of it fails.
func (a *PairAuthenticator) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	email, err := a.tokens.Verify(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	if a.revokeOnUse {
		hash := hashToken(refreshToken)

		var count int64
		if err := a.db.WithContext(ctx).Model(&models.RevokedToken{}).
			Where("token_hash = ?", hash).
			Count(&count).Error; err != nil {
			return nil, fmt.Errorf("auth: check revocation: %w", err)
		}
		if count > 0 {
			return nil, ErrTokenRevoked
		}
	}

	user, err := a.lookupUser(ctx, email)
	if err != nil {
		return nil, err
	}

	creds, err := a.Issue(ctx, user, SessionMetadata{}, false)
	if err != nil {
		return nil, err
	}

	if a.revokeOnUse {
		if err := a.revoke(ctx, user.ID, refreshToken); err != nil {
			return nil, err
		}
	}

	return creds, nil
}

// Logout retires the presented refresh token. Logout is idempotent: an
// invalid, expired, or already revoked token has nothing left to retire, so
// it succeeds without effect.
func (a *PairAuthenticator) Logout(ctx context.Context, token string) error {
	if !a.revokeOnUse {
		return nil
	}

	email, err := a.tokens.Verify(token, TokenTypeRefresh)
	if err != nil {
		return nil
	}

	user, err := a.lookupUser(ctx, email)
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			return nil
		}
		return err
	}

	return a.revoke(ctx, user.ID, token)
}

func (a *PairAuthenticator) lookupUser(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := a.db.WithContext(ctx).Take(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("auth: load token user: %w", err)
	}

	if !user.IsActive {
		return nil, ErrTokenInvalid
	}

	return &user, nil
}

func (a *PairAuthenticator) revoke(ctx context.Context, userID, token string) error {
	record := &models.RevokedToken{
		TokenHash: hashToken(token),
		UserID:    userID,
		ExpiresAt: a.now().Add(a.extRefresh),
	}

	err := a.db.WithContext(ctx).Create(record).Error
	if database.IsUniqueViolation(err) {
		return nil // already revoked
	}
	if err != nil {
		return fmt.Errorf("auth: record revocation: %w", err)
	}
	return nil
}

// CleanupRevokedTokens deletes revocation records whose tokens have expired
// on their own.
func CleanupRevokedTokens(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.RevokedToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("auth: cleanup revoked tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
