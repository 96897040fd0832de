package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pulsecheck/pulsecheck/internal/auth"
	"github.com/pulsecheck/pulsecheck/internal/models"
	"github.com/pulsecheck/pulsecheck/pkg/crypto"
	apperrors "github.com/pulsecheck/pulsecheck/pkg/errors"
	"github.com/pulsecheck/pulsecheck/pkg/logger"
	"github.com/pulsecheck/pulsecheck/pkg/metrics"
)

// Mail token lifetimes.
const (
	VerificationTokenTTL  = 24 * time.Hour
	PasswordResetTokenTTL = 30 * time.Minute
)

// RegisterInput captures a new account request. Email and username are
// stored exactly as given.
type RegisterInput struct {
	Email    string
	Username string
	Password string
	FullName string
}

// RegisterResult reports the created user and whether the verification
// email went out. Delivery failure does not fail registration.
type RegisterResult struct {
	User             *models.User
	VerificationSent bool
}

// LoginInput carries login credentials plus client context. Extended asks
// for the long-lived credential lifetime.
type LoginInput struct {
	Email    string
	Password string
	Extended bool
	Meta     auth.SessionMetadata
}

// LoginResult bundles the authenticated user with their new credentials.
type LoginResult struct {
	User        *models.User
	Credentials *auth.Credentials
}

// AuthService implements the account lifecycle: registration, email
// verification, login, credential validation, and password reset.
type AuthService struct {
	db            *gorm.DB
	tokens        *auth.TokenService
	authenticator auth.Authenticator
	sessions      *auth.SessionService
	emails        *EmailService
	log           *zap.Logger
	now           func() time.Time
}

// AuthServiceConfig bundles the dependencies of AuthService. Sessions may be
// nil when running in pair mode.
type AuthServiceConfig struct {
	DB            *gorm.DB
	Tokens        *auth.TokenService
	Authenticator auth.Authenticator
	Sessions      *auth.SessionService
	Emails        *EmailService
	Clock         func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(cfg AuthServiceConfig) (*AuthService, error) {
	if cfg.DB == nil {
		return nil, errors.New("auth service: db is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("auth service: token service is required")
	}
	if cfg.Authenticator == nil {
		return nil, errors.New("auth service: authenticator is required")
	}
	if cfg.Emails == nil {
		return nil, errors.New("auth service: email service is required")
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &AuthService{
		db:            cfg.DB,
		tokens:        cfg.Tokens,
		authenticator: cfg.Authenticator,
		sessions:      cfg.Sessions,
		emails:        cfg.Emails,
		log:           logger.WithModule("auth"),
		now:           now,
	}, nil
}

// Register creates an unverified account and sends the verification email.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	ctx = ensureContext(ctx)

	email := strings.TrimSpace(input.Email)
	username := strings.TrimSpace(input.Username)
	if email == "" || username == "" || input.Password == "" {
		return nil, apperrors.NewBadRequest("email, username and password are required")
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth service: hash password: %w", err)
	}

	user := &models.User{
		Email:      email,
		Username:   username,
		Password:   hash,
		FullName:   strings.TrimSpace(input.FullName),
		IsActive:   true,
		IsVerified: false,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, s.classifyDuplicate(ctx, email, username)
		}
		return nil, fmt.Errorf("auth service: create user: %w", err)
	}

	token, err := s.tokens.Issue(user.Email, auth.TokenTypeEmailVerification, VerificationTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("auth service: issue verification token: %w", err)
	}

	sent := s.emails.SendVerificationEmail(ctx, user.Email, token)

	s.log.Info("user registered",
		zap.String("user_id", user.ID),
		zap.Bool("verification_sent", sent),
	)

	return &RegisterResult{User: user, VerificationSent: sent}, nil
}

// classifyDuplicate decides which unique constraint fired on registration.
// The re-query is needed because driver errors do not name the column
// consistently across sqlite, postgres, and mysql.
func (s *AuthService) classifyDuplicate(ctx context.Context, email, username string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ?", email).
		Count(&count).Error; err == nil && count > 0 {
		return apperrors.ErrDuplicateEmail
	}
	return apperrors.ErrDuplicateUsername
}

// RequestVerification re-sends the verification email. Unknown addresses
// report NotFound; an already verified account is a no-op success with
// nothing sent.
func (s *AuthService) RequestVerification(ctx context.Context, email string) (bool, error) {
	ctx = ensureContext(ctx)

	user, err := s.findUserByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, apperrors.ErrNotFound
	}
	if user.IsVerified {
		return false, nil
	}

	token, err := s.tokens.Issue(user.Email, auth.TokenTypeEmailVerification, VerificationTokenTTL)
	if err != nil {
		return false, fmt.Errorf("auth service: issue verification token: %w", err)
	}

	return s.emails.SendVerificationEmail(ctx, user.Email, token), nil
}

// VerifyEmail marks the account named by the token as verified. Verifying
// an already verified account succeeds without side effects; a valid token
// whose account has since disappeared reports NotFound.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	ctx = ensureContext(ctx)

	email, err := s.tokens.Verify(token, auth.TokenTypeEmailVerification)
	if err != nil {
		return mapTokenError(err)
	}

	user, err := s.findUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return apperrors.ErrNotFound
	}

	if user.IsVerified {
		return nil
	}

	if err := s.db.WithContext(ctx).Model(user).Update("is_verified", true).Error; err != nil {
		return fmt.Errorf("auth service: mark verified: %w", err)
	}

	s.log.Info("email verified", zap.String("user_id", user.ID))
	return nil
}

// Authenticate checks the email/password pair. The email must match as
// persisted; verification status is only reported when the password is
// otherwise correct, so it leaks nothing to a guesser.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.findUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	if !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	if !user.IsVerified {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrEmailNotVerified
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(user).Update("last_login_at", now).Error; err != nil {
		return nil, fmt.Errorf("auth service: record login: %w", err)
	}
	user.LastLoginAt = &now

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return user, nil
}

// Login authenticates and issues fresh credentials.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	ctx = ensureContext(ctx)

	user, err := s.Authenticate(ctx, input.Email, input.Password)
	if err != nil {
		return nil, err
	}

	creds, err := s.authenticator.Issue(ctx, user, input.Meta, input.Extended)
	if err != nil {
		return nil, fmt.Errorf("auth service: issue credentials: %w", err)
	}

	s.log.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.Bool("extended", input.Extended),
	)

	return &LoginResult{User: user, Credentials: creds}, nil
}

// ValidateCredential resolves a presented credential to its user.
func (s *AuthService) ValidateCredential(ctx context.Context, token string) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.authenticator.Validate(ctx, token)
	if err != nil {
		return nil, mapCredentialError(err)
	}
	return user, nil
}

// Logout retires the presented credential. Retiring an unknown or already
// retired credential succeeds, so repeated logouts are harmless.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	ctx = ensureContext(ctx)

	if err := s.authenticator.Logout(ctx, token); err != nil {
		return mapCredentialError(err)
	}
	return nil
}

// Refresh exchanges a refresh token for a new credential pair. Only
// available in pair mode.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*auth.Credentials, error) {
	ctx = ensureContext(ctx)

	creds, err := s.authenticator.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrRefreshUnsupported) {
			return nil, apperrors.NewBadRequest("refresh is not supported in session mode")
		}
		return nil, mapCredentialError(err)
	}
	return creds, nil
}

// RequestPasswordReset sends a reset link if the address belongs to an
// account. Unknown addresses succeed silently with no email, so the
// endpoint cannot be used to probe for registered users.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (bool, error) {
	ctx = ensureContext(ctx)

	user, err := s.findUserByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, nil
	}

	token, err := s.tokens.Issue(user.Email, auth.TokenTypePasswordReset, PasswordResetTokenTTL)
	if err != nil {
		return false, fmt.Errorf("auth service: issue reset token: %w", err)
	}

	return s.emails.SendPasswordResetEmail(ctx, user.Email, token), nil
}

// ResetPassword sets a new password from a reset token and terminates all
// of the user's active sessions.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	ctx = ensureContext(ctx)

	if newPassword == "" {
		return apperrors.NewBadRequest("new password is required")
	}

	email, err := s.tokens.Verify(token, auth.TokenTypePasswordReset)
	if err != nil {
		return mapTokenError(err)
	}

	user, err := s.findUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return apperrors.ErrNotFound
	}

	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth service: hash password: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(user).Update("password", hash).Error; err != nil {
		return fmt.Errorf("auth service: update password: %w", err)
	}

	if s.sessions != nil {
		if _, err := s.sessions.TerminateUserSessions(ctx, user.ID); err != nil {
			return err
		}
	}

	s.log.Info("password reset", zap.String("user_id", user.ID))
	return nil
}

// findUserByEmail loads a user by exact email match. A missing user is
// returned as (nil, nil) so callers choose how to phrase the absence.
func (s *AuthService) findUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth service: find user: %w", err)
	}
	return &user, nil
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenTypeMismatch):
		return apperrors.ErrInvalidToken
	default:
		return err
	}
}

func mapCredentialError(err error) error {
	switch {
	case errors.Is(err, auth.ErrSessionNotFound),
		errors.Is(err, auth.ErrSessionInactive),
		errors.Is(err, auth.ErrSessionExpired):
		return apperrors.ErrUnauthorized
	case errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenTypeMismatch),
		errors.Is(err, auth.ErrTokenRevoked):
		return apperrors.ErrInvalidToken
	default:
		return err
	}
}
