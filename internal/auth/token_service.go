package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes the purposes a signed token may be issued for.
// A token only verifies against the type it was issued with.
type TokenType string

const (
	TokenTypeEmailVerification TokenType = "email_verification"
	TokenTypePasswordReset     TokenType = "password_reset"
	TokenTypeAccess            TokenType = "access"
	TokenTypeRefresh           TokenType = "refresh"
)

// Codec failure modes. Expiry is reported separately from other parse
// failures so callers can phrase the two differently.
var (
	ErrTokenInvalid      = errors.New("token: invalid")
	ErrTokenExpired      = errors.New("token: expired")
	ErrTokenTypeMismatch = errors.New("token: type mismatch")
)

// TokenConfig bundles the configuration required to build a TokenService.
type TokenConfig struct {
	Secret string
	Issuer string
	Clock  func() time.Time
}

// tokenClaims carries the subject, the purpose tag, and the registered
// claim set for every token this service issues.
type tokenClaims struct {
	Type TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies purpose-tagged HS256 tokens. It holds no
// global state; secret, issuer, and clock are injected at construction.
type TokenService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenService constructs a TokenService instance when provided with the required configuration.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token: secret must be provided")
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &TokenService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		now:    now,
	}, nil
}

// Issue signs a token for the given subject and purpose, valid for ttl.
func (s *TokenService) Issue(subject string, typ TokenType, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("token: subject is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token: ttl must be positive, got %v", ttl)
	}

	now := s.now()

	claims := &tokenClaims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}

	return signed, nil
}

// Verify parses the token, checks signature and expiry, and confirms it was
// issued for the expected purpose. It returns the embedded subject.
func (s *TokenService) Verify(tokenString string, want TokenType) (string, error) {
	if tokenString == "" {
		return "", ErrTokenInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims tokenClaims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return "", ErrTokenInvalid
	}

	if claims.Type != want {
		return "", ErrTokenTypeMismatch
	}

	if claims.Subject == "" {
		return "", ErrTokenInvalid
	}

	return claims.Subject, nil
}
