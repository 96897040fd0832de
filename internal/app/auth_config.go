package app

import (
	"github.com/pulsecheck/pulsecheck/internal/auth"
)

// TokenServiceConfig converts AuthConfig into token codec parameters.
func (c AuthConfig) TokenServiceConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret: c.JWT.Secret,
		Issuer: c.JWT.Issuer,
	}
}

// SessionServiceConfig converts AuthConfig into SessionService parameters.
func (c AuthConfig) SessionServiceConfig() auth.SessionConfig {
	ttl := c.Session.TTL
	if ttl <= 0 {
		ttl = auth.DefaultSessionTTL
	}

	extended := c.Session.ExtendedTTL
	if extended <= 0 {
		extended = auth.ExtendedSessionTTL
	}

	return auth.SessionConfig{
		SessionTTL:  ttl,
		ExtendedTTL: extended,
	}
}

// PairAuthenticatorConfig converts AuthConfig into PairAuthenticator parameters.
func (c AuthConfig) PairAuthenticatorConfig() auth.PairConfig {
	policy := c.Pair.RotationPolicy
	if policy == "" {
		policy = auth.RotationRotate
	}

	return auth.PairConfig{
		AccessTTL:          c.Pair.AccessTTL,
		ExtendedAccessTTL:  c.Pair.ExtendedAccessTTL,
		RefreshTTL:         c.Pair.RefreshTTL,
		ExtendedRefreshTTL: c.Pair.ExtendedRefreshTTL,
		RotationPolicy:     policy,
	}
}
