package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulsecheck/pulsecheck/internal/auth"
)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join("testdata")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, "console", cfg.Server.LogFormat)
	require.Equal(t, "https://pulse.example.com", cfg.Server.BaseURL)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)
	require.Equal(t, "pulsecheck", cfg.Database.Postgres.Database)

	require.False(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
	require.True(t, cfg.Monitoring.Health.Enabled)

	require.Equal(t, "pair", cfg.Auth.Mode)
	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "pulse-test", cfg.Auth.JWT.Issuer)
	require.Equal(t, 48*time.Hour, cfg.Auth.Session.TTL)
	require.Equal(t, 96*time.Hour, cfg.Auth.Session.ExtendedTTL)
	require.Equal(t, 30*time.Minute, cfg.Auth.Pair.AccessTTL)
	require.Equal(t, 240*time.Hour, cfg.Auth.Pair.ExtendedRefreshTTL)
	require.Equal(t, "rotate_and_revoke", cfg.Auth.Pair.RotationPolicy)

	require.True(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, "smtp.example.com", cfg.Email.SMTP.Host)
	require.Equal(t, 2525, cfg.Email.SMTP.Port)
	require.Equal(t, "smtp-user", cfg.Email.SMTP.Username)
	require.Equal(t, "smtp-pass", cfg.Email.SMTP.Password)
	require.Equal(t, "no-reply@example.com", cfg.Email.SMTP.From)
	require.True(t, cfg.Email.SMTP.UseTLS)
	require.Equal(t, 15*time.Second, cfg.Email.SMTP.Timeout)

	require.False(t, cfg.Maintenance.Enabled)
	require.Equal(t, "@every 30m", cfg.Maintenance.SessionSchedule)
	require.Equal(t, "@daily", cfg.Maintenance.TokenSchedule)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "json", cfg.Server.LogFormat)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "session", cfg.Auth.Mode)
	require.Equal(t, 7*24*time.Hour, cfg.Auth.Session.TTL)
	require.Equal(t, 30*24*time.Hour, cfg.Auth.Session.ExtendedTTL)
	require.Equal(t, time.Hour, cfg.Auth.Pair.AccessTTL)
	require.Equal(t, "rotate", cfg.Auth.Pair.RotationPolicy)
	require.False(t, cfg.Email.SMTP.Enabled)
	require.True(t, cfg.Maintenance.Enabled)
	require.Equal(t, "@hourly", cfg.Maintenance.SessionSchedule)
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := AuthConfig{
		JWT: JWTSettings{
			Secret: "secret",
			Issuer: "issuer",
		},
		Session: SessionSettings{
			TTL:         10 * time.Hour,
			ExtendedTTL: 20 * time.Hour,
		},
		Pair: PairSettings{
			AccessTTL:          30 * time.Minute,
			ExtendedAccessTTL:  2 * time.Hour,
			RefreshTTL:         24 * time.Hour,
			ExtendedRefreshTTL: 48 * time.Hour,
			RotationPolicy:     auth.RotationRotateAndRevoke,
		},
	}

	tokenCfg := cfg.TokenServiceConfig()
	require.Equal(t, "secret", tokenCfg.Secret)
	require.Equal(t, "issuer", tokenCfg.Issuer)

	sessionCfg := cfg.SessionServiceConfig()
	require.Equal(t, 10*time.Hour, sessionCfg.SessionTTL)
	require.Equal(t, 20*time.Hour, sessionCfg.ExtendedTTL)

	pairCfg := cfg.PairAuthenticatorConfig()
	require.Equal(t, 30*time.Minute, pairCfg.AccessTTL)
	require.Equal(t, 48*time.Hour, pairCfg.ExtendedRefreshTTL)
	require.Equal(t, auth.RotationRotateAndRevoke, pairCfg.RotationPolicy)
}

func TestAuthConfigAdaptersFallback(t *testing.T) {
	var cfg AuthConfig

	sessionCfg := cfg.SessionServiceConfig()
	require.Equal(t, auth.DefaultSessionTTL, sessionCfg.SessionTTL)
	require.Equal(t, auth.ExtendedSessionTTL, sessionCfg.ExtendedTTL)

	pairCfg := cfg.PairAuthenticatorConfig()
	require.Equal(t, auth.RotationRotate, pairCfg.RotationPolicy)
}

func TestEmailConfigAdapter(t *testing.T) {
	cfg := EmailConfig{
		SMTP: SMTPConfig{
			Enabled:  true,
			Host:     "smtp.example.com",
			Port:     2525,
			Username: "user",
			Password: "pass",
			From:     "no-reply@example.com",
			UseTLS:   true,
			Timeout:  10 * time.Second,
		},
	}

	settings := cfg.SMTPSettings()
	require.True(t, settings.Enabled)
	require.Equal(t, "smtp.example.com", settings.Host)
	require.Equal(t, 2525, settings.Port)
	require.Equal(t, "user", settings.Username)
	require.Equal(t, "pass", settings.Password)
	require.Equal(t, "no-reply@example.com", settings.From)
	require.True(t, settings.UseTLS)
	require.Equal(t, 10*time.Second, settings.Timeout)
}
