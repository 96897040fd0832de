package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pulsecheck/pulsecheck/internal/auth"
	"github.com/pulsecheck/pulsecheck/internal/database"
	"github.com/pulsecheck/pulsecheck/internal/models"
	"github.com/pulsecheck/pulsecheck/pkg/crypto"
	"github.com/pulsecheck/pulsecheck/pkg/mail"
)

func newServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	return db
}

// recordingMailer captures outbound messages for assertions. Setting fail
// makes every Send report an error.
type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	fail     bool
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return fmt.Errorf("mailer: forced failure")
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]mail.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

func newTestEmailService(t *testing.T, mailer mail.Mailer) *EmailService {
	t.Helper()

	svc, err := NewEmailService(mailer, "https://app.example.com")
	require.NoError(t, err)
	return svc
}

func seedUser(t *testing.T, db *gorm.DB, email, username string, verified bool) *models.User {
	t.Helper()

	hash, err := crypto.HashPassword("p@ssW0rd!")
	require.NoError(t, err)

	user := &models.User{
		Email:      email,
		Username:   username,
		Password:   hash,
		IsActive:   true,
		IsVerified: verified,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newSessionAuthStack wires a token service, session service, and
// session-mode authenticator sharing the given clock.
func newSessionAuthStack(t *testing.T, db *gorm.DB, clock *testClock) (*auth.TokenService, *auth.SessionService, auth.Authenticator) {
	t.Helper()

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret: "service-test-secret",
		Issuer: "pulsecheck-test",
		Clock:  clock.Now,
	})
	require.NoError(t, err)

	sessions, err := auth.NewSessionService(db, auth.SessionConfig{Clock: clock.Now})
	require.NoError(t, err)

	authn, err := auth.NewSessionAuthenticator(db, sessions)
	require.NoError(t, err)

	return tokens, sessions, authn
}

func newTestAuthService(t *testing.T, db *gorm.DB, mailer mail.Mailer, clock *testClock) (*AuthService, *auth.TokenService) {
	t.Helper()

	tokens, sessions, authn := newSessionAuthStack(t, db, clock)

	svc, err := NewAuthService(AuthServiceConfig{
		DB:            db,
		Tokens:        tokens,
		Authenticator: authn,
		Sessions:      sessions,
		Emails:        newTestEmailService(t, mailer),
		Clock:         clock.Now,
	})
	require.NoError(t, err)
	return svc, tokens
}

func newTestTeamService(t *testing.T, db *gorm.DB, mailer mail.Mailer, clock *testClock) *TeamService {
	t.Helper()

	svc, err := NewTeamService(db, newTestEmailService(t, mailer), clock.Now)
	require.NoError(t, err)
	return svc
}
