package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pulsecheck/pulsecheck/internal/api"
	"github.com/pulsecheck/pulsecheck/internal/app"
	iauth "github.com/pulsecheck/pulsecheck/internal/auth"
	"github.com/pulsecheck/pulsecheck/internal/database"
	"github.com/pulsecheck/pulsecheck/internal/models"
	"github.com/pulsecheck/pulsecheck/internal/services"
	"github.com/pulsecheck/pulsecheck/pkg/crypto"
	"github.com/pulsecheck/pulsecheck/pkg/mail"
	"github.com/pulsecheck/pulsecheck/pkg/response"
)

// Mailbox is a mail.Mailer that records messages for assertions.
type Mailbox struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (m *Mailbox) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *Mailbox) Messages() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mail.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T       *testing.T
	DB      *gorm.DB
	Router  *gin.Engine
	Mailbox *Mailbox
}

// NewEnv provisions a fresh session-mode handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	tokens, err := iauth.NewTokenService(iauth.TokenConfig{
		Secret: "test-suite-super-secret-key-32-bytes!!",
		Issuer: "test-suite",
	})
	require.NoError(t, err)

	sessions, err := iauth.NewSessionService(db, iauth.SessionConfig{})
	require.NoError(t, err)

	authenticator, err := iauth.NewSessionAuthenticator(db, sessions)
	require.NoError(t, err)

	mailbox := &Mailbox{}
	emails, err := services.NewEmailService(mailbox, "https://app.example.com")
	require.NoError(t, err)

	authSvc, err := services.NewAuthService(services.AuthServiceConfig{
		DB:            db,
		Tokens:        tokens,
		Authenticator: authenticator,
		Sessions:      sessions,
		Emails:        emails,
	})
	require.NoError(t, err)

	teamSvc, err := services.NewTeamService(db, emails, nil)
	require.NoError(t, err)

	cfg := &app.Config{}
	cfg.Monitoring.Health.Enabled = true

	router, err := api.NewRouter(cfg, api.Deps{
		DB:    db,
		Auth:  authSvc,
		Teams: teamSvc,
	})
	require.NoError(t, err)

	return &Env{
		T:       t,
		DB:      db,
		Router:  router,
		Mailbox: mailbox,
	}
}

// CreateVerifiedUser inserts an active, verified user and returns the record.
func (e *Env) CreateVerifiedUser(password string) *models.User {
	e.T.Helper()

	username := "user-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	user := &models.User{
		Username:   username,
		Email:      username + "@example.com",
		Password:   hashed,
		IsActive:   true,
		IsVerified: true,
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// UserPayload captures the subset of user fields returned from auth endpoints.
type UserPayload struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	FullName   string `json:"full_name"`
	IsActive   bool   `json:"is_active"`
	IsVerified bool   `json:"is_verified"`
}

// Credentials mirrors the credential payload inside login responses.
type Credentials struct {
	SessionToken string `json:"session_token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	Credentials Credentials `json:"credentials"`
	User        UserPayload `json:"user"`
}

// Token returns the bearer credential for subsequent requests.
func (r LoginResult) Token() string {
	if r.Credentials.SessionToken != "" {
		return r.Credentials.SessionToken
	}
	return r.Credentials.AccessToken
}

// Login authenticates with email and password and returns the issued credentials.
func (e *Env) Login(email, password string) LoginResult {
	e.T.Helper()

	payload := map[string]any{
		"email":    email,
		"password": password,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Token())
	require.Equal(e.T, email, result.User.Email)

	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(e.T, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
