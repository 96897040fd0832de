package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/pulsecheck/pulsecheck/internal/auth"
	"github.com/pulsecheck/pulsecheck/internal/middleware"
	"github.com/pulsecheck/pulsecheck/internal/models"
	"github.com/pulsecheck/pulsecheck/internal/services"
	"github.com/pulsecheck/pulsecheck/pkg/errors"
	"github.com/pulsecheck/pulsecheck/pkg/response"
)

// AuthHandler manages account lifecycle flows: register, verify, login,
// refresh, logout, and password reset.
type AuthHandler struct {
	auth *services.AuthService
}

func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=32,username"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	FullName string `json:"full_name" validate:"max=128"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.auth.Register(requestContext(c), services.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"message":                 "Registration successful. Please verify your email.",
		"user_id":                 result.User.ID,
		"verification_email_sent": result.VerificationSent,
		"verification_required":   true,
	})
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /api/auth/send-verification-email
func (h *AuthHandler) SendVerificationEmail(c *gin.Context) {
	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	sent, err := h.auth.RequestVerification(requestContext(c), req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"email_sent": sent})
}

type tokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// POST /api/auth/verify-email
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req tokenRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.auth.VerifyEmail(requestContext(c), req.Token); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Email verified successfully."})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Extended bool   `json:"extended"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.auth.Login(requestContext(c), services.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Extended: req.Extended,
		Meta: iauth.SessionMetadata{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"credentials": result.Credentials,
		"user":        userPayload(result.User),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	creds, err := h.auth.Refresh(requestContext(c), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"credentials": creds})
}

// POST /api/auth/logout
//
// Session mode retires the bearer credential itself; pair mode expects the
// refresh token in the body.
func (h *AuthHandler) Logout(c *gin.Context) {
	credential := bearerCredential(c)

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err == nil && strings.TrimSpace(req.RefreshToken) != "" {
		credential = strings.TrimSpace(req.RefreshToken)
	}

	if credential == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.auth.Logout(requestContext(c), credential); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"logged_out": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	response.Success(c, http.StatusOK, userPayload(user))
}

// POST /api/auth/request-password-reset
//
// Always answers 200 so the endpoint cannot be used to probe for
// registered addresses.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if _, err := h.auth.RequestPasswordReset(requestContext(c), req.Email); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "If the email exists, a password reset link has been sent.",
	})
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.auth.ResetPassword(requestContext(c), req.Token, req.NewPassword); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Password has been reset."})
}

func bearerCredential(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[7:])
}

func userPayload(user *models.User) gin.H {
	return gin.H{
		"id":            user.ID,
		"email":         user.Email,
		"username":      user.Username,
		"full_name":     user.FullName,
		"is_active":     user.IsActive,
		"is_verified":   user.IsVerified,
		"is_superuser":  user.IsSuperuser,
		"last_login_at": user.LastLoginAt,
		"created_at":    user.CreatedAt,
	}
}

func currentUser(c *gin.Context) *models.User {
	v, ok := c.Get(middleware.CtxUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
