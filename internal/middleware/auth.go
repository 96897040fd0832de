package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pulsecheck/pulsecheck/internal/models"
	"github.com/pulsecheck/pulsecheck/pkg/errors"
	"github.com/pulsecheck/pulsecheck/pkg/response"
)

const (
	CtxUserKey   = "authUser"
	CtxUserIDKey = "userID"
)

// CredentialValidator resolves a bearer credential to the account it belongs
// to. Both session tokens and access tokens satisfy this through the auth
// service.
type CredentialValidator interface {
	ValidateCredential(ctx context.Context, credential string) (*models.User, error)
}

// Auth enforces bearer-token authentication using the supplied validator.
func Auth(validator CredentialValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		credential := strings.TrimSpace(authz[7:])
		user, err := validator.ValidateCredential(c.Request.Context(), credential)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		// Propagate identity into request context
		c.Set(CtxUserKey, user)
		c.Set(CtxUserIDKey, user.ID)

		c.Next()
	}
}
