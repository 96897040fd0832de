package api

import (
	"github.com/gin-gonic/gin"

	"github.com/pulsecheck/pulsecheck/internal/handlers"
)

func registerAuthRoutes(engine *gin.Engine, authHandler *handlers.AuthHandler, requireAuth gin.HandlerFunc) {
	auth := engine.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/send-verification-email", authHandler.SendVerificationEmail)
		auth.POST("/verify-email", authHandler.VerifyEmail)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/request-password-reset", authHandler.RequestPasswordReset)
		auth.POST("/reset-password", authHandler.ResetPassword)

		// Logout resolves the credential itself, so it stays outside the
		// auth middleware: pair-mode clients present a refresh token that
		// the middleware cannot validate as an access credential.
		auth.POST("/logout", authHandler.Logout)
	}

	auth.GET("/me", requireAuth, authHandler.Me)
}
