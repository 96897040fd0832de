package api

import (
	"github.com/gin-gonic/gin"

	"github.com/pulsecheck/pulsecheck/internal/handlers"
)

func registerTeamRoutes(api *gin.RouterGroup, teamHandler *handlers.TeamHandler) {
	teams := api.Group("/teams")
	{
		teams.GET("", teamHandler.List)
		teams.POST("", teamHandler.Create)
		teams.POST("/join", teamHandler.Join)
		teams.PATCH("/:id", teamHandler.Update)
		teams.GET("/:id/members", teamHandler.ListMembers)
		teams.DELETE("/:id/members/:userID", teamHandler.RemoveMember)
		teams.POST("/:id/regenerate-code", teamHandler.RegenerateInviteCode)
		teams.POST("/:id/invitations", teamHandler.Invite)
	}

	invitations := api.Group("/invitations")
	{
		invitations.GET("", teamHandler.ListInvitations)
		invitations.POST("/:id/respond", teamHandler.RespondToInvitation)
	}
}
