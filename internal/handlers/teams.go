package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pulsecheck/pulsecheck/internal/services"
	"github.com/pulsecheck/pulsecheck/pkg/errors"
	"github.com/pulsecheck/pulsecheck/pkg/response"
)

// TeamHandler exposes team lifecycle, membership, and invitation endpoints.
// Every route requires an authenticated user.
type TeamHandler struct {
	svc *services.TeamService
}

func NewTeamHandler(svc *services.TeamService) *TeamHandler {
	return &TeamHandler{svc: svc}
}

type createTeamRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=128"`
	Description string `json:"description" validate:"omitempty,max=512"`
}

type updateTeamRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=128"`
	Description *string `json:"description" validate:"omitempty,max=512"`
}

type joinTeamRequest struct {
	InviteCode string `json:"invite_code" validate:"required,len=8"`
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type respondInvitationRequest struct {
	Accept bool `json:"accept"`
}

// POST /api/teams
func (h *TeamHandler) Create(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var body createTeamRequest
	if !bindAndValidate(c, &body) {
		return
	}

	team, err := h.svc.Create(requestContext(c), user.ID, services.CreateTeamInput{
		Name:        strings.TrimSpace(body.Name),
		Description: strings.TrimSpace(body.Description),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, team)
}

// POST /api/teams/join
func (h *TeamHandler) Join(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var body joinTeamRequest
	if !bindAndValidate(c, &body) {
		return
	}

	team, err := h.svc.JoinByInviteCode(requestContext(c), user.ID, strings.TrimSpace(body.InviteCode))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, team)
}

// GET /api/teams
func (h *TeamHandler) List(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	teams, err := h.svc.ListUserTeams(requestContext(c), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, teams)
}

// GET /api/teams/:id/members
func (h *TeamHandler) ListMembers(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	members, err := h.svc.ListMembers(requestContext(c), user.ID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, members)
}

// PATCH /api/teams/:id
func (h *TeamHandler) Update(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var body updateTeamRequest
	if !bindAndValidate(c, &body) {
		return
	}

	if body.Name == nil && body.Description == nil {
		response.Error(c, errors.NewBadRequest("no fields provided for update"))
		return
	}

	var namePtr *string
	if body.Name != nil {
		trimmed := strings.TrimSpace(*body.Name)
		if trimmed == "" {
			response.Error(c, errors.NewBadRequest("name must not be empty"))
			return
		}
		namePtr = &trimmed
	}

	var descPtr *string
	if body.Description != nil {
		trimmed := strings.TrimSpace(*body.Description)
		descPtr = &trimmed
	}

	team, err := h.svc.Update(requestContext(c), user.ID, c.Param("id"),
		services.UpdateTeamInput{Name: namePtr, Description: descPtr})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, team)
}

// DELETE /api/teams/:id/members/:userID
func (h *TeamHandler) RemoveMember(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.svc.RemoveMember(requestContext(c), user.ID, c.Param("id"), c.Param("userID")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": true})
}

// POST /api/teams/:id/regenerate-code
func (h *TeamHandler) RegenerateInviteCode(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	team, err := h.svc.RegenerateInviteCode(requestContext(c), user.ID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"invite_code": team.InviteCode})
}

// POST /api/teams/:id/invitations
func (h *TeamHandler) Invite(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var body inviteRequest
	if !bindAndValidate(c, &body) {
		return
	}

	invitation, err := h.svc.Invite(requestContext(c), user.ID, c.Param("id"), strings.TrimSpace(body.Email))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, invitation)
}

// GET /api/invitations
func (h *TeamHandler) ListInvitations(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	invitations, err := h.svc.ListInvitations(requestContext(c), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, invitations)
}

// POST /api/invitations/:id/respond
func (h *TeamHandler) RespondToInvitation(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var body respondInvitationRequest
	if !bindAndValidate(c, &body) {
		return
	}

	invitation, err := h.svc.RespondToInvitation(requestContext(c), user.ID, c.Param("id"), body.Accept)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, invitation)
}
