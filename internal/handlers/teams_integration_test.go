package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulsecheck/pulsecheck/internal/handlers/testutil"
	"github.com/pulsecheck/pulsecheck/internal/models"
)

type teamPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	InviteCode  string `json:"invite_code"`
	CreatorID   string `json:"creator_id"`
}

type invitationPayload struct {
	ID           string `json:"id"`
	TeamID       string `json:"team_id"`
	InviteeEmail string `json:"invitee_email"`
	Status       string `json:"status"`
}

func createTeam(t *testing.T, env *testutil.Env, token, name string) teamPayload {
	t.Helper()

	w := env.Request(http.MethodPost, "/api/teams", map[string]any{"name": name}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var team teamPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &team)
	require.NotEmpty(t, team.ID)
	require.Len(t, team.InviteCode, 8)
	return team
}

func TestTeamHandler_CreateAndJoin(t *testing.T) {
	env := testutil.NewEnv(t)
	creator := env.CreateVerifiedUser("Sup3rSecret!")
	joiner := env.CreateVerifiedUser("Sup3rSecret!")

	creatorLogin := env.Login(creator.Email, "Sup3rSecret!")
	joinerLogin := env.Login(joiner.Email, "Sup3rSecret!")

	team := createTeam(t, env, creatorLogin.Token(), "Night Shift")

	join := env.Request(http.MethodPost, "/api/teams/join",
		map[string]any{"invite_code": team.InviteCode}, joinerLogin.Token())
	require.Equal(t, http.StatusOK, join.Code, join.Body.String())

	list := env.Request(http.MethodGet, "/api/teams", nil, joinerLogin.Token())
	require.Equal(t, http.StatusOK, list.Code)
	var teams []teamPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, list).Data, &teams)
	require.Len(t, teams, 1)
	require.Equal(t, team.ID, teams[0].ID)

	members := env.Request(http.MethodGet, "/api/teams/"+team.ID+"/members", nil, creatorLogin.Token())
	require.Equal(t, http.StatusOK, members.Code)
	var memberList []models.TeamMember
	testutil.DecodeInto(t, testutil.DecodeResponse(t, members).Data, &memberList)
	require.Len(t, memberList, 2)
}

func TestTeamHandler_JoinUnknownCode(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateVerifiedUser("Sup3rSecret!")
	login := env.Login(user.Email, "Sup3rSecret!")

	w := env.Request(http.MethodPost, "/api/teams/join",
		map[string]any{"invite_code": "ZZZZ9999"}, login.Token())
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

func TestTeamHandler_UpdateRequiresManager(t *testing.T) {
	env := testutil.NewEnv(t)
	creator := env.CreateVerifiedUser("Sup3rSecret!")
	member := env.CreateVerifiedUser("Sup3rSecret!")

	creatorLogin := env.Login(creator.Email, "Sup3rSecret!")
	memberLogin := env.Login(member.Email, "Sup3rSecret!")

	team := createTeam(t, env, creatorLogin.Token(), "Rename Me")

	join := env.Request(http.MethodPost, "/api/teams/join",
		map[string]any{"invite_code": team.InviteCode}, memberLogin.Token())
	require.Equal(t, http.StatusOK, join.Code)

	forbidden := env.Request(http.MethodPatch, "/api/teams/"+team.ID,
		map[string]any{"name": "Hijacked"}, memberLogin.Token())
	require.Equal(t, http.StatusForbidden, forbidden.Code, forbidden.Body.String())

	renamed := env.Request(http.MethodPatch, "/api/teams/"+team.ID,
		map[string]any{"name": "Renamed"}, creatorLogin.Token())
	require.Equal(t, http.StatusOK, renamed.Code, renamed.Body.String())
	var updated teamPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, renamed).Data, &updated)
	require.Equal(t, "Renamed", updated.Name)
}

func TestTeamHandler_RemoveMemberAndRegenerate(t *testing.T) {
	env := testutil.NewEnv(t)
	creator := env.CreateVerifiedUser("Sup3rSecret!")
	member := env.CreateVerifiedUser("Sup3rSecret!")

	creatorLogin := env.Login(creator.Email, "Sup3rSecret!")
	memberLogin := env.Login(member.Email, "Sup3rSecret!")

	team := createTeam(t, env, creatorLogin.Token(), "Rotating")

	join := env.Request(http.MethodPost, "/api/teams/join",
		map[string]any{"invite_code": team.InviteCode}, memberLogin.Token())
	require.Equal(t, http.StatusOK, join.Code)

	// Removing yourself is rejected.
	self := env.Request(http.MethodDelete, "/api/teams/"+team.ID+"/members/"+creator.ID, nil, creatorLogin.Token())
	require.Equal(t, http.StatusBadRequest, self.Code, self.Body.String())

	removed := env.Request(http.MethodDelete, "/api/teams/"+team.ID+"/members/"+member.ID, nil, creatorLogin.Token())
	require.Equal(t, http.StatusOK, removed.Code, removed.Body.String())

	regen := env.Request(http.MethodPost, "/api/teams/"+team.ID+"/regenerate-code", nil, creatorLogin.Token())
	require.Equal(t, http.StatusOK, regen.Code, regen.Body.String())
	var data map[string]string
	testutil.DecodeInto(t, testutil.DecodeResponse(t, regen).Data, &data)
	require.Len(t, data["invite_code"], 8)
	require.NotEqual(t, team.InviteCode, data["invite_code"])

	// The removed member can no longer use membership endpoints.
	denied := env.Request(http.MethodGet, "/api/teams/"+team.ID+"/members", nil, memberLogin.Token())
	require.Equal(t, http.StatusForbidden, denied.Code, denied.Body.String())
}

func TestTeamHandler_InvitationLifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	creator := env.CreateVerifiedUser("Sup3rSecret!")
	invitee := env.CreateVerifiedUser("Sup3rSecret!")

	creatorLogin := env.Login(creator.Email, "Sup3rSecret!")
	inviteeLogin := env.Login(invitee.Email, "Sup3rSecret!")

	team := createTeam(t, env, creatorLogin.Token(), "Invitees")

	invite := env.Request(http.MethodPost, "/api/teams/"+team.ID+"/invitations",
		map[string]any{"email": invitee.Email}, creatorLogin.Token())
	require.Equal(t, http.StatusCreated, invite.Code, invite.Body.String())
	var invitation invitationPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, invite).Data, &invitation)
	require.Equal(t, models.InvitationStatusPending, invitation.Status)

	pending := env.Request(http.MethodGet, "/api/invitations", nil, inviteeLogin.Token())
	require.Equal(t, http.StatusOK, pending.Code)
	var invitations []invitationPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, pending).Data, &invitations)
	require.Len(t, invitations, 1)
	require.Equal(t, invitation.ID, invitations[0].ID)

	respond := env.Request(http.MethodPost, "/api/invitations/"+invitation.ID+"/respond",
		map[string]any{"accept": true}, inviteeLogin.Token())
	require.Equal(t, http.StatusOK, respond.Code, respond.Body.String())

	teams := env.Request(http.MethodGet, "/api/teams", nil, inviteeLogin.Token())
	require.Equal(t, http.StatusOK, teams.Code)
	var joined []teamPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, teams).Data, &joined)
	require.Len(t, joined, 1)

	// Responding again fails; the invitation is settled.
	again := env.Request(http.MethodPost, "/api/invitations/"+invitation.ID+"/respond",
		map[string]any{"accept": false}, inviteeLogin.Token())
	require.Equal(t, http.StatusBadRequest, again.Code, again.Body.String())
}

func TestTeamHandler_RequiresAuth(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/teams", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
