package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulsecheck/pulsecheck/internal/models"
	apperrors "github.com/pulsecheck/pulsecheck/pkg/errors"
)

var inviteCodePattern = regexp.MustCompile(`^[A-Z0-9]{8}$`)

func TestCreateTeamMakesCreatorAdmin(t *testing.T) {
	db := newServiceTestDB(t)
	svc := newTestTeamService(t, db, &recordingMailer{}, newTestClock())
	creator := seedUser(t, db, "owner@example.com", "owner", true)

	team, err := svc.Create(context.Background(), creator.ID, CreateTeamInput{
		Name:        "Morning Crew",
		Description: "Daily standup group",
	})
	require.NoError(t, err)
	require.Regexp(t, inviteCodePattern, team.InviteCode)
	require.Equal(t, creator.ID, team.CreatorID)

	var member models.TeamMember
	require.NoError(t, db.Take(&member, "team_id = ? AND user_id = ?", team.ID, creator.ID).Error)
	require.Equal(t, models.TeamRoleAdmin, member.Role)
	require.True(t, member.IsActive)
}

func TestCreateTeamUnknownCreator(t *testing.T) {
	db := newServiceTestDB(t)
	svc := newTestTeamService(t, db, &recordingMailer{}, newTestClock())

	_, err := svc.Create(context.Background(), "no-such-user", CreateTeamInput{Name: "Morning Crew"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	var count int64
	require.NoError(t, db.Model(&models.Team{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCreateTeamRequiresName(t *testing.T) {
	db := newServiceTestDB(t)
	svc := newTestTeamService(t, db, &recordingMailer{}, newTestClock())
	creator := seedUser(t, db, "owner@example.com", "owner", true)

	_, err := svc.Create(context.Background(), creator.ID, CreateTeamInput{Name: "   "})
	require.Error(t, err)
	require.Equal(t, apperrors.ErrBadRequest.Code, apperrors.FromError(err).Code)
}

func TestJoinByInviteCode(t *testing.T) {
	db := newServiceTestDB(t)
	svc := newTestTeamService(t, db, &recordingMailer{}, newTestClock())
	owner := seedUser(t, db, "owner@example.com", "owner", true)
	joiner := seedUser(t, db, "joiner@example.com", "joiner", true)

	team, err := svc.Create(context.Background(), owner.ID, CreateTeamInput{Name: "Morning Crew"})
	require.NoError(t, err)

	joined, err := svc.JoinByInviteCode(context.Background(), joiner.ID, team.InviteCode)
	require.NoError(t, err)
	require.Equal(t, team.ID, joined.ID)

	var member models.TeamMember
	require.NoError(t, db.Take(&member, "team_id = ? AND user_id = ?", team.ID, joiner.ID).Error)
	require.Equal(t, models.TeamRoleMember, member.Role)

	// Joining twice conflicts.
	_, err = svc.JoinByInviteCode(context.Background(), joiner.ID, team.InviteCode)
	require.ErrorIs(t, err, apperrors.ErrAlreadyMember)

	// An unknown code resolves to no team.
	_, err = svc.JoinByInviteCode(context.Background(), joiner.ID, "NOTACODE")
	require.ErrorIs(t, err, ErrTeamNotFound)
}

func TestJoinByInviteCodeUnknownUser(t *testing.T) {
	db := newServiceTestDB(t)
	svc := newTestTeamService(t, db, &recordingMailer{}, newTestClock())
	owner := seedUser(t, db, "owner@example.com", "owner", true)

	team, err := svc.Create(context.Background(), owner.ID, CreateTeamInput{Name: "Morning Crew"})
	require.NoError(t, err)

	_, err = svc.JoinByInviteCode(context.Background(), "no-such-user", team.InviteCode)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRejoinAfterRemovalReactivatesAsMember(t *testing.T) {
	db := newServiceTestDB(t)
	svc := newTestTeamService(t, db, &recordingMailer{}, newTestClock())
	owner := seedUser(t, db, "owner@example.com", "owner", true)
	joiner := seedUser(t, db, "joiner@example.com", "joiner", true)

	team, err := svc.Create(context.Background(), owner.ID, CreateTeamInput{Name: "Morning Crew"})
	require.NoError(t, err)

	_, err = svc.JoinByInviteCode(context.Background(), joiner.ID, team.InviteCode)
	require.NoError(t, err)
	require.NoError(t, svc.RemoveMember(context.Background(), owner.ID, team.ID, joiner.ID))

	_, err = svc.JoinByInviteCode(context.Background(), joiner.ID, team.InviteCode)
	require.NoError(t, err)

	// Still a single membership row, now active again.
	var count int64
	require.NoError(t, db.Model(&models.TeamMember{}).
		Where("team_id = ? AND user_id = ?", team.ID, joiner.ID).
		Count(&count).Error)
	require.EqualValues(t, 1, count)

	var member models.TeamMember
	require.NoError(t, db.Take(&member, "team_id = ? AND user_id = ?", team.ID, joiner.ID).Error)
	require.True(t, member.IsActive)
	require.Equal(t, models.TeamRoleMember, member.Role)
}

func TestListUserTeamsSkipsInactiveMemberships(t *testing.T) {
	db := newServiceTestDB(t)
	svc := newTestTeamService(t, db, &recordingMailer{}, newTestClock())
	owner := seedUser(t, db, "owner@example.com", "owner", true)
	user := seedUser(t, db, "user@example.com", "user", true)

	first, err := svc.Create(context.Background(), owner.ID, CreateTeamInput{Name: "First"})
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), owner.ID, CreateTeamInput{Name: "Second"})
	require.NoError(t, err)

	_, err = svc.JoinByInviteCode(context.Background(), user.ID, first.InviteCode)
	require.NoError(t, err)
	_, err = svc.JoinByInviteCode(context.Background(), user.ID, second.InviteCode)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveMember(context.Background(), owner.ID, second.ID, user.ID))

	teams, err := svc.ListUserTeams(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	require.Equal(t, first.ID, teams[0].ID)
}

func TestListMembersRequiresMembership(t *testing.T) {
	db := newServiceTestDB(t)
	svc := newTestTeamService(t, db, &recordingMailer{}, newTestClock())
	owner := seedUser(t, db, "owner@example.com", "owner", true)
	outsider := seedUser(t, db, "outsider@example.com", "outsider", true)

	team, err := svc.Create(context.Background(), owner.ID, CreateTeamInput{Name: "Morning Crew"})
	require.NoError(t, err)

	_, err = svc.ListMembers(context.Background(), outsider.ID, team.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	members, err := svc.ListMembers(context.Background(), owner.ID, team.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.NotNil(t, members[0].User)
	require.Equal(t, "owner", members[0].User.Username)

	_, err = svc.ListMembers(context.Background(), owner.ID, "missing-team")
	require.ErrorIs(t, err, ErrTeamNotFound)
}

func TestUpdateTeamRequiresManagerRole(t *testing.T) {
	db := newServiceTestDB(t)
	svc := newTestTeamService(t, db, &recordingMailer{}, newTestClock())
	owner := seedUser(t, db, "owner@example.com", "owner", true)
	member := seedUser(t, db, "member@example.com", "member", true)

	team, err := svc.Create(context.Background(), owner.ID, CreateTeamInput{Name: "Morning Crew"})
	require.NoError(t, err)
	_, err = svc.JoinByInviteCode(context.Background(), member.ID, team.InviteCode)
	require.NoError(t, err)

	name := "Evening Crew"
	_, err = svc.Update(context.Background(), member.ID, team.ID, UpdateTeamInput{Name: &name})
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	updated, err := svc.Update(context.Background(), owner.ID, team.ID, UpdateTeamInput{Name: &name})
	require.NoError(t, err)
	require.Equal(t, name, updated.Name)
}

func TestRemoveMemberChecks(t *testing.T) {
	db := newServiceTestDB(t)
	svc := newTestTeamService(t, db, &recordingMailer{}, newTestClock())
	owner := seedUser(t, db, "owner@example.com", "owner", true)
	member := seedUser(t, db, "member@example.com", "member", true)
	outsider := seedUser(t, db, "outsider@example.com", "outsider", true)

	team, err := svc.Create(context.Background(), owner.ID, CreateTeamInput{Name: "Morning Crew"})
	require.NoError(t, err)
	_, err = svc.JoinByInviteCode(context.Background(), member.ID, team.InviteCode)
	require.NoError(t, err)

	// Unknown team wins over everything else.
	require.ErrorIs(t, svc.RemoveMember(context.Background(), owner.ID, "missing-team", member.ID), ErrTeamNotFound)

	// Plain members cannot remove anyone.
	require.ErrorIs(t, svc.RemoveMember(context.Background(), member.ID, team.ID, owner.ID), apperrors.ErrForbidden)

	// Owners cannot remove themselves.
	err = svc.RemoveMember(context.Background(), owner.ID, team.ID, owner.ID)
	require.Equal(t, apperrors.ErrBadRequest.Code, apperrors.FromError(err).Code)

	// Removing a non-member reports the missing membership.
	require.ErrorIs(t, svc.RemoveMember(context.Background(), owner.ID, team.ID, outsider.ID), ErrMemberNotFound)

	require.NoError(t, svc.RemoveMember(context.Background(), owner.ID, team.ID, member.ID))

	members, err := svc.ListMembers(context.Background(), owner.ID, team.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)

	// Removing an already removed member reports the missing membership.
	require.ErrorIs(t, svc.RemoveMember(context.Background(), owner.ID, team.ID, member.ID), ErrMemberNotFound)
}

func TestRegenerateInviteCode(t *testing.T) {
	db := newServiceTestDB(t)
	svc := newTestTeamService(t, db, &recordingMailer{}, newTestClock())
	owner := seedUser(t, db, "owner@example.com", "owner", true)
	member := seedUser(t, db, "member@example.com", "member", true)
	late := seedUser(t, db, "late@example.com", "late", true)

	team, err := svc.Create(context.Background(), owner.ID, CreateTeamInput{Name: "Morning Crew"})
	require.NoError(t, err)
	_, err = svc.JoinByInviteCode(context.Background(), member.ID, team.InviteCode)
	require.NoError(t, err)

	_, err = svc.RegenerateInviteCode(context.Background(), member.ID, team.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	oldCode := team.InviteCode
	refreshed, err := svc.RegenerateInviteCode(context.Background(), owner.ID, team.ID)
	require.NoError(t, err)
	require.NotEqual(t, oldCode, refreshed.InviteCode)
	require.Regexp(t, inviteCodePattern, refreshed.InviteCode)

	// The old code is dead immediately.
	_, err = svc.JoinByInviteCode(context.Background(), late.ID, oldCode)
	require.ErrorIs(t, err, ErrTeamNotFound)

	_, err = svc.JoinByInviteCode(context.Background(), late.ID, refreshed.InviteCode)
	require.NoError(t, err)
}

func TestInviteByAnyActiveMember(t *testing.T) {
	db := newServiceTestDB(t)
	mailer := &recordingMailer{}
	svc := newTestTeamService(t, db, mailer, newTestClock())
	owner := seedUser(t, db, "owner@example.com", "owner", true)
	member := seedUser(t, db, "member@example.com", "member", true)
	invitee := seedUser(t, db, "invitee@example.com", "invitee", true)

	team, err := svc.Create(context.Background(), owner.ID, CreateTeamInput{Name: "Morning Crew"})
	require.NoError(t, err)
	_, err = svc.JoinByInviteCode(context.Background(), member.ID, team.InviteCode)
	require.NoError(t, err)

	invitation, err := svc.Invite(context.Background(), member.ID, team.ID, "invitee@example.com")
	require.NoError(t, err)
	require.Equal(t, models.InvitationStatusPending, invitation.Status)
	require.NotNil(t, invitation.InviteeID)
	require.Equal(t, invitee.ID, *invitation.InviteeID)

	sent := mailer.sent()
	require.Len(t, sent, 1)
	require.Equal(t, []string{"invitee@example.com"}, sent[0].To)
	require.Contains(t, sent[0].Subject, "Morning Crew")
}

func TestInviteOutsiderForbidden(t *testing.T) {
	db := newServiceTestDB(t)
	svc := newTestTeamService(t, db, &recordingMailer{}, newTestClock())
	owner := seedUser(t, db, "owner@example.com", "owner", true)
	outsider := seedUser(t, db, "outsider@example.com", "outsider", true)

	team, err := svc.Create(context.Background(), owner.ID, CreateTeamInput{Name: "Morning Crew"})
	require.NoError(t, err)

	_, err = svc.Invite(context.Background(), outsider.ID, team.ID, "anyone@example.com")
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestInviteExistingMemberRejected(t *testing.T) {
	db := newServiceTestDB(t)
	svc := newTestTeamService(t, db, &recordingMailer{}, newTestClock())
	owner := seedUser(t, db, "owner@example.com", "owner", true)
	member := seedUser(t, db, "member@example.com", "member", true)

	team, err := svc.Create(context.Background(), owner.ID, CreateTeamInput{Name: "Morning Crew"})
	require.NoError(t, err)
	_, err = svc.JoinByInviteCode(context.Background(), member.ID, team.InviteCode)
	require.NoError(t, err)

	_, err = svc.Invite(context.Background(), owner.ID, team.ID, "member@example.com")
	require.Equal(t, apperrors.ErrBadRequest.Code, apperrors.FromError(err).Code)
}

func TestInviteIsIdempotentWhilePending(t *testing.T) {
	db := newServiceTestDB(t)
	svc := newTestTeamService(t, db, &recordingMailer{}, newTestClock())
	owner := seedUser(t, db, "owner@example.com", "owner", true)
	seedUser(t, db, "invitee@example.com", "invitee", true)

	team, err := svc.Create(context.Background(), owner.ID, CreateTeamInput{Name: "Morning Crew"})
	require.NoError(t, err)

	first, err := svc.Invite(context.Background(), owner.ID, team.ID, "invitee@example.com")
	require.NoError(t, err)
	second, err := svc.Invite(context.Background(), owner.ID, team.ID, "invitee@example.com")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&models.TeamInvitation{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestInviteUnregisteredEmail(t *testing.T) {
	db := newServiceTestDB(t)
	mailer := &recordingMailer{}
	svc := newTestTeamService(t, db, mailer, newTestClock())
	owner := seedUser(t, db, "owner@example.com", "owner", true)

	team, err := svc.Create(context.Background(), owner.ID, CreateTeamInput{Name: "Morning Crew"})
	require.NoError(t, err)

	invitation, err := svc.Invite(context.Background(), owner.ID, team.ID, "future@example.com")
	require.NoError(t, err)
	require.Nil(t, invitation.InviteeID)
	require.Equal(t, "future@example.com", invitation.InviteeEmail)
	require.Len(t, mailer.sent(), 1)
}

func TestListInvitationsExcludesExpired(t *testing.T) {
	db := newServiceTestDB(t)
	clock := newTestClock()
	svc := newTestTeamService(t, db, &recordingMailer{}, clock)
	owner := seedUser(t, db, "owner@example.com", "owner", true)
	invitee := seedUser(t, db, "invitee@example.com", "invitee", true)

	team, err := svc.Create(context.Background(), owner.ID, CreateTeamInput{Name: "Morning Crew"})
	require.NoError(t, err)
	_, err = svc.Invite(context.Background(), owner.ID, team.ID, "invitee@example.com")
	require.NoError(t, err)

	invitations, err := svc.ListInvitations(context.Background(), invitee.ID)
	require.NoError(t, err)
	require.Len(t, invitations, 1)
	require.NotNil(t, invitations[0].Team)

	clock.Advance(InvitationTTL + time.Hour)
	invitations, err = svc.ListInvitations(context.Background(), invitee.ID)
	require.NoError(t, err)
	require.Empty(t, invitations)
}

func TestRespondToInvitation(t *testing.T) {
	db := newServiceTestDB(t)
	svc := newTestTeamService(t, db, &recordingMailer{}, newTestClock())
	owner := seedUser(t, db, "owner@example.com", "owner", true)
	invitee := seedUser(t, db, "invitee@example.com", "invitee", true)
	bystander := seedUser(t, db, "bystander@example.com", "bystander", true)

	team, err := svc.Create(context.Background(), owner.ID, CreateTeamInput{Name: "Morning Crew"})
	require.NoError(t, err)
	invitation, err := svc.Invite(context.Background(), owner.ID, team.ID, "invitee@example.com")
	require.NoError(t, err)

	// Only the invitee may respond.
	_, err = svc.RespondToInvitation(context.Background(), bystander.ID, invitation.ID, true)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	accepted, err := svc.RespondToInvitation(context.Background(), invitee.ID, invitation.ID, true)
	require.NoError(t, err)
	require.Equal(t, models.InvitationStatusAccepted, accepted.Status)

	teams, err := svc.ListUserTeams(context.Background(), invitee.ID)
	require.NoError(t, err)
	require.Len(t, teams, 1)

	// A settled invitation cannot be answered again.
	_, err = svc.RespondToInvitation(context.Background(), invitee.ID, invitation.ID, false)
	require.Equal(t, apperrors.ErrBadRequest.Code, apperrors.FromError(err).Code)
}

func TestDeclineInvitation(t *testing.T) {
	db := newServiceTestDB(t)
	svc := newTestTeamService(t, db, &recordingMailer{}, newTestClock())
	owner := seedUser(t, db, "owner@example.com", "owner", true)
	invitee := seedUser(t, db, "invitee@example.com", "invitee", true)

	team, err := svc.Create(context.Background(), owner.ID, CreateTeamInput{Name: "Morning Crew"})
	require.NoError(t, err)
	invitation, err := svc.Invite(context.Background(), owner.ID, team.ID, "invitee@example.com")
	require.NoError(t, err)

	declined, err := svc.RespondToInvitation(context.Background(), invitee.ID, invitation.ID, false)
	require.NoError(t, err)
	require.Equal(t, models.InvitationStatusDeclined, declined.Status)

	teams, err := svc.ListUserTeams(context.Background(), invitee.ID)
	require.NoError(t, err)
	require.Empty(t, teams)
}

func TestReinviteAfterDecline(t *testing.T) {
	db := newServiceTestDB(t)
	svc := newTestTeamService(t, db, &recordingMailer{}, newTestClock())
	owner := seedUser(t, db, "owner@example.com", "owner", true)
	invitee := seedUser(t, db, "invitee@example.com", "invitee", true)

	team, err := svc.Create(context.Background(), owner.ID, CreateTeamInput{Name: "Morning Crew"})
	require.NoError(t, err)

	first, err := svc.Invite(context.Background(), owner.ID, team.ID, "invitee@example.com")
	require.NoError(t, err)
	_, err = svc.RespondToInvitation(context.Background(), invitee.ID, first.ID, false)
	require.NoError(t, err)

	// A declined invitation does not block a fresh one, which can in turn
	// be declined again.
	second, err := svc.Invite(context.Background(), owner.ID, team.ID, "invitee@example.com")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	declined, err := svc.RespondToInvitation(context.Background(), invitee.ID, second.ID, false)
	require.NoError(t, err)
	require.Equal(t, models.InvitationStatusDeclined, declined.Status)

	// Both declines survive as history.
	var count int64
	require.NoError(t, db.Model(&models.TeamInvitation{}).
		Where("team_id = ? AND invitee_id = ? AND status = ?", team.ID, invitee.ID, models.InvitationStatusDeclined).
		Count(&count).Error)
	require.EqualValues(t, 2, count)
}
