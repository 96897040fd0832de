package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pulsecheck/pulsecheck/internal/models"
	"github.com/pulsecheck/pulsecheck/pkg/crypto"
	apperrors "github.com/pulsecheck/pulsecheck/pkg/errors"
	"github.com/pulsecheck/pulsecheck/pkg/logger"
	"github.com/pulsecheck/pulsecheck/pkg/metrics"
)

var (
	// ErrTeamNotFound indicates the requested team does not exist.
	ErrTeamNotFound = apperrors.New("TEAM_NOT_FOUND", "Team not found", http.StatusNotFound)
	// ErrMemberNotFound indicates the requested membership does not exist or is inactive.
	ErrMemberNotFound = apperrors.New("TEAM_MEMBER_NOT_FOUND", "User is not a member of the team", http.StatusNotFound)
	// ErrInvitationNotFound indicates no matching invitation exists.
	ErrInvitationNotFound = apperrors.New("INVITATION_NOT_FOUND", "Invitation not found", http.StatusNotFound)
)

const (
	inviteCodeLength   = 8
	inviteCodeAttempts = 5

	// InvitationTTL is how long a directed invitation stays pending.
	InvitationTTL = 7 * 24 * time.Hour
)

// CreateTeamInput captures new team metadata.
type CreateTeamInput struct {
	Name        string
	Description string
}

// UpdateTeamInput describes mutable team fields.
type UpdateTeamInput struct {
	Name        *string
	Description *string
}

// TeamService handles team lifecycle, membership, and invitations.
type TeamService struct {
	db     *gorm.DB
	emails *EmailService
	log    *zap.Logger
	now    func() time.Time
}

// NewTeamService constructs a TeamService instance. The email service is
// optional; without it invitation emails are skipped.
func NewTeamService(db *gorm.DB, emails *EmailService, clock func() time.Time) (*TeamService, error) {
	if db == nil {
		return nil, errors.New("team service: db is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &TeamService{
		db:     db,
		emails: emails,
		log:    logger.WithModule("teams"),
		now:    clock,
	}, nil
}

// Create registers a new team and makes the creator its admin. The team row
// and the creator membership commit in one transaction.
func (s *TeamService) Create(ctx context.Context, creatorID string, input CreateTeamInput) (*models.Team, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("team name is required")
	}
	if strings.TrimSpace(creatorID) == "" {
		return nil, apperrors.NewBadRequest("creator id is required")
	}
	if err := s.requireUserExists(ctx, creatorID); err != nil {
		return nil, err
	}

	var team *models.Team
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.createTeamWithCode(tx, creatorID, name, strings.TrimSpace(input.Description))
		if err != nil {
			return err
		}

		member := &models.TeamMember{
			UserID:   creatorID,
			TeamID:   created.ID,
			Role:     models.TeamRoleAdmin,
			IsActive: true,
			JoinedAt: s.now(),
		}
		if err := tx.Create(member).Error; err != nil {
			return fmt.Errorf("team service: create creator membership: %w", err)
		}

		team = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TeamJoins.WithLabelValues("created").Inc()
	s.log.Info("team created",
		zap.String("team_id", team.ID),
		zap.String("creator_id", creatorID),
	)

	return team, nil
}

// createTeamWithCode inserts the team, retrying with a fresh invite code on
// the rare code collision. Exhausting the attempts is fatal.
func (s *TeamService) createTeamWithCode(tx *gorm.DB, creatorID, name, description string) (*models.Team, error) {
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		code, err := crypto.GenerateInviteCode(inviteCodeLength)
		if err != nil {
			return nil, fmt.Errorf("team service: generate invite code: %w", err)
		}

		team := &models.Team{
			Name:        name,
			Description: description,
			InviteCode:  code,
			CreatorID:   creatorID,
		}

		err = tx.Create(team).Error
		if err == nil {
			return team, nil
		}
		if !isUniqueConstraintError(err) {
			return nil, fmt.Errorf("team service: create team: %w", err)
		}
	}
	return nil, fmt.Errorf("team service: could not allocate a unique invite code after %d attempts", inviteCodeAttempts)
}

// JoinByInviteCode adds the user to the team holding the code, as a member.
// A previously deactivated membership is reactivated with the member role.
func (s *TeamService) JoinByInviteCode(ctx context.Context, userID, code string) (*models.Team, error) {
	ctx = ensureContext(ctx)

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.NewBadRequest("invite code is required")
	}
	if err := s.requireUserExists(ctx, userID); err != nil {
		return nil, err
	}

	var team models.Team
	err := s.db.WithContext(ctx).Take(&team, "invite_code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("team service: find team by code: %w", err)
	}

	if err := s.addMember(ctx, &team, userID, models.TeamRoleMember); err != nil {
		return nil, err
	}

	metrics.TeamJoins.WithLabelValues("invite_code").Inc()
	return &team, nil
}

// addMember creates or reactivates a membership. The unique (user_id,
// team_id) index backstops concurrent joins; the loser of the race gets
// ErrAlreadyMember.
func (s *TeamService) addMember(ctx context.Context, team *models.Team, userID, role string) error {
	if strings.TrimSpace(userID) == "" {
		return apperrors.NewBadRequest("user id is required")
	}

	var existing models.TeamMember
	err := s.db.WithContext(ctx).
		Take(&existing, "user_id = ? AND team_id = ?", userID, team.ID).Error
	switch {
	case err == nil:
		if existing.IsActive {
			return apperrors.ErrAlreadyMember
		}
		updates := map[string]any{
			"is_active": true,
			"role":      role,
			"joined_at": s.now(),
		}
		if err := s.db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
			return fmt.Errorf("team service: reactivate membership: %w", err)
		}
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		// fall through to insert
	default:
		return fmt.Errorf("team service: check membership: %w", err)
	}

	member := &models.TeamMember{
		UserID:   userID,
		TeamID:   team.ID,
		Role:     role,
		IsActive: true,
		JoinedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(member).Error; err != nil {
		if isUniqueConstraintError(err) {
			return apperrors.ErrAlreadyMember
		}
		return fmt.Errorf("team service: create membership: %w", err)
	}
	return nil
}

// ListUserTeams returns the teams where the user holds an active membership.
func (s *TeamService) ListUserTeams(ctx context.Context, userID string) ([]models.Team, error) {
	ctx = ensureContext(ctx)

	var teams []models.Team
	err := s.db.WithContext(ctx).
		Joins("JOIN team_members ON team_members.team_id = teams.id").
		Where("team_members.user_id = ? AND team_members.is_active = ?", userID, true).
		Order("teams.created_at ASC").
		Find(&teams).Error
	if err != nil {
		return nil, fmt.Errorf("team service: list user teams: %w", err)
	}
	return teams, nil
}

// ListMembers returns the active members of a team. The requester must be
// an active member themselves.
func (s *TeamService) ListMembers(ctx context.Context, requesterID, teamID string) ([]models.TeamMember, error) {
	ctx = ensureContext(ctx)

	if _, err := s.loadTeam(ctx, teamID); err != nil {
		return nil, err
	}

	if _, err := s.requireActiveMember(ctx, teamID, requesterID); err != nil {
		return nil, err
	}

	var members []models.TeamMember
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("team_id = ? AND is_active = ?", teamID, true).
		Order("joined_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("team service: list members: %w", err)
	}
	return members, nil
}

// Update modifies team metadata. Restricted to owners and admins.
func (s *TeamService) Update(ctx context.Context, requesterID, teamID string, input UpdateTeamInput) (*models.Team, error) {
	ctx = ensureContext(ctx)

	team, err := s.loadTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	if err := s.requireManager(ctx, teamID, requesterID); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		if name := strings.TrimSpace(*input.Name); name != "" && name != team.Name {
			updates["name"] = name
		}
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}

	if len(updates) == 0 {
		return team, nil
	}

	if err := s.db.WithContext(ctx).Model(team).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("team service: update team: %w", err)
	}

	if err := s.db.WithContext(ctx).Take(team, "id = ?", teamID).Error; err != nil {
		return nil, fmt.Errorf("team service: reload team: %w", err)
	}
	return team, nil
}

// RemoveMember deactivates another user's membership. The requester must be
// an owner or admin and cannot remove themselves.
func (s *TeamService) RemoveMember(ctx context.Context, requesterID, teamID, targetUserID string) error {
	ctx = ensureContext(ctx)

	if _, err := s.loadTeam(ctx, teamID); err != nil {
		return err
	}

	if err := s.requireManager(ctx, teamID, requesterID); err != nil {
		return err
	}

	if requesterID == targetUserID {
		return apperrors.NewBadRequest("cannot remove yourself from the team")
	}

	var target models.TeamMember
	err := s.db.WithContext(ctx).
		Take(&target, "team_id = ? AND user_id = ? AND is_active = ?", teamID, targetUserID, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrMemberNotFound
	}
	if err != nil {
		return fmt.Errorf("team service: load target membership: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&target).Update("is_active", false).Error; err != nil {
		return fmt.Errorf("team service: deactivate membership: %w", err)
	}

	s.log.Info("member removed",
		zap.String("team_id", teamID),
		zap.String("user_id", targetUserID),
		zap.String("removed_by", requesterID),
	)
	return nil
}

// RegenerateInviteCode replaces the team's invite code, immediately
// invalidating the old one. Restricted to owners and admins.
func (s *TeamService) RegenerateInviteCode(ctx context.Context, requesterID, teamID string) (*models.Team, error) {
	ctx = ensureContext(ctx)

	team, err := s.loadTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	if err := s.requireManager(ctx, teamID, requesterID); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		code, err := crypto.GenerateInviteCode(inviteCodeLength)
		if err != nil {
			return nil, fmt.Errorf("team service: generate invite code: %w", err)
		}

		err = s.db.WithContext(ctx).Model(team).Update("invite_code", code).Error
		if err == nil {
			team.InviteCode = code
			return team, nil
		}
		if !isUniqueConstraintError(err) {
			return nil, fmt.Errorf("team service: update invite code: %w", err)
		}
	}
	return nil, fmt.Errorf("team service: could not allocate a unique invite code after %d attempts", inviteCodeAttempts)
}

// Invite creates a pending invitation for the given email address. Any
// active member may invite. If a matching pending invitation already exists
// it is returned unchanged, so repeated invites are idempotent.
func (s *TeamService) Invite(ctx context.Context, inviterID, teamID, inviteeEmail string) (*models.TeamInvitation, error) {
	ctx = ensureContext(ctx)

	inviteeEmail = strings.TrimSpace(inviteeEmail)
	if inviteeEmail == "" {
		return nil, apperrors.NewBadRequest("invitee email is required")
	}

	team, err := s.loadTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	inviter, err := s.requireActiveMember(ctx, teamID, inviterID)
	if err != nil {
		return nil, err
	}

	// Resolve the invitee if they already have an account; the email match
	// is exact, like everywhere else.
	var inviteeID *string
	var invitee models.User
	err = s.db.WithContext(ctx).Take(&invitee, "email = ?", inviteeEmail).Error
	switch {
	case err == nil:
		inviteeID = &invitee.ID

		var active int64
		if err := s.db.WithContext(ctx).Model(&models.TeamMember{}).
			Where("team_id = ? AND user_id = ? AND is_active = ?", teamID, invitee.ID, true).
			Count(&active).Error; err != nil {
			return nil, fmt.Errorf("team service: check invitee membership: %w", err)
		}
		if active > 0 {
			return nil, apperrors.NewBadRequest("user is already a member of this team")
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// Email-only invitation; the account may be created later.
	default:
		return nil, fmt.Errorf("team service: find invitee: %w", err)
	}

	var invitation *models.TeamInvitation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.findPendingInvitation(tx, teamID, inviteeID, inviteeEmail)
		if err != nil {
			return err
		}
		if existing != nil {
			invitation = existing
			return nil
		}

		created := &models.TeamInvitation{
			TeamID:       teamID,
			InviterID:    inviterID,
			InviteeID:    inviteeID,
			InviteeEmail: inviteeEmail,
			Status:       models.InvitationStatusPending,
			ExpiresAt:    s.now().Add(InvitationTTL),
		}
		if err := tx.Create(created).Error; err != nil {
			return fmt.Errorf("team service: create invitation: %w", err)
		}

		invitation = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.emails != nil {
		inviterName := inviterID
		if inviter.User != nil {
			inviterName = inviter.User.Username
		}
		s.emails.SendInvitationEmail(ctx, inviteeEmail, team.Name, inviterName)
	}

	return invitation, nil
}

// ListInvitations returns the pending, unexpired invitations addressed to
// the user, either by account or by email.
func (s *TeamService) ListInvitations(ctx context.Context, userID string) ([]models.TeamInvitation, error) {
	ctx = ensureContext(ctx)

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("team service: load user: %w", err)
	}

	var invitations []models.TeamInvitation
	err := s.db.WithContext(ctx).
		Preload("Team").
		Preload("Inviter").
		Where("status = ? AND expires_at > ?", models.InvitationStatusPending, s.now()).
		Where("invitee_id = ? OR invitee_email = ?", userID, user.Email).
		Order("created_at DESC").
		Find(&invitations).Error
	if err != nil {
		return nil, fmt.Errorf("team service: list invitations: %w", err)
	}
	return invitations, nil
}

// RespondToInvitation accepts or declines a pending invitation. Only the
// invitee may respond; accepting joins the team as a member.
func (s *TeamService) RespondToInvitation(ctx context.Context, userID, invitationID string, accept bool) (*models.TeamInvitation, error) {
	ctx = ensureContext(ctx)

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("team service: load user: %w", err)
	}

	var invitation models.TeamInvitation
	err := s.db.WithContext(ctx).Preload("Team").Take(&invitation, "id = ?", invitationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("team service: load invitation: %w", err)
	}

	addressedByID := invitation.InviteeID != nil && *invitation.InviteeID == userID
	addressedByEmail := invitation.InviteeEmail != "" && invitation.InviteeEmail == user.Email
	if !addressedByID && !addressedByEmail {
		return nil, apperrors.ErrForbidden
	}

	if !invitation.IsPending(s.now()) {
		return nil, apperrors.NewBadRequest("invitation is no longer pending")
	}

	status := models.InvitationStatusDeclined
	if accept {
		status = models.InvitationStatusAccepted
	}

	if accept {
		if err := s.addMember(ctx, invitation.Team, userID, models.TeamRoleMember); err != nil {
			return nil, err
		}
		metrics.TeamJoins.WithLabelValues("invitation").Inc()
	}

	if err := s.db.WithContext(ctx).Model(&invitation).Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("team service: update invitation: %w", err)
	}
	invitation.Status = status

	return &invitation, nil
}

func (s *TeamService) findPendingInvitation(tx *gorm.DB, teamID string, inviteeID *string, inviteeEmail string) (*models.TeamInvitation, error) {
	query := tx.Where("team_id = ? AND status = ?", teamID, models.InvitationStatusPending)
	if inviteeID != nil {
		query = query.Where("invitee_id = ? OR invitee_email = ?", *inviteeID, inviteeEmail)
	} else {
		query = query.Where("invitee_email = ?", inviteeEmail)
	}

	var existing models.TeamInvitation
	err := query.Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("team service: find pending invitation: %w", err)
	}
	return &existing, nil
}

// requireUserExists confirms the user id refers to a real account.
func (s *TeamService) requireUserExists(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return apperrors.NewBadRequest("user id is required")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("team service: find user: %w", err)
	}
	if count == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (s *TeamService) loadTeam(ctx context.Context, teamID string) (*models.Team, error) {
	if strings.TrimSpace(teamID) == "" {
		return nil, apperrors.NewBadRequest("team id is required")
	}

	var team models.Team
	err := s.db.WithContext(ctx).Take(&team, "id = ?", teamID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("team service: load team: %w", err)
	}
	return &team, nil
}

// requireActiveMember loads the requester's active membership, with the
// user preloaded, or reports Forbidden.
func (s *TeamService) requireActiveMember(ctx context.Context, teamID, userID string) (*models.TeamMember, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.ErrForbidden
	}

	var member models.TeamMember
	err := s.db.WithContext(ctx).
		Preload("User").
		Take(&member, "team_id = ? AND user_id = ? AND is_active = ?", teamID, userID, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrForbidden
	}
	if err != nil {
		return nil, fmt.Errorf("team service: load membership: %w", err)
	}
	return &member, nil
}

// requireManager checks for an active owner or admin membership.
func (s *TeamService) requireManager(ctx context.Context, teamID, userID string) error {
	member, err := s.requireActiveMember(ctx, teamID, userID)
	if err != nil {
		return err
	}
	if !member.CanManageMembers() {
		return apperrors.ErrForbidden
	}
	return nil
}
