package models

import "time"

// Invitation lifecycle states.
const (
	InvitationStatusPending   = "pending"
	InvitationStatusAccepted  = "accepted"
	InvitationStatusDeclined  = "declined"
	InvitationStatusCancelled = "cancelled"
)

// TeamInvitation is a directed invite to a team. InviteeID is set when the
// invitee already has an account; InviteeEmail covers users who have not
// registered yet. Settled invitations stay as history, so the composite
// indexes are plain lookup indexes; the one-pending-per-invitee rule is
// enforced in the invite transaction.
type TeamInvitation struct {
	BaseModel

	TeamID string `gorm:"type:uuid;not null;index:idx_invitations_team_invitee;index:idx_invitations_team_email" json:"team_id"`
	Team   *Team  `gorm:"foreignKey:TeamID" json:"team,omitempty"`

	InviterID string `gorm:"type:uuid;not null" json:"inviter_id"`
	Inviter   *User  `gorm:"foreignKey:InviterID" json:"inviter,omitempty"`

	InviteeID    *string `gorm:"type:uuid;index:idx_invitations_team_invitee" json:"invitee_id"`
	Invitee      *User   `gorm:"foreignKey:InviteeID" json:"invitee,omitempty"`
	InviteeEmail string  `gorm:"index:idx_invitations_team_email" json:"invitee_email"`

	Status    string    `gorm:"not null;default:pending" json:"status"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}

// IsPending reports whether the invitation is still awaiting a response at
// the given instant.
func (i *TeamInvitation) IsPending(now time.Time) bool {
	return i.Status == InvitationStatusPending && now.Before(i.ExpiresAt)
}
