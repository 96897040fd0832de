package models

import "time"

// Team membership roles.
const (
	TeamRoleOwner  = "owner"
	TeamRoleAdmin  = "admin"
	TeamRoleMember = "member"
)

// TeamMember links a user to a team. The composite unique index on
// (user_id, team_id) is the concurrency backstop for duplicate joins;
// leaving a team flips IsActive instead of deleting the row.
type TeamMember struct {
	BaseModel

	UserID string `gorm:"type:uuid;not null;uniqueIndex:idx_team_members_user_team" json:"user_id"`
	User   *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`

	TeamID string `gorm:"type:uuid;not null;uniqueIndex:idx_team_members_user_team" json:"team_id"`
	Team   *Team  `gorm:"foreignKey:TeamID" json:"team,omitempty"`

	Role     string    `gorm:"not null;default:member" json:"role"`
	IsActive bool      `gorm:"default:true" json:"is_active"`
	JoinedAt time.Time `json:"joined_at"`
}

// CanManageMembers reports whether this membership allows removing other
// members and regenerating the invite code.
func (m *TeamMember) CanManageMembers() bool {
	return m.Role == TeamRoleOwner || m.Role == TeamRoleAdmin
}
