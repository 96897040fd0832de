package models

// Team groups users for shared activity tracking. InviteCode is a short,
// globally unique code that lets anyone holding it join as a member.
type Team struct {
	BaseModel

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	InviteCode  string `gorm:"uniqueIndex;not null" json:"invite_code"`

	CreatorID string `gorm:"type:uuid;not null" json:"creator_id"`
	Creator   *User  `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`

	Members []TeamMember `gorm:"foreignKey:TeamID" json:"members,omitempty"`
}
