package team

import (
	"time"
)

// Role represents a member's role within a team
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether the role is one of the known values
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// Status represents a member's lifecycle status
type Status string

const (
	// StatusActive is the normal state of a member after joining
	StatusActive Status = "active"
	// StatusForbidden marks a member that was removed or left the team
	StatusForbidden Status = "forbidden"
)

// Team represents a team
type Team struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member represents a user's membership record within one team.
// A user has at most one member record per team.
type Member struct {
	ID        int64     `json:"id"`
	TeamID    int64     `json:"team_id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar,omitempty"`
	Role      Role      `json:"role"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the member can act within the team
func (m *Member) IsActive() bool {
	return m.Status == StatusActive
}
