// Package groups manages named member groups within a team. Groups are flat
// (no nesting) and each group with members has exactly one owner-role member.
package groups

import (
	"time"
)

// Role represents a member's role within a group
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

// Group represents a member group. Names are unique per team.
type Group struct {
	ID        int64     `json:"id"`
	TeamID    int64     `json:"team_id"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Membership links a member to a group with a group-level role
type Membership struct {
	GroupID  int64 `json:"group_id"`
	MemberID int64 `json:"member_id"`
	Role     Role  `json:"role"`
}
