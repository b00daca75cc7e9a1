// Package perm stores resource access grants and resolves the effective
// permission of a team member on a resource. Grants target a principal
// (a member, a group, or an org node) and permissions are OR-combined
// bitmasks.
package perm

import (
	"fmt"
	"time"

	"github.com/gravitational/trace"
)

// ResourceType identifies a kind of grantable resource
type ResourceType string

const (
	ResourceTeam    ResourceType = "team"
	ResourceApp     ResourceType = "app"
	ResourceDataset ResourceType = "dataset"
)

// Valid reports whether the resource type is known
func (r ResourceType) Valid() bool {
	switch r {
	case ResourceTeam, ResourceApp, ResourceDataset:
		return true
	}
	return false
}

// Bitmask is a permission bitmask. Bits are OR-combined across every grant
// that applies to a member.
type Bitmask uint32

// Permission bit layout, matching the values clients already store:
// read 0b100, write 0b110, manage 0b111. Write implies read and manage
// implies both, by construction of the composite values.
const (
	ReadBit   Bitmask = 0b100
	WriteBit  Bitmask = 0b010
	ManageBit Bitmask = 0b001

	ReadPermission   = ReadBit                       // 4
	WritePermission  = ReadBit | WriteBit            // 6
	ManagePermission = ReadBit | WriteBit | ManageBit // 7

	// FullAccess is what the team owner resolves to on the team resource
	FullAccess = ManagePermission

	// DefaultPermission applies to collaborator entries without an explicit
	// permission value
	DefaultPermission = ReadPermission
)

// HasRead reports whether the mask includes the read capability
func (b Bitmask) HasRead() bool { return b&ReadBit != 0 }

// HasWrite reports whether the mask includes the write capability
func (b Bitmask) HasWrite() bool { return b&WriteBit != 0 }

// HasManage reports whether the mask includes the manage capability
func (b Bitmask) HasManage() bool { return b&ManageBit != 0 }

// PrincipalKind discriminates the principal union
type PrincipalKind string

const (
	KindMember PrincipalKind = "member"
	KindGroup  PrincipalKind = "group"
	KindOrg    PrincipalKind = "org"
)

// Principal is the identity a grant targets: exactly one of a team member, a
// group, or an org node. The zero value is invalid; construct through
// MemberPrincipal, GroupPrincipal or OrgPrincipal.
type Principal struct {
	kind PrincipalKind
	id   int64
}

// MemberPrincipal returns a principal addressing a team member
func MemberPrincipal(memberID int64) Principal {
	return Principal{kind: KindMember, id: memberID}
}

// GroupPrincipal returns a principal addressing a group
func GroupPrincipal(groupID int64) Principal {
	return Principal{kind: KindGroup, id: groupID}
}

// OrgPrincipal returns a principal addressing an org node
func OrgPrincipal(orgID int64) Principal {
	return Principal{kind: KindOrg, id: orgID}
}

// NewPrincipal builds a principal from its kind name, validating it
func NewPrincipal(kind PrincipalKind, id int64) (Principal, error) {
	switch kind {
	case KindMember, KindGroup, KindOrg:
	default:
		return Principal{}, trace.BadParameter("unknown principal kind %q", kind)
	}
	if id <= 0 {
		return Principal{}, trace.BadParameter("principal id must be positive, got %d", id)
	}
	return Principal{kind: kind, id: id}, nil
}

// Kind returns the principal's kind
func (p Principal) Kind() PrincipalKind { return p.kind }

// ID returns the principal's identifier
func (p Principal) ID() int64 { return p.id }

// IsZero reports whether the principal was never constructed
func (p Principal) IsZero() bool { return p.kind == "" }

// String implements fmt.Stringer
func (p Principal) String() string {
	return fmt.Sprintf("%s:%d", p.kind, p.id)
}

// Grant is one (resource, principal) permission record
type Grant struct {
	ID           int64        `json:"id"`
	TeamID       int64        `json:"team_id"`
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   int64        `json:"resource_id"`
	Principal    Principal    `json:"-"`
	Permission   Bitmask      `json:"permission"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// PrincipalSet is the expansion of one member into every identity that may
// carry a grant applying to it.
type PrincipalSet struct {
	MemberID int64
	TeamID   int64
	GroupIDs []int64
	// OrgIDs contains every org node the member directly belongs to plus all
	// ancestors of those nodes
	OrgIDs []int64
}
