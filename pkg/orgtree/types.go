// Package orgtree maintains a team's organizational hierarchy: a forest of
// named nodes with parent references, a materialized ancestor/descendant
// closure index, and node-level memberships.
package orgtree

import (
	"time"
)

// MaxNodeNameLength bounds org node names
const MaxNodeNameLength = 50

// Node represents one organizational unit within a team. Root nodes have a
// nil ParentID; there are no path strings, ancestry lives in the closure
// index.
type Node struct {
	ID          int64     `json:"id"`
	TeamID      int64     `json:"team_id"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	Name        string    `json:"name"`
	Avatar      string    `json:"avatar,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsRoot reports whether the node is a top-level unit
func (n *Node) IsRoot() bool {
	return n.ParentID == nil
}

// Membership links a member to one org node. A member may belong to any
// number of nodes.
type Membership struct {
	OrgID    int64 `json:"org_id"`
	MemberID int64 `json:"member_id"`
}
