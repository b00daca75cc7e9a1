package collab

import (
	"bytes"
	"encoding/json"

	"github.com/crewware/teamcore/pkg/perm"
)

// Entry names one principal in an assignment batch. A per-entry
// Permission overrides the batch default for that principal.
type Entry struct {
	ID         int64         `json:"id"`
	Permission *perm.Bitmask `json:"permission,omitempty"`
}

// UnmarshalJSON accepts either an {id, permission} object or a bare
// numeric id, the older wire form with no per-entry override.
func (e *Entry) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] != '{' {
		return json.Unmarshal(trimmed, &e.ID)
	}
	type plain Entry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = Entry(p)
	return nil
}

// UpdateRequest carries one collaborator assignment batch. At least one
// of the principal lists must be present. A nil batch Permission means
// entries without their own override receive the default read
// permission.
type UpdateRequest struct {
	TeamID       int64             `json:"teamId"`
	ResourceType perm.ResourceType `json:"resourceType"`
	ResourceID   int64             `json:"resourceId"`
	Members      []Entry           `json:"members,omitempty"`
	Groups       []Entry           `json:"groups,omitempty"`
	Orgs         []Entry           `json:"orgs,omitempty"`
	Permission   *perm.Bitmask     `json:"permission,omitempty"`
}

// KindCounts reports how many principals of one kind were granted and
// how many were dropped as unknown or inactive.
type KindCounts struct {
	Applied int `json:"applied"`
	Ignored int `json:"ignored"`
}

// UpdateResult summarizes an assignment batch per principal kind
type UpdateResult struct {
	Members KindCounts `json:"members"`
	Groups  KindCounts `json:"groups"`
	Orgs    KindCounts `json:"orgs"`
}

// Total returns the number of grants written
func (r UpdateResult) Total() int {
	return r.Members.Applied + r.Groups.Applied + r.Orgs.Applied
}

// Collaborator is one principal's standing on a resource, decorated
// with display fields for listing.
type Collaborator struct {
	Principal  perm.Principal `json:"-"`
	Kind       string         `json:"kind"`
	ID         int64          `json:"id"`
	Permission perm.Bitmask   `json:"permission"`
	Name       string         `json:"name"`
	Avatar     string         `json:"avatar,omitempty"`
}
