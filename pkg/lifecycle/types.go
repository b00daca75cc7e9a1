package lifecycle

import (
	"fmt"
	"time"
)

// Reason records why a member departed
type Reason string

const (
	ReasonLeave  Reason = "leave"
	ReasonRemove Reason = "remove"
)

// Step identifies one stage of the departure sequence. Every step
// before the status flip is idempotent, so a failed departure can be
// re-run from the top.
type Step string

const (
	StepResolveOwner      Step = "resolve_owner"
	StepReassignResources Step = "reassign_resources"
	StepRevokeGrants      Step = "revoke_grants"
	StepClearMemberships  Step = "clear_memberships"
	StepSetStatus         Step = "set_status"
)

// DepartureStatus tracks a departure record through its lifetime
type DepartureStatus string

const (
	DepartureRunning   DepartureStatus = "running"
	DepartureCompleted DepartureStatus = "completed"
	DepartureFailed    DepartureStatus = "failed"
)

// Counts accumulates what each step touched
type Counts struct {
	Reassigned    map[string]int64 `json:"reassigned,omitempty"`
	GrantsRevoked int64            `json:"grantsRevoked"`
	GroupsCleared int64            `json:"groupsCleared"`
	OrgsCleared   int64            `json:"orgsCleared"`
}

// Departure is the persisted resume point for one leave or removal
type Departure struct {
	ID            string          `json:"id"`
	TeamID        int64           `json:"teamId"`
	MemberID      int64           `json:"memberId"`
	OwnerMemberID int64           `json:"ownerMemberId"`
	Reason        Reason          `json:"reason"`
	Step          Step            `json:"step"`
	Status        DepartureStatus `json:"status"`
	Counts        Counts          `json:"counts"`
	Error         string          `json:"error,omitempty"`
	Attempts      int             `json:"attempts"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// PartialFailureError reports a departure that stopped partway. The
// completed counts describe work already applied; Retryable is false
// only for failures that re-running cannot fix.
type PartialFailureError struct {
	DepartureID string
	Step        Step
	Completed   Counts
	Retryable   bool
	Err         error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("departure %s failed at step %s: %v", e.DepartureID, e.Step, e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}
