package lifecycle

import (
	"context"
	"database/sql"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/crewware/teamcore/pkg/audit"
	"github.com/crewware/teamcore/pkg/groups"
	"github.com/crewware/teamcore/pkg/observability"
	"github.com/crewware/teamcore/pkg/orgtree"
	"github.com/crewware/teamcore/pkg/perm"
	"github.com/crewware/teamcore/pkg/resources"
	"github.com/crewware/teamcore/pkg/team"
)

// Lifecycle drives the member state machine and the departure
// sequence that reassigns a departing member's resources to the team
// owner.
type Lifecycle struct {
	db         *sql.DB
	teams      *team.Store
	groups     *groups.Store
	orgs       *orgtree.Store
	ledger     *perm.Ledger
	registry   *resources.Registry
	departures *DepartureStore
	audit      *audit.Recorder
	log        *logrus.Logger
	metrics    *observability.Metrics
}

// NewLifecycle wires the departure dependencies. The audit recorder and
// metrics may be nil.
func NewLifecycle(db *sql.DB, teams *team.Store, groupStore *groups.Store, orgStore *orgtree.Store, ledger *perm.Ledger, registry *resources.Registry, auditRec *audit.Recorder, log *logrus.Logger, metrics *observability.Metrics) *Lifecycle {
	if log == nil {
		log = logrus.New()
	}
	return &Lifecycle{
		db:         db,
		teams:      teams,
		groups:     groupStore,
		orgs:       orgStore,
		ledger:     ledger,
		registry:   registry,
		departures: NewDepartureStore(db),
		audit:      auditRec,
		log:        log,
		metrics:    metrics,
	}
}

// Departures exposes the resume-point store
func (l *Lifecycle) Departures() *DepartureStore {
	return l.departures
}

// Leave processes a member leaving of their own accord
func (l *Lifecycle) Leave(ctx context.Context, memberID int64) (*Departure, error) {
	return l.depart(ctx, memberID, ReasonLeave)
}

// Remove processes an administrative removal
func (l *Lifecycle) Remove(ctx context.Context, memberID int64) (*Departure, error) {
	return l.depart(ctx, memberID, ReasonRemove)
}

// Restore returns a previously departed member to active status. Their
// grants and memberships are not restored; those were handed off or
// cleared for good.
func (l *Lifecycle) Restore(ctx context.Context, memberID int64) error {
	member, err := l.teams.GetMember(ctx, memberID)
	if err != nil {
		return trace.Wrap(err)
	}
	if member.Status != team.StatusForbidden {
		return trace.BadParameter("member %d is not in a restorable state", memberID)
	}
	if err := l.teams.SetMemberStatus(ctx, memberID, team.StatusActive); err != nil {
		return trace.Wrap(err)
	}
	l.recordAudit(ctx, audit.Entry{
		TeamID: member.TeamID, ActorMemberID: memberID, Event: audit.EventMemberRestore,
	})
	return nil
}

// HardDelete permanently removes a departed member together with the
// backing user account. Only forbidden members qualify and the team
// owner never does.
func (l *Lifecycle) HardDelete(ctx context.Context, memberID int64) error {
	member, err := l.teams.GetMember(ctx, memberID)
	if err != nil {
		return trace.Wrap(err)
	}
	if member.Role == team.RoleOwner {
		return trace.AlreadyExists("team owner cannot be deleted")
	}
	if member.Status != team.StatusForbidden {
		return trace.BadParameter("member %d must be removed before deletion", memberID)
	}
	if err := l.teams.DeleteMemberAndUser(ctx, memberID); err != nil {
		return trace.Wrap(err)
	}
	l.recordAudit(ctx, audit.Entry{
		TeamID: member.TeamID, ActorMemberID: memberID, Event: audit.EventMemberDelete,
	})
	return nil
}

// Retry re-runs a failed departure from the top. All steps before the
// status flip are idempotent so a blind re-run is safe.
func (l *Lifecycle) Retry(ctx context.Context, departureID string) error {
	d, err := l.departures.Get(ctx, departureID)
	if err != nil {
		return trace.Wrap(err)
	}
	if d.Status != DepartureFailed {
		return trace.BadParameter("departure %s is %s, only failed departures can be retried", d.ID, d.Status)
	}

	member, err := l.teams.GetMember(ctx, d.MemberID)
	if err != nil {
		return trace.Wrap(err)
	}
	if !member.IsActive() {
		// The status flip already happened; mark the record done.
		d.Status = DepartureCompleted
		d.Error = ""
		return trace.Wrap(l.departures.Update(ctx, d))
	}

	d.Status = DepartureRunning
	d.Error = ""
	d.Attempts++
	if err := l.departures.Update(ctx, d); err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(l.run(ctx, d))
}

func (l *Lifecycle) depart(ctx context.Context, memberID int64, reason Reason) (*Departure, error) {
	member, err := l.teams.GetMember(ctx, memberID)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if member.Role == team.RoleOwner {
		return nil, trace.AlreadyExists("team owner cannot depart, transfer ownership first")
	}
	if !member.IsActive() {
		return nil, trace.AlreadyExists("member %d already departed", memberID)
	}

	owner, err := l.teams.Owner(ctx, member.TeamID)
	if err != nil {
		l.recordDeparture(reason, "owner_missing")
		return nil, trace.Wrap(err)
	}

	d, err := l.departures.Create(ctx, member.TeamID, memberID, owner.ID, reason)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	if err := l.run(ctx, d); err != nil {
		return d, err
	}
	return d, nil
}

// run executes the departure steps in order, persisting the resume
// point after each one.
func (l *Lifecycle) run(ctx context.Context, d *Departure) error {
	log := l.log.WithFields(logrus.Fields{
		"departure": d.ID,
		"team":      d.TeamID,
		"member":    d.MemberID,
		"reason":    d.Reason,
	})

	step := func(s Step, fn func() error) error {
		d.Step = s
		if err := fn(); err != nil {
			l.recordStep(s, "error")
			d.Status = DepartureFailed
			d.Error = err.Error()
			if updateErr := l.departures.Update(ctx, d); updateErr != nil {
				log.WithError(updateErr).Error("failed to persist departure failure")
			}
			log.WithError(err).WithField("step", s).Error("departure step failed")
			l.recordDeparture(d.Reason, "failed")
			return &PartialFailureError{
				DepartureID: d.ID,
				Step:        s,
				Completed:   d.Counts,
				Retryable:   true,
				Err:         err,
			}
		}
		l.recordStep(s, "ok")
		if err := l.departures.Update(ctx, d); err != nil {
			log.WithError(err).WithField("step", s).Warn("failed to persist departure progress")
		}
		return nil
	}

	err := step(StepReassignResources, func() error {
		for _, c := range l.registry.Collections() {
			moved, err := c.ReassignOwner(ctx, l.db, d.TeamID, d.MemberID, d.OwnerMemberID)
			if err != nil {
				return trace.Wrap(err, "reassigning %s", c.Name)
			}
			d.Counts.Reassigned[c.Name] += moved
			if l.metrics != nil && moved > 0 {
				l.metrics.ResourcesReassignedTotal.WithLabelValues(c.Name).Add(float64(moved))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = step(StepRevokeGrants, func() error {
		revoked, err := l.ledger.RevokeAllForPrincipal(ctx, d.TeamID, perm.MemberPrincipal(d.MemberID))
		if err != nil {
			return trace.Wrap(err)
		}
		d.Counts.GrantsRevoked += revoked
		return nil
	})
	if err != nil {
		return err
	}

	err = step(StepClearMemberships, func() error {
		cleared, err := l.groups.RemoveAllForMember(ctx, d.TeamID, d.MemberID)
		if err != nil {
			return trace.Wrap(err)
		}
		d.Counts.GroupsCleared += cleared

		cleared, err = l.orgs.RemoveAllForMember(ctx, d.TeamID, d.MemberID)
		if err != nil {
			return trace.Wrap(err)
		}
		d.Counts.OrgsCleared += cleared
		return nil
	})
	if err != nil {
		return err
	}

	err = step(StepSetStatus, func() error {
		return trace.Wrap(l.teams.SetMemberStatus(ctx, d.MemberID, team.StatusForbidden))
	})
	if err != nil {
		return err
	}

	d.Status = DepartureCompleted
	if err := l.departures.Update(ctx, d); err != nil {
		// The flip landed but the record did not. Put the member back
		// so the sweeper can run the sequence again cleanly.
		if rollbackErr := l.teams.SetMemberStatus(ctx, d.MemberID, team.StatusActive); rollbackErr != nil {
			log.WithError(rollbackErr).Error("failed to roll back member status")
		}
		l.recordDeparture(d.Reason, "failed")
		return trace.Wrap(err)
	}

	log.WithField("counts", d.Counts).Info("departure completed")
	l.recordDeparture(d.Reason, "completed")

	event := audit.EventMemberLeave
	if d.Reason == ReasonRemove {
		event = audit.EventMemberRemove
	}
	l.recordAudit(ctx, audit.Entry{
		TeamID:        d.TeamID,
		ActorMemberID: d.MemberID,
		Event:         event,
		Detail: map[string]interface{}{
			"departureId":   d.ID,
			"ownerMemberId": d.OwnerMemberID,
		},
	})
	return nil
}

// recordAudit is best effort; the action already happened.
func (l *Lifecycle) recordAudit(ctx context.Context, e audit.Entry) {
	if l.audit == nil {
		return
	}
	if err := l.audit.Record(ctx, e); err != nil {
		l.log.WithError(err).WithField("event", e.Event).Warn("failed to record audit entry")
	}
}

func (l *Lifecycle) recordStep(s Step, outcome string) {
	if l.metrics != nil {
		l.metrics.DepartureStepsTotal.WithLabelValues(string(s), outcome).Inc()
	}
}

func (l *Lifecycle) recordDeparture(reason Reason, outcome string) {
	if l.metrics != nil {
		l.metrics.DeparturesTotal.WithLabelValues(string(reason), outcome).Inc()
	}
}
