package application

import (
	"time"

	"github.com/example/worship-scheduler/internal/instance"
	"github.com/example/worship-scheduler/internal/remote"
	"github.com/example/worship-scheduler/internal/scheduler"
)

// Principal represents the team member invoking a service method.
type Principal struct {
	MemberID string
	IsLeader bool
}

// ScheduleType distinguishes recurring templates from ones placed by hand.
type ScheduleType string

const (
	ScheduleTypeWeekly   ScheduleType = "weekly"
	ScheduleTypeFlexible ScheduleType = "flexible"
)

// RehearsalType describes when a service rehearses.
type RehearsalType string

const (
	RehearsalNone        RehearsalType = "none"
	RehearsalSameDay     RehearsalType = "same_day"
	RehearsalSeparateDay RehearsalType = "separate_day"
)

// ServiceType is a named recurring service template belonging to a team.
type ServiceType struct {
	ID             string        `json:"id"`
	TeamID         string        `json:"teamId"`
	Name           string        `json:"name"`
	ScheduleType   ScheduleType  `json:"scheduleType"`
	DefaultWeekday *time.Weekday `json:"defaultWeekday,omitempty"`
	ServiceTime    string        `json:"serviceTime,omitempty"`
	RehearsalType  RehearsalType `json:"rehearsalType"`
	RehearsalTime  string        `json:"rehearsalTime,omitempty"`
	Order          int           `json:"order"`
	IsPrimary      bool          `json:"isPrimary"`
}

// ServiceTypeInput captures caller provided service type fields.
type ServiceTypeInput struct {
	ID             string
	Name           string
	ScheduleType   ScheduleType
	DefaultWeekday *time.Weekday
	ServiceTime    string
	RehearsalType  RehearsalType
	RehearsalTime  string
	Order          *int
	IsPrimary      bool
}

// ServiceTypePatch carries a partial update; nil fields are left unchanged.
type ServiceTypePatch struct {
	Name           *string
	ScheduleType   *ScheduleType
	DefaultWeekday *time.Weekday
	ClearWeekday   bool
	ServiceTime    *string
	RehearsalType  *RehearsalType
	RehearsalTime  *string
	Order          *int
	IsPrimary      *bool
}

// AddServiceTypeParams wraps the data required to register a service type.
type AddServiceTypeParams struct {
	Principal Principal
	TeamID    string
	Input     ServiceTypeInput
}

// UpdateServiceTypeParams wraps the data required to patch a service type.
type UpdateServiceTypeParams struct {
	Principal     Principal
	TeamID        string
	ServiceTypeID string
	Patch         ServiceTypePatch
}

// DeleteServiceTypeParams identifies a service type to remove.
type DeleteServiceTypeParams struct {
	Principal     Principal
	TeamID        string
	ServiceTypeID string
}

// SelectedInstance is one selected calendar cell resolved to its service time.
type SelectedInstance struct {
	Key         instance.Key `json:"key"`
	ServiceTime string       `json:"serviceTime,omitempty"`
	Label       string       `json:"label,omitempty"`
}

// AdhocService configures a one-off service. Ordinal is assigned once and never reused.
type AdhocService struct {
	Date        instance.Date `json:"date"`
	Ordinal     int           `json:"ordinal"`
	ServiceTime string        `json:"serviceTime"`
	Label       string        `json:"label,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Key returns the instance key of the ad-hoc service.
func (a AdhocService) Key() instance.Key {
	return instance.MakeKey(a.Date, instance.Adhoc(a.Ordinal))
}

// Selection is the leader's current calendar selection for a team.
type Selection struct {
	TeamID      string
	Keys        []instance.Key
	Instances   []SelectedInstance
	Adhoc       []AdhocService
	IsConfirmed bool
	PeriodTitle string
	Deadline    *time.Time
	// Reconciled spans every date a reconciliation pass has covered.
	Reconciled *DateRange
}

// DateRange is an inclusive range of service dates.
type DateRange struct {
	From instance.Date `json:"from"`
	To   instance.Date `json:"to"`
}

// IsZero reports whether the range is unset.
func (r DateRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero()
}

// Union returns the smallest range covering both r and other.
func (r DateRange) Union(other DateRange) DateRange {
	if r.IsZero() {
		return other
	}
	if other.IsZero() {
		return r
	}
	if other.From.Before(r.From) {
		r.From = other.From
	}
	if other.To.After(r.To) {
		r.To = other.To
	}
	return r
}

// SelectParams identifies a calendar cell to select or deselect.
type SelectParams struct {
	Principal Principal
	TeamID    string
	Key       instance.Key
}

// AddAdhocParams configures a new ad-hoc service.
type AddAdhocParams struct {
	Principal   Principal
	TeamID      string
	Date        instance.Date
	ServiceTime string
	Label       string
}

// UpdateAdhocParams changes the start time of an ad-hoc service.
type UpdateAdhocParams struct {
	Principal   Principal
	TeamID      string
	Key         instance.Key
	ServiceTime string
}

// TeamParams identifies a team-wide operation.
type TeamParams struct {
	Principal Principal
	TeamID    string
}

// SetPeriodParams names the requested availability period.
type SetPeriodParams struct {
	Principal Principal
	TeamID    string
	Title     string
	Deadline  *time.Time
}

// AvailabilityRequest is an outstanding ask for a member to respond about one instance.
type AvailabilityRequest struct {
	Key          instance.Key `json:"key"`
	InstanceName string       `json:"instanceName"`
	InstanceTime string       `json:"instanceTime,omitempty"`
	TeamID       string       `json:"teamId"`
	Deadline     *time.Time   `json:"deadline,omitempty"`
	RequestedAt  time.Time    `json:"requestedAt"`
}

// MemberAvailability is a member's recorded answer for one instance.
type MemberAvailability struct {
	Key         instance.Key                 `json:"key"`
	MemberID    string                       `json:"memberId"`
	Status      scheduler.AvailabilityStatus `json:"status"`
	RespondedAt *time.Time                   `json:"respondedAt,omitempty"`
	Note        string                       `json:"note,omitempty"`
}

// SyncParams requests availability for the given keys from one member.
type SyncParams struct {
	TeamID   string
	MemberID string
	Keys     []instance.Key
	Deadline *time.Time
}

// SyncResult partitions the synchronized keys.
type SyncResult struct {
	Added   []instance.Key
	Removed []instance.Key
	Kept    []instance.Key
	Skipped []instance.Key
}

// RespondParams records a member's answer for one instance.
type RespondParams struct {
	TeamID     string
	MemberID   string
	MemberName string
	Key        instance.Key
	Status     scheduler.AvailabilityStatus
	Note       string
}

// RespondResult returns the stored response and any conflict it raised.
type RespondResult struct {
	Availability MemberAvailability
	Conflict     *ScheduleConflict
}

// ScheduleStatus is the lifecycle state of one instance's assignments.
type ScheduleStatus string

const (
	ScheduleDraft     ScheduleStatus = "draft"
	ScheduleComplete  ScheduleStatus = "complete"
	SchedulePublished ScheduleStatus = "published"
)

// InstrumentSetup configures how many slots an instrument has for one instance.
type InstrumentSetup struct {
	Enabled bool `json:"enabled"`
	Count   int  `json:"count"`
}

// ScheduleInstance holds the assignments of one service instance keyed by slot.
type ScheduleInstance struct {
	Key              instance.Key               `json:"key"`
	Assignments      map[string]string          `json:"assignments"`
	InstrumentSetups map[string]InstrumentSetup `json:"instrumentSetups"`
	Status           ScheduleStatus             `json:"status"`
	UpdatedAt        time.Time                  `json:"updatedAt"`
}

// ScheduleInput captures caller provided schedule fields.
type ScheduleInput struct {
	Assignments      map[string]string
	InstrumentSetups map[string]InstrumentSetup
	Status           ScheduleStatus
	Reopen           bool
}

// SaveScheduleParams wraps the data required to save a schedule.
type SaveScheduleParams struct {
	Principal Principal
	TeamID    string
	Key       instance.Key
	Input     ScheduleInput
}

// ScheduleConflict is a persisted conflict record.
type ScheduleConflict struct {
	ID             string                 `json:"id"`
	TeamID         string                 `json:"teamId"`
	MemberID       string                 `json:"memberId"`
	MemberName     string                 `json:"memberName"`
	ServiceDate    instance.Date          `json:"serviceDate"`
	ServiceName    string                 `json:"serviceName"`
	InstrumentID   string                 `json:"instrumentId,omitempty"`
	InstrumentName string                 `json:"instrumentName,omitempty"`
	ConflictType   scheduler.ConflictType `json:"conflictType"`
	CreatedAt      time.Time              `json:"createdAt"`
	IsResolved     bool                   `json:"isResolved"`
	ResolvedAt     *time.Time             `json:"resolvedAt,omitempty"`
}

// ResolveConflictParams identifies a conflict to mark resolved.
type ResolveConflictParams struct {
	Principal  Principal
	TeamID     string
	ConflictID string
}

// ReconcileParams scopes one reconciliation pass. A nil Selection reads the
// stored selection of the team.
type ReconcileParams struct {
	Principal Principal
	TeamID    string
	From      instance.Date
	To        instance.Date
	Selection []SelectedInstance
}

// PlannedCreate is a remote record the reconciler will create.
type PlannedCreate struct {
	BusinessKey instance.BusinessKey
	Key         instance.Key
	Name        string
	StartTime   string
}

// ReconcilePlan lists the operations of a reconciliation pass.
type ReconcilePlan struct {
	Window     DateRange
	Create     []PlannedCreate
	Delete     []remote.Service
	Publish    []remote.Service
	Unchanged  []remote.Service
	Duplicates []remote.Service
	Orphans    []instance.Key
}

// ReconcileFailure records one remote mutation that did not succeed.
type ReconcileFailure struct {
	Operation   string
	BusinessKey instance.BusinessKey
	ServiceID   string
	Err         error
}

// ReconcileResult reports the outcome of a reconciliation pass.
type ReconcileResult struct {
	Created    []remote.Service
	Published  []remote.Service
	Deleted    []remote.Service
	Unchanged  []remote.Service
	Failures   []ReconcileFailure
	Duplicates []remote.Service
	Orphans    []instance.Key
}

// PublishParams identifies a schedule to publish.
type PublishParams struct {
	Principal Principal
	TeamID    string
	Key       instance.Key
}

// PublishResult reports the remote side effects of publishing a schedule.
type PublishResult struct {
	Schedule ScheduleInstance
	Service  *remote.Service
	Roles    []remote.Role
	Failures []ReconcileFailure
}
