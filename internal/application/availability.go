package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/worship-scheduler/internal/instance"
	"github.com/example/worship-scheduler/internal/persistence"
	"github.com/example/worship-scheduler/internal/scheduler"
)

// AssignmentReader exposes the scheduled slots of a date for conflict detection.
type AssignmentReader interface {
	Assignments(ctx context.Context, teamID string, date instance.Date) ([]scheduler.Assignment, error)
}

// ConflictRecorder stores detected conflicts.
type ConflictRecorder interface {
	Record(ctx context.Context, teamID string, detected scheduler.Conflict) (ScheduleConflict, error)
}

// availabilityDocument is one member's availability state within a team. A
// key is either pending or responded, never both.
type availabilityDocument struct {
	PendingRequests map[instance.Key]AvailabilityRequest `json:"pendingRequests"`
	MyAvailability  map[instance.Key]MemberAvailability  `json:"myAvailability"`
}

func newAvailabilityDocument() availabilityDocument {
	doc := availabilityDocument{}
	doc.normalize()
	return doc
}

func (d *availabilityDocument) normalize() {
	if d.PendingRequests == nil {
		d.PendingRequests = make(map[instance.Key]AvailabilityRequest)
	}
	if d.MyAvailability == nil {
		d.MyAvailability = make(map[instance.Key]MemberAvailability)
	}
}

// AvailabilitySynchronizer keeps each member's availability requests in line
// with the selected instances and records their responses.
type AvailabilitySynchronizer struct {
	docs        documentStore[availabilityDocument]
	store       persistence.StateStore
	types       ServiceTypeLister
	assignments AssignmentReader
	conflicts   ConflictRecorder
	now         func() time.Time
	logger      *slog.Logger
}

// NewAvailabilitySynchronizer constructs a synchronizer with the provided dependencies.
func NewAvailabilitySynchronizer(store persistence.StateStore, types ServiceTypeLister, assignments AssignmentReader, conflicts ConflictRecorder, now func() time.Time) *AvailabilitySynchronizer {
	return NewAvailabilitySynchronizerWithLogger(store, types, assignments, conflicts, now, nil)
}

// NewAvailabilitySynchronizerWithLogger constructs a synchronizer with a specified logger.
func NewAvailabilitySynchronizerWithLogger(store persistence.StateStore, types ServiceTypeLister, assignments AssignmentReader, conflicts ConflictRecorder, now func() time.Time, logger *slog.Logger) *AvailabilitySynchronizer {
	if now == nil {
		now = time.Now
	}
	return &AvailabilitySynchronizer{
		docs:        newDocumentStore(store, newAvailabilityDocument),
		store:       store,
		types:       types,
		assignments: assignments,
		conflicts:   conflicts,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (a *AvailabilitySynchronizer) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, a.logger, "AvailabilitySynchronizer", operation, attrs...)
}

// SyncFromSelection brings the member's requests in line with keys. Keys no
// longer selected lose both request and response; keys still selected are
// left alone even when their service type has since been deleted. New keys
// get a pending request only when they resolve to a service type, otherwise
// they are reported as skipped.
func (a *AvailabilitySynchronizer) SyncFromSelection(ctx context.Context, params SyncParams) (result SyncResult, err error) {
	if a == nil {
		err = fmt.Errorf("AvailabilitySynchronizer is nil")
		return
	}

	logger := a.loggerWith(ctx, "SyncFromSelection",
		"team_id", params.TeamID,
		"member_id", params.MemberID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to sync availability", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "availability synced",
			"added", len(result.Added),
			"removed", len(result.Removed),
			"kept", len(result.Kept),
			"skipped", len(result.Skipped),
		)
	}()

	vErr := &ValidationError{}
	vErr.requireID("team_id", params.TeamID)
	vErr.requireID("member_id", params.MemberID)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var types []ServiceType
	if a.types != nil {
		if types, err = a.types.List(ctx, params.TeamID); err != nil {
			return
		}
	}
	wanted, skipped := expandKeys(params.Keys, types)
	covered := coverage(params.Keys)

	_, err = a.docs.update(ctx, persistence.AvailabilityNamespace(params.TeamID, params.MemberID), func(doc *availabilityDocument) error {
		result = SyncResult{Skipped: skipped}
		existing := make(map[instance.Key]struct{}, len(doc.PendingRequests)+len(doc.MyAvailability))
		for key := range doc.PendingRequests {
			existing[key] = struct{}{}
		}
		for key := range doc.MyAvailability {
			existing[key] = struct{}{}
		}

		for key := range existing {
			if covered(key) {
				result.Kept = append(result.Kept, key)
				continue
			}
			result.Removed = append(result.Removed, key)
			delete(doc.PendingRequests, key)
			delete(doc.MyAvailability, key)
		}

		requestedAt := a.now()
		for key, st := range wanted {
			if _, ok := existing[key]; ok {
				continue
			}
			result.Added = append(result.Added, key)
			doc.PendingRequests[key] = AvailabilityRequest{
				Key:          key,
				InstanceName: st.Name,
				InstanceTime: st.ServiceTime,
				TeamID:       params.TeamID,
				Deadline:     params.Deadline,
				RequestedAt:  requestedAt,
			}
		}
		return nil
	})
	if err != nil {
		return
	}

	instance.SortKeys(result.Added)
	instance.SortKeys(result.Removed)
	instance.SortKeys(result.Kept)
	return
}

// Respond records the member's answer for key, retires its pending request
// and records any conflict the answer raises against current assignments.
func (a *AvailabilitySynchronizer) Respond(ctx context.Context, params RespondParams) (result RespondResult, err error) {
	if a == nil {
		err = fmt.Errorf("AvailabilitySynchronizer is nil")
		return
	}

	logger := a.loggerWith(ctx, "Respond",
		"team_id", params.TeamID,
		"member_id", params.MemberID,
		"key", params.Key.String(),
		"status", params.Status,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to record availability", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "availability recorded", "conflict", result.Conflict != nil)
	}()

	vErr := &ValidationError{}
	vErr.requireID("team_id", params.TeamID)
	vErr.requireID("member_id", params.MemberID)
	if params.Key.Date.IsZero() {
		vErr.add("key", "is required")
	}
	switch params.Status {
	case scheduler.StatusAvailable, scheduler.StatusUnavailable:
	default:
		vErr.add("status", "must be available or unavailable")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	previous := scheduler.StatusPending
	_, err = a.docs.update(ctx, persistence.AvailabilityNamespace(params.TeamID, params.MemberID), func(doc *availabilityDocument) error {
		_, pending := doc.PendingRequests[params.Key]
		prior, responded := doc.MyAvailability[params.Key]
		if !pending && !responded {
			return fmt.Errorf("availability request %s: %w", params.Key, ErrNotFound)
		}
		if responded {
			previous = prior.Status
		}
		respondedAt := a.now()
		result.Availability = MemberAvailability{
			Key:         params.Key,
			MemberID:    params.MemberID,
			Status:      params.Status,
			RespondedAt: &respondedAt,
			Note:        strings.TrimSpace(params.Note),
		}
		doc.MyAvailability[params.Key] = result.Availability
		delete(doc.PendingRequests, params.Key)
		return nil
	})
	if err != nil {
		return
	}

	if a.assignments == nil || a.conflicts == nil {
		return
	}
	var assignments []scheduler.Assignment
	assignments, err = a.assignments.Assignments(ctx, params.TeamID, params.Key.Date)
	if err != nil {
		err = fmt.Errorf("load assignments: %w", err)
		return
	}
	memberName := firstNonEmpty(params.MemberName, params.MemberID)
	now := a.now()
	detected := scheduler.DetectConflict(params.MemberID, memberName, params.Key.Date, params.Status, assignments, now)
	if detected == nil {
		detected = scheduler.DetectLateAvailability(params.MemberID, memberName, params.Key.Date, previous, params.Status, assignments, now)
	}
	if detected == nil {
		return
	}
	var recorded ScheduleConflict
	recorded, err = a.conflicts.Record(ctx, params.TeamID, *detected)
	if err != nil {
		err = fmt.Errorf("record conflict: %w", err)
		return
	}
	result.Conflict = &recorded
	return
}

// Pending returns the member's outstanding requests ordered by key.
func (a *AvailabilitySynchronizer) Pending(ctx context.Context, teamID, memberID string) ([]AvailabilityRequest, error) {
	if a == nil {
		return nil, fmt.Errorf("AvailabilitySynchronizer is nil")
	}
	if err := memberScope(teamID, memberID); err != nil {
		return nil, err
	}
	doc, err := a.docs.load(ctx, persistence.AvailabilityNamespace(teamID, memberID))
	if err != nil {
		return nil, err
	}
	out := make([]AvailabilityRequest, 0, len(doc.PendingRequests))
	for _, req := range doc.PendingRequests {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Compare(out[j].Key) < 0 })
	return out, nil
}

// Responses returns the member's recorded answers ordered by key.
func (a *AvailabilitySynchronizer) Responses(ctx context.Context, teamID, memberID string) ([]MemberAvailability, error) {
	if a == nil {
		return nil, fmt.Errorf("AvailabilitySynchronizer is nil")
	}
	if err := memberScope(teamID, memberID); err != nil {
		return nil, err
	}
	doc, err := a.docs.load(ctx, persistence.AvailabilityNamespace(teamID, memberID))
	if err != nil {
		return nil, err
	}
	return sortedResponses(doc.MyAvailability), nil
}

// TeamResponses returns every member's answer for key ordered by member id.
func (a *AvailabilitySynchronizer) TeamResponses(ctx context.Context, teamID string, key instance.Key) ([]MemberAvailability, error) {
	if a == nil {
		return nil, fmt.Errorf("AvailabilitySynchronizer is nil")
	}
	vErr := &ValidationError{}
	vErr.requireID("team_id", teamID)
	if err := vErr.errOrNil(); err != nil {
		return nil, err
	}
	namespaces, err := a.store.List(ctx, persistence.AvailabilityPrefix(teamID))
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	out := make([]MemberAvailability, 0, len(namespaces))
	for _, ns := range namespaces {
		if _, ok := persistence.MemberFromAvailabilityNamespace(teamID, ns); !ok {
			continue
		}
		doc, err := a.docs.load(ctx, ns)
		if err != nil {
			return nil, err
		}
		if response, ok := doc.MyAvailability[key]; ok {
			out = append(out, response)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

func memberScope(teamID, memberID string) error {
	vErr := &ValidationError{}
	vErr.requireID("team_id", teamID)
	vErr.requireID("member_id", memberID)
	return vErr.errOrNil()
}

func sortedResponses(responses map[instance.Key]MemberAvailability) []MemberAvailability {
	out := make([]MemberAvailability, 0, len(responses))
	for _, r := range responses {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Compare(out[j].Key) < 0 })
	return out
}

// coverage reports whether an existing key is still selected: either named
// exactly or covered by a whole-date key for its date.
func coverage(keys []instance.Key) func(instance.Key) bool {
	exact := make(map[instance.Key]struct{}, len(keys))
	dates := make(map[instance.Date]struct{})
	for _, key := range keys {
		exact[key] = struct{}{}
		if key.Instance.Kind() == instance.KindDate {
			dates[key.Date] = struct{}{}
		}
	}
	return func(key instance.Key) bool {
		if _, ok := exact[key]; ok {
			return true
		}
		_, ok := dates[key.Date]
		return ok
	}
}

// expandKeys resolves keys to templated keys. Whole-date keys expand to every
// service type whose default weekday matches; keys without a matching type
// are returned as skipped.
func expandKeys(keys []instance.Key, types []ServiceType) (map[instance.Key]ServiceType, []instance.Key) {
	byID := make(map[string]ServiceType, len(types))
	for _, st := range types {
		byID[st.ID] = st
	}
	wanted := make(map[instance.Key]ServiceType, len(keys))
	skippedSet := make(map[instance.Key]struct{})
	skipped := make([]instance.Key, 0)
	skip := func(key instance.Key) {
		if _, ok := skippedSet[key]; ok {
			return
		}
		skippedSet[key] = struct{}{}
		skipped = append(skipped, key)
	}

	for _, key := range keys {
		switch key.Instance.Kind() {
		case instance.KindTemplated:
			id, _ := key.Instance.ServiceTypeID()
			st, ok := byID[id]
			if !ok {
				skip(key)
				continue
			}
			wanted[key] = st
		case instance.KindAdhoc:
			skip(key)
		default:
			matches := typesForDate(types, key.Date)
			if len(matches) == 0 {
				skip(key)
				continue
			}
			for _, st := range matches {
				wanted[instance.MakeKey(key.Date, instance.Templated(st.ID))] = st
			}
		}
	}
	return wanted, instance.SortKeys(skipped)
}
