package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/worship-scheduler/internal/instance"
	"github.com/example/worship-scheduler/internal/persistence"
	"github.com/example/worship-scheduler/internal/scheduler"
)

// DefaultAdhocTime is the start time of ad-hoc services configured without one.
const DefaultAdhocTime = "10:00"

// schedulingDocument is the persisted scheduling state of one team.
type schedulingDocument struct {
	SelectedDates    []instance.Key                    `json:"selectedDates"`
	AdhocServices    []AdhocService                    `json:"adhocServices"`
	NextAdhocOrdinal map[string]int                    `json:"nextAdhocOrdinal"`
	Schedules        map[instance.Key]ScheduleInstance `json:"schedules"`
	IsConfirmed      bool                              `json:"isConfirmed"`
	PeriodTitle      string                            `json:"periodTitle,omitempty"`
	Deadline         *time.Time                        `json:"deadline,omitempty"`
	Reconciled       *DateRange                        `json:"reconciled,omitempty"`
}

func newSchedulingDocument() schedulingDocument {
	doc := schedulingDocument{}
	doc.normalize()
	return doc
}

func (d *schedulingDocument) normalize() {
	if d.SelectedDates == nil {
		d.SelectedDates = []instance.Key{}
	}
	if d.AdhocServices == nil {
		d.AdhocServices = []AdhocService{}
	}
	if d.NextAdhocOrdinal == nil {
		d.NextAdhocOrdinal = make(map[string]int)
	}
	if d.Schedules == nil {
		d.Schedules = make(map[instance.Key]ScheduleInstance)
	}
}

// ScheduleStore owns a team's selection, ad-hoc services and per-instance
// assignments.
type ScheduleStore struct {
	docs      documentStore[schedulingDocument]
	types     ServiceTypeLister
	adhocTime string
	focus     *FocusTracker
	now       func() time.Time
	logger    *slog.Logger
}

// NewScheduleStore constructs a schedule store with the provided dependencies.
func NewScheduleStore(store persistence.StateStore, types ServiceTypeLister, adhocTime string, now func() time.Time) *ScheduleStore {
	return NewScheduleStoreWithLogger(store, types, adhocTime, now, nil)
}

// NewScheduleStoreWithLogger constructs a schedule store with a specified logger.
func NewScheduleStoreWithLogger(store persistence.StateStore, types ServiceTypeLister, adhocTime string, now func() time.Time, logger *slog.Logger) *ScheduleStore {
	if now == nil {
		now = time.Now
	}
	if !instance.ValidClock(adhocTime) {
		adhocTime = DefaultAdhocTime
	}
	return &ScheduleStore{
		docs:      newDocumentStore(store, newSchedulingDocument),
		types:     types,
		adhocTime: adhocTime,
		focus:     NewFocusTrackerWithClock(uuid.NewString, now, DefaultFocusIdle),
		now:       now,
		logger:    defaultLogger(logger),
	}
}

func (s *ScheduleStore) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ScheduleStore", operation, attrs...)
}

func (s *ScheduleStore) listTypes(ctx context.Context, teamID string) ([]ServiceType, error) {
	if s.types == nil {
		return nil, nil
	}
	return s.types.List(ctx, teamID)
}

// Save replaces the assignments of one instance and stamps UpdatedAt. A
// published schedule stays published unless the input re-opens it.
func (s *ScheduleStore) Save(ctx context.Context, params SaveScheduleParams) (schedule ScheduleInstance, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleStore is nil")
		return
	}

	logger := s.loggerWith(ctx, "Save",
		"principal_id", params.Principal.MemberID,
		"team_id", params.TeamID,
		"key", params.Key.String(),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to save schedule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("status", schedule.Status).InfoContext(ctx, "schedule saved")
	}()

	if !params.Principal.IsLeader {
		err = ErrUnauthorized
		return
	}
	if vErr := validateScheduleInput(params.Key, params.Input); vErr.HasErrors() {
		err = vErr
		return
	}

	_, err = s.docs.update(ctx, persistence.SchedulingNamespace(params.TeamID), func(doc *schedulingDocument) error {
		var existing *ScheduleInstance
		if current, ok := doc.Schedules[params.Key]; ok {
			existing = &current
		}
		schedule = ScheduleInstance{
			Key:              params.Key,
			Assignments:      cleanAssignments(params.Input.Assignments),
			InstrumentSetups: cloneSetups(params.Input.InstrumentSetups),
			Status:           PreserveStatus(existing, params.Input.Status, params.Input.Reopen),
			UpdatedAt:        s.now(),
		}
		doc.Schedules[params.Key] = schedule
		return nil
	})
	return
}

// Get returns the schedule of one instance.
func (s *ScheduleStore) Get(ctx context.Context, teamID string, key instance.Key) (ScheduleInstance, error) {
	if s == nil {
		return ScheduleInstance{}, fmt.Errorf("ScheduleStore is nil")
	}
	doc, err := s.docs.load(ctx, persistence.SchedulingNamespace(teamID))
	if err != nil {
		return ScheduleInstance{}, err
	}
	schedule, ok := doc.Schedules[key]
	if !ok {
		return ScheduleInstance{}, fmt.Errorf("schedule %s: %w", key, ErrNotFound)
	}
	return schedule, nil
}

// List returns every stored schedule of the team ordered by key.
func (s *ScheduleStore) List(ctx context.Context, teamID string) ([]ScheduleInstance, error) {
	if s == nil {
		return nil, fmt.Errorf("ScheduleStore is nil")
	}
	doc, err := s.docs.load(ctx, persistence.SchedulingNamespace(teamID))
	if err != nil {
		return nil, err
	}
	out := make([]ScheduleInstance, 0, len(doc.Schedules))
	for _, schedule := range doc.Schedules {
		out = append(out, schedule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Compare(out[j].Key) < 0 })
	return out, nil
}

// Clear removes the schedule of one instance. Clearing a missing schedule is a no-op.
func (s *ScheduleStore) Clear(ctx context.Context, params SelectParams) (err error) {
	if s == nil {
		return fmt.Errorf("ScheduleStore is nil")
	}

	logger := s.loggerWith(ctx, "Clear",
		"principal_id", params.Principal.MemberID,
		"team_id", params.TeamID,
		"key", params.Key.String(),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to clear schedule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "schedule cleared")
	}()

	if !params.Principal.IsLeader {
		err = ErrUnauthorized
		return
	}

	_, err = s.docs.update(ctx, persistence.SchedulingNamespace(params.TeamID), func(doc *schedulingDocument) error {
		delete(doc.Schedules, params.Key)
		return nil
	})
	return
}

// Next returns the first known date strictly after from.
func (s *ScheduleStore) Next(ctx context.Context, teamID string, from instance.Date) (instance.Date, bool, error) {
	dates, err := s.knownDates(ctx, teamID)
	if err != nil {
		return instance.Date{}, false, err
	}
	for _, d := range dates {
		if d.After(from) {
			return d, true, nil
		}
	}
	return instance.Date{}, false, nil
}

// Previous returns the last known date strictly before from.
func (s *ScheduleStore) Previous(ctx context.Context, teamID string, from instance.Date) (instance.Date, bool, error) {
	dates, err := s.knownDates(ctx, teamID)
	if err != nil {
		return instance.Date{}, false, err
	}
	for i := len(dates) - 1; i >= 0; i-- {
		if dates[i].Before(from) {
			return dates[i], true, nil
		}
	}
	return instance.Date{}, false, nil
}

// knownDates returns the sorted distinct dates of selected and scheduled keys.
func (s *ScheduleStore) knownDates(ctx context.Context, teamID string) ([]instance.Date, error) {
	if s == nil {
		return nil, fmt.Errorf("ScheduleStore is nil")
	}
	doc, err := s.docs.load(ctx, persistence.SchedulingNamespace(teamID))
	if err != nil {
		return nil, err
	}
	keys := make([]instance.Key, 0, len(doc.SelectedDates)+len(doc.Schedules))
	keys = append(keys, doc.SelectedDates...)
	for key := range doc.Schedules {
		keys = append(keys, key)
	}
	return instance.DistinctDates(keys), nil
}

// Assignments returns every filled slot scheduled on date, across instances.
func (s *ScheduleStore) Assignments(ctx context.Context, teamID string, date instance.Date) ([]scheduler.Assignment, error) {
	if s == nil {
		return nil, fmt.Errorf("ScheduleStore is nil")
	}
	doc, err := s.docs.load(ctx, persistence.SchedulingNamespace(teamID))
	if err != nil {
		return nil, err
	}
	types, err := s.listTypes(ctx, teamID)
	if err != nil {
		return nil, err
	}
	resolver := newKeyResolver(types, s.adhocTime)
	adhocTimes := adhocTimesByKey(doc.AdhocServices)
	catalogue := NewInstrumentCatalogue(DefaultInstruments)

	keys := make([]instance.Key, 0)
	for key := range doc.Schedules {
		if key.Date == date {
			keys = append(keys, key)
		}
	}
	instance.SortKeys(keys)

	out := make([]scheduler.Assignment, 0)
	for _, key := range keys {
		schedule := doc.Schedules[key]
		name := resolver.serviceName(SelectedInstance{Key: key, ServiceTime: adhocTimes[key]})
		slots := make([]string, 0, len(schedule.Assignments))
		for slot := range schedule.Assignments {
			slots = append(slots, slot)
		}
		sort.Strings(slots)
		for _, slot := range slots {
			instrument := catalogue.Lookup(InstrumentFromSlot(slot))
			out = append(out, scheduler.Assignment{
				ServiceDate:      date,
				ServiceName:      name,
				InstrumentID:     instrument.ID,
				InstrumentName:   instrument.NameEn,
				AssignedMemberID: schedule.Assignments[slot],
			})
		}
	}
	return out, nil
}

// markPublished flips a stored schedule to published.
func (s *ScheduleStore) markPublished(ctx context.Context, teamID string, key instance.Key) (ScheduleInstance, error) {
	var schedule ScheduleInstance
	_, err := s.docs.update(ctx, persistence.SchedulingNamespace(teamID), func(doc *schedulingDocument) error {
		current, ok := doc.Schedules[key]
		if !ok {
			return fmt.Errorf("schedule %s: %w", key, ErrNotFound)
		}
		if current.Status != SchedulePublished {
			current.Status = SchedulePublished
			current.UpdatedAt = s.now()
			doc.Schedules[key] = current
		}
		schedule = current
		return nil
	})
	return schedule, err
}

// Focus records that clientID is now editing key and returns a token that
// stays current until the same client focuses another instance.
func (s *ScheduleStore) Focus(clientID, teamID string, key instance.Key) FocusToken {
	return s.focus.Focus(clientID, teamID, key)
}

// Unfocus forgets the client's focus, for example when its editor closes.
func (s *ScheduleStore) Unfocus(clientID string) {
	s.focus.Release(clientID)
}

// FocusToken looks up a previously issued token by id.
func (s *ScheduleStore) FocusToken(id string) (FocusToken, bool) {
	return s.focus.Lookup(id)
}

// SaveFocused saves like Save but drops writes whose focus token is no longer
// current. Stale writes return ErrStaleContext and are logged at debug level.
func (s *ScheduleStore) SaveFocused(ctx context.Context, token FocusToken, params SaveScheduleParams) (ScheduleInstance, error) {
	if s == nil {
		return ScheduleInstance{}, fmt.Errorf("ScheduleStore is nil")
	}
	if token.TeamID != params.TeamID || token.Key != params.Key || !s.focus.Current(token) {
		s.loggerWith(ctx, "SaveFocused",
			"team_id", params.TeamID,
			"key", params.Key.String(),
			"focus_token", token.ID,
		).DebugContext(ctx, "discarding write for unfocused schedule")
		return ScheduleInstance{}, ErrStaleContext
	}
	bound, release := token.bind(ctx)
	defer release()
	return s.Save(bound, params)
}

// PreserveStatus returns the status to store when requested is written over
// existing. Published is never downgraded unless reopen is set; an empty
// request keeps the existing status.
func PreserveStatus(existing *ScheduleInstance, requested ScheduleStatus, reopen bool) ScheduleStatus {
	if existing != nil && existing.Status == SchedulePublished && !reopen {
		return SchedulePublished
	}
	if requested == "" {
		if existing != nil && existing.Status != "" {
			if existing.Status == SchedulePublished {
				return ScheduleDraft
			}
			return existing.Status
		}
		return ScheduleDraft
	}
	return requested
}

func validateScheduleInput(key instance.Key, input ScheduleInput) *ValidationError {
	vErr := &ValidationError{}
	if key.Date.IsZero() {
		vErr.add("key", "is required")
	}
	switch input.Status {
	case "", ScheduleDraft, ScheduleComplete, SchedulePublished:
	default:
		vErr.add("status", "must be draft, complete or published")
	}
	for slot := range input.Assignments {
		if strings.TrimSpace(slot) == "" {
			vErr.add("assignments", "slot keys must not be empty")
			break
		}
	}
	for id, setup := range input.InstrumentSetups {
		if strings.TrimSpace(id) == "" {
			vErr.add("instrument_setups", "instrument ids must not be empty")
			break
		}
		if setup.Count < 0 {
			vErr.add("instrument_setups."+id, "count must not be negative")
		}
	}
	return vErr
}

func cleanAssignments(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for slot, member := range in {
		member = strings.TrimSpace(member)
		if member == "" {
			continue
		}
		out[strings.TrimSpace(slot)] = member
	}
	return out
}

func cloneSetups(in map[string]InstrumentSetup) map[string]InstrumentSetup {
	out := make(map[string]InstrumentSetup, len(in))
	for id, setup := range in {
		out[strings.TrimSpace(id)] = setup
	}
	return out
}

func adhocTimesByKey(services []AdhocService) map[instance.Key]string {
	out := make(map[instance.Key]string, len(services))
	for _, svc := range services {
		out[svc.Key()] = svc.ServiceTime
	}
	return out
}
