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
	"github.com/example/worship-scheduler/internal/recurrence"
)

// ServiceTypeLister is the read-only view of the registry other services depend on.
type ServiceTypeLister interface {
	List(ctx context.Context, teamID string) ([]ServiceType, error)
}

type serviceTypesDocument struct {
	ServiceTypes []ServiceType `json:"serviceTypes"`
}

func (d *serviceTypesDocument) normalize() {
	if d.ServiceTypes == nil {
		d.ServiceTypes = []ServiceType{}
	}
}

// ServiceTypeRegistry stores the recurring service templates of each team.
type ServiceTypeRegistry struct {
	docs        documentStore[serviceTypesDocument]
	idGenerator func() string
	logger      *slog.Logger
}

// NewServiceTypeRegistry constructs a registry with the provided dependencies.
func NewServiceTypeRegistry(store persistence.StateStore, idGenerator func() string) *ServiceTypeRegistry {
	return NewServiceTypeRegistryWithLogger(store, idGenerator, nil)
}

// NewServiceTypeRegistryWithLogger constructs a registry with a specified logger.
func NewServiceTypeRegistryWithLogger(store persistence.StateStore, idGenerator func() string, logger *slog.Logger) *ServiceTypeRegistry {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	return &ServiceTypeRegistry{
		docs: newDocumentStore(store, func() serviceTypesDocument {
			return serviceTypesDocument{ServiceTypes: []ServiceType{}}
		}),
		idGenerator: idGenerator,
		logger:      defaultLogger(logger),
	}
}

func (r *ServiceTypeRegistry) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, r.logger, "ServiceTypeRegistry", operation, attrs...)
}

// List returns the team's service types deduplicated by id and ordered by
// Order, then name.
func (r *ServiceTypeRegistry) List(ctx context.Context, teamID string) ([]ServiceType, error) {
	if r == nil {
		return nil, fmt.Errorf("ServiceTypeRegistry is nil")
	}
	doc, err := r.docs.load(ctx, persistence.ServiceTypesNamespace(teamID))
	if err != nil {
		return nil, err
	}
	return sortServiceTypes(doc.ServiceTypes), nil
}

// Get returns a single service type.
func (r *ServiceTypeRegistry) Get(ctx context.Context, teamID, id string) (ServiceType, error) {
	types, err := r.List(ctx, teamID)
	if err != nil {
		return ServiceType{}, err
	}
	for _, st := range types {
		if st.ID == id {
			return st, nil
		}
	}
	return ServiceType{}, fmt.Errorf("service type %q: %w", id, ErrNotFound)
}

// Candidates expands the team's weekly service types into instance keys over
// the inclusive window [from, to]. Flexible types contribute nothing.
func (r *ServiceTypeRegistry) Candidates(ctx context.Context, teamID string, from, to instance.Date) ([]instance.Key, error) {
	if r == nil {
		return nil, fmt.Errorf("ServiceTypeRegistry is nil")
	}
	if to.Before(from) {
		vErr := &ValidationError{}
		vErr.add("to", "must not precede from")
		return nil, vErr
	}

	types, err := r.List(ctx, teamID)
	if err != nil {
		return nil, err
	}
	weekly := make([]ServiceType, 0, len(types))
	for _, st := range types {
		if st.ScheduleType == ScheduleTypeWeekly {
			weekly = append(weekly, st)
		}
	}
	return recurrence.NewExpander(0).Candidates(templates(weekly), from, to)
}

// Add validates and registers a new service type for leaders.
func (r *ServiceTypeRegistry) Add(ctx context.Context, params AddServiceTypeParams) (serviceType ServiceType, err error) {
	if r == nil {
		err = fmt.Errorf("ServiceTypeRegistry is nil")
		return
	}

	logger := r.loggerWith(ctx, "Add",
		"principal_id", params.Principal.MemberID,
		"team_id", params.TeamID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to add service type", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("service_type_id", serviceType.ID).InfoContext(ctx, "service type added")
	}()

	if !params.Principal.IsLeader {
		err = ErrUnauthorized
		return
	}

	candidate, vErr := serviceTypeFromInput(params.TeamID, params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	_, err = r.docs.update(ctx, persistence.ServiceTypesNamespace(params.TeamID), func(doc *serviceTypesDocument) error {
		var addErr error
		serviceType, addErr = r.insert(doc, candidate)
		return addErr
	})
	return
}

// Update applies a partial patch to an existing service type.
func (r *ServiceTypeRegistry) Update(ctx context.Context, params UpdateServiceTypeParams) (serviceType ServiceType, err error) {
	if r == nil {
		err = fmt.Errorf("ServiceTypeRegistry is nil")
		return
	}

	logger := r.loggerWith(ctx, "Update",
		"principal_id", params.Principal.MemberID,
		"team_id", params.TeamID,
		"service_type_id", params.ServiceTypeID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update service type", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "service type updated")
	}()

	if !params.Principal.IsLeader {
		err = ErrUnauthorized
		return
	}

	_, err = r.docs.update(ctx, persistence.ServiceTypesNamespace(params.TeamID), func(doc *serviceTypesDocument) error {
		idx := indexOfServiceType(doc.ServiceTypes, params.ServiceTypeID)
		if idx < 0 {
			return fmt.Errorf("service type %q: %w", params.ServiceTypeID, ErrNotFound)
		}
		updated, vErr := applyServiceTypePatch(doc.ServiceTypes[idx], params.Patch)
		if vErr.HasErrors() {
			return vErr
		}
		if nameTaken(doc.ServiceTypes, updated.Name, updated.ID) {
			return fmt.Errorf("service type name %q: %w", updated.Name, ErrAlreadyExists)
		}
		doc.ServiceTypes[idx] = updated
		if updated.IsPrimary {
			clearOtherPrimaries(doc.ServiceTypes, updated.ID)
		}
		serviceType = updated
		return nil
	})
	return
}

// Delete removes a service type. Selections and schedules that reference it
// are left in place and surface as orphans during reconciliation.
func (r *ServiceTypeRegistry) Delete(ctx context.Context, params DeleteServiceTypeParams) (err error) {
	if r == nil {
		return fmt.Errorf("ServiceTypeRegistry is nil")
	}

	logger := r.loggerWith(ctx, "Delete",
		"principal_id", params.Principal.MemberID,
		"team_id", params.TeamID,
		"service_type_id", params.ServiceTypeID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete service type", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "service type deleted")
	}()

	if !params.Principal.IsLeader {
		err = ErrUnauthorized
		return
	}

	_, err = r.docs.update(ctx, persistence.ServiceTypesNamespace(params.TeamID), func(doc *serviceTypesDocument) error {
		idx := indexOfServiceType(doc.ServiceTypes, params.ServiceTypeID)
		if idx < 0 {
			return fmt.Errorf("service type %q: %w", params.ServiceTypeID, ErrNotFound)
		}
		doc.ServiceTypes = append(doc.ServiceTypes[:idx], doc.ServiceTypes[idx+1:]...)
		return nil
	})
	return
}

// Seed registers inputs for a team that has no service types yet. It returns
// the number of types added; an already populated team is left untouched.
func (r *ServiceTypeRegistry) Seed(ctx context.Context, teamID string, inputs []ServiceTypeInput) (added int, err error) {
	if r == nil {
		err = fmt.Errorf("ServiceTypeRegistry is nil")
		return
	}

	logger := r.loggerWith(ctx, "Seed", "team_id", teamID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to seed service types", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "service types seeded", "count", added)
	}()

	candidates := make([]ServiceType, 0, len(inputs))
	vErr := &ValidationError{}
	for i, input := range inputs {
		candidate, inputErr := serviceTypeFromInput(teamID, input)
		if inputErr.HasErrors() {
			for field, msg := range inputErr.FieldErrors {
				vErr.add(fmt.Sprintf("service_types[%d].%s", i, field), msg)
			}
			continue
		}
		candidates = append(candidates, candidate)
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	_, err = r.docs.update(ctx, persistence.ServiceTypesNamespace(teamID), func(doc *serviceTypesDocument) error {
		if len(doc.ServiceTypes) > 0 {
			return nil
		}
		for _, candidate := range candidates {
			if _, insertErr := r.insert(doc, candidate); insertErr != nil {
				return insertErr
			}
			added++
		}
		return nil
	})
	if err != nil {
		added = 0
	}
	return
}

func (r *ServiceTypeRegistry) insert(doc *serviceTypesDocument, candidate ServiceType) (ServiceType, error) {
	if candidate.ID == "" {
		candidate.ID = r.idGenerator()
	}
	if candidate.ID == "" {
		return ServiceType{}, fmt.Errorf("service type id generator returned an empty id")
	}
	if indexOfServiceType(doc.ServiceTypes, candidate.ID) >= 0 {
		return ServiceType{}, fmt.Errorf("service type id %q: %w", candidate.ID, ErrAlreadyExists)
	}
	if nameTaken(doc.ServiceTypes, candidate.Name, "") {
		return ServiceType{}, fmt.Errorf("service type name %q: %w", candidate.Name, ErrAlreadyExists)
	}
	if candidate.Order == 0 {
		candidate.Order = nextOrder(doc.ServiceTypes)
	}
	doc.ServiceTypes = append(doc.ServiceTypes, candidate)
	if candidate.IsPrimary {
		clearOtherPrimaries(doc.ServiceTypes, candidate.ID)
	}
	return candidate, nil
}

func serviceTypeFromInput(teamID string, input ServiceTypeInput) (ServiceType, *ValidationError) {
	vErr := &ValidationError{}
	vErr.requireID("team_id", teamID)
	st := ServiceType{
		ID:             strings.TrimSpace(input.ID),
		TeamID:         teamID,
		Name:           strings.TrimSpace(input.Name),
		ScheduleType:   input.ScheduleType,
		DefaultWeekday: input.DefaultWeekday,
		ServiceTime:    strings.TrimSpace(input.ServiceTime),
		RehearsalType:  input.RehearsalType,
		RehearsalTime:  strings.TrimSpace(input.RehearsalTime),
		IsPrimary:      input.IsPrimary,
	}
	if input.Order != nil {
		st.Order = *input.Order
	}
	if st.ScheduleType == "" {
		st.ScheduleType = ScheduleTypeWeekly
	}
	if st.RehearsalType == "" {
		st.RehearsalType = RehearsalNone
	}
	if st.ID != "" {
		if strings.HasPrefix(st.ID, instance.AdhocPrefix) {
			vErr.add("id", "must not use the reserved ad-hoc prefix")
		} else if strings.ContainsRune(st.ID, instance.Delimiter) {
			vErr.add("id", "must not contain ':'")
		}
	}
	vErr.merge(validateServiceType(st))
	return st, vErr
}

func applyServiceTypePatch(st ServiceType, patch ServiceTypePatch) (ServiceType, *ValidationError) {
	if patch.Name != nil {
		st.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.ScheduleType != nil {
		st.ScheduleType = *patch.ScheduleType
	}
	if patch.ClearWeekday {
		st.DefaultWeekday = nil
	} else if patch.DefaultWeekday != nil {
		wd := *patch.DefaultWeekday
		st.DefaultWeekday = &wd
	}
	if patch.ServiceTime != nil {
		st.ServiceTime = strings.TrimSpace(*patch.ServiceTime)
	}
	if patch.RehearsalType != nil {
		st.RehearsalType = *patch.RehearsalType
	}
	if patch.RehearsalTime != nil {
		st.RehearsalTime = strings.TrimSpace(*patch.RehearsalTime)
	}
	if patch.Order != nil {
		st.Order = *patch.Order
	}
	if patch.IsPrimary != nil {
		st.IsPrimary = *patch.IsPrimary
	}
	return st, validateServiceType(st)
}

// looksAdhoc is instance.IsAdhocName without regard to case, matching how
// record names are resolved against service types.
func looksAdhoc(name string) bool {
	label := strings.ToLower(instance.AdhocLabel)
	lower := strings.ToLower(name)
	return lower == label || strings.HasPrefix(lower, label+" ")
}

func validateServiceType(st ServiceType) *ValidationError {
	vErr := &ValidationError{}
	if st.Name == "" {
		vErr.add("name", "is required")
	} else if strings.ContainsRune(st.Name, '|') {
		vErr.add("name", "must not contain '|'")
	} else if looksAdhoc(st.Name) {
		vErr.add("name", "must not use the reserved ad-hoc prefix")
	}
	switch st.ScheduleType {
	case ScheduleTypeWeekly, ScheduleTypeFlexible:
	default:
		vErr.add("schedule_type", "must be weekly or flexible")
	}
	if st.DefaultWeekday != nil && (*st.DefaultWeekday < time.Sunday || *st.DefaultWeekday > time.Saturday) {
		vErr.add("default_weekday", "must be between 0 (Sunday) and 6 (Saturday)")
	}
	if st.ServiceTime != "" && !instance.ValidClock(st.ServiceTime) {
		vErr.add("service_time", "must be HH:MM")
	}
	switch st.RehearsalType {
	case RehearsalNone, RehearsalSameDay, RehearsalSeparateDay:
	default:
		vErr.add("rehearsal_type", "must be none, same_day or separate_day")
	}
	if st.RehearsalTime != "" && !instance.ValidClock(st.RehearsalTime) {
		vErr.add("rehearsal_time", "must be HH:MM")
	}
	if st.Order < 0 {
		vErr.add("order", "must not be negative")
	}
	return vErr
}

func sortServiceTypes(types []ServiceType) []ServiceType {
	seen := make(map[string]struct{}, len(types))
	out := make([]ServiceType, 0, len(types))
	for _, st := range types {
		if _, ok := seen[st.ID]; ok {
			continue
		}
		seen[st.ID] = struct{}{}
		out = append(out, st)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func indexOfServiceType(types []ServiceType, id string) int {
	for i, st := range types {
		if st.ID == id {
			return i
		}
	}
	return -1
}

func nameTaken(types []ServiceType, name, exceptID string) bool {
	for _, st := range types {
		if st.ID != exceptID && strings.EqualFold(st.Name, name) {
			return true
		}
	}
	return false
}

func nextOrder(types []ServiceType) int {
	highest := 0
	for _, st := range types {
		if st.Order > highest {
			highest = st.Order
		}
	}
	return highest + 1
}

func clearOtherPrimaries(types []ServiceType, keepID string) {
	for i := range types {
		if types[i].ID != keepID {
			types[i].IsPrimary = false
		}
	}
}

// templates converts service types into weekday templates for expansion.
func templates(types []ServiceType) []recurrence.Template {
	out := make([]recurrence.Template, 0, len(types))
	for _, st := range types {
		out = append(out, recurrence.Template{ID: st.ID, Weekday: st.DefaultWeekday})
	}
	return out
}

// typesForDate returns the service types whose default weekday matches date,
// in registry order.
func typesForDate(types []ServiceType, date instance.Date) []ServiceType {
	byID := make(map[string]ServiceType, len(types))
	for _, st := range types {
		byID[st.ID] = st
	}
	matches := recurrence.MatchingTypes(templates(types), date)
	out := make([]ServiceType, 0, len(matches))
	for _, m := range matches {
		out = append(out, byID[m.ID])
	}
	return out
}
