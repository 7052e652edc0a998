package application

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/example/worship-scheduler/internal/instance"
	"github.com/example/worship-scheduler/internal/persistence"
)

// Selection returns the team's selected instances resolved to service times.
func (s *ScheduleStore) Selection(ctx context.Context, teamID string) (Selection, error) {
	if s == nil {
		return Selection{}, fmt.Errorf("ScheduleStore is nil")
	}
	doc, err := s.docs.load(ctx, persistence.SchedulingNamespace(teamID))
	if err != nil {
		return Selection{}, err
	}
	types, err := s.listTypes(ctx, teamID)
	if err != nil {
		return Selection{}, err
	}
	return s.selectionView(teamID, doc, types), nil
}

func (s *ScheduleStore) selectionView(teamID string, doc schedulingDocument, types []ServiceType) Selection {
	byID := make(map[string]ServiceType, len(types))
	for _, st := range types {
		byID[st.ID] = st
	}
	adhoc := make(map[instance.Key]AdhocService, len(doc.AdhocServices))
	for _, svc := range doc.AdhocServices {
		adhoc[svc.Key()] = svc
	}

	keys := instance.SortKeys(slices.Clone(doc.SelectedDates))
	instances := make([]SelectedInstance, 0, len(keys))
	for _, key := range keys {
		sel := SelectedInstance{Key: key}
		switch key.Instance.Kind() {
		case instance.KindTemplated:
			id, _ := key.Instance.ServiceTypeID()
			if st, ok := byID[id]; ok {
				sel.ServiceTime = st.ServiceTime
				sel.Label = st.Name
			}
		case instance.KindAdhoc:
			if svc, ok := adhoc[key]; ok {
				sel.ServiceTime = svc.ServiceTime
				sel.Label = svc.Label
			}
		}
		instances = append(instances, sel)
	}

	adhocServices := slices.Clone(doc.AdhocServices)
	slices.SortFunc(adhocServices, func(a, b AdhocService) int { return a.Key().Compare(b.Key()) })

	deadline := doc.Deadline
	if deadline != nil {
		d := *deadline
		deadline = &d
	}
	reconciled := doc.Reconciled
	if reconciled != nil {
		r := *reconciled
		reconciled = &r
	}
	return Selection{
		TeamID:      teamID,
		Keys:        keys,
		Instances:   instances,
		Adhoc:       adhocServices,
		IsConfirmed: doc.IsConfirmed,
		PeriodTitle: doc.PeriodTitle,
		Deadline:    deadline,
		Reconciled:  reconciled,
	}
}

// Select adds a templated or whole-date key to the selection. Ad-hoc
// instances are created with AddAdhoc.
func (s *ScheduleStore) Select(ctx context.Context, params SelectParams) (selection Selection, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleStore is nil")
		return
	}

	logger := s.loggerWith(ctx, "Select",
		"principal_id", params.Principal.MemberID,
		"team_id", params.TeamID,
		"key", params.Key.String(),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to select instance", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "instance selected", "selected", len(selection.Keys))
	}()

	if !params.Principal.IsLeader {
		err = ErrUnauthorized
		return
	}
	if params.Key.Date.IsZero() {
		err = &ValidationError{FieldErrors: map[string]string{"key": "is required"}}
		return
	}
	if params.Key.Instance.Kind() == instance.KindAdhoc {
		err = &ValidationError{FieldErrors: map[string]string{"key": "ad-hoc services must be added with a service time"}}
		return
	}

	var types []ServiceType
	types, err = s.listTypes(ctx, params.TeamID)
	if err != nil {
		return
	}
	if id, ok := params.Key.Instance.ServiceTypeID(); ok && indexOfServiceType(types, id) < 0 {
		err = fmt.Errorf("service type %q: %w", id, ErrNotFound)
		return
	}

	var doc schedulingDocument
	doc, err = s.docs.update(ctx, persistence.SchedulingNamespace(params.TeamID), func(doc *schedulingDocument) error {
		if !slices.Contains(doc.SelectedDates, params.Key) {
			doc.SelectedDates = instance.SortKeys(append(doc.SelectedDates, params.Key))
		}
		return nil
	})
	if err != nil {
		return
	}
	selection = s.selectionView(params.TeamID, doc, types)
	return
}

// Deselect removes a key from the selection. Deselecting an ad-hoc key also
// removes its configuration. Stored schedules are kept.
func (s *ScheduleStore) Deselect(ctx context.Context, params SelectParams) (selection Selection, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleStore is nil")
		return
	}

	logger := s.loggerWith(ctx, "Deselect",
		"principal_id", params.Principal.MemberID,
		"team_id", params.TeamID,
		"key", params.Key.String(),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to deselect instance", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "instance deselected", "selected", len(selection.Keys))
	}()

	if !params.Principal.IsLeader {
		err = ErrUnauthorized
		return
	}

	var types []ServiceType
	types, err = s.listTypes(ctx, params.TeamID)
	if err != nil {
		return
	}

	var doc schedulingDocument
	doc, err = s.docs.update(ctx, persistence.SchedulingNamespace(params.TeamID), func(doc *schedulingDocument) error {
		removeSelected(doc, params.Key)
		if params.Key.Instance.Kind() == instance.KindAdhoc {
			removeAdhocConfig(doc, params.Key)
		}
		return nil
	})
	if err != nil {
		return
	}
	selection = s.selectionView(params.TeamID, doc, types)
	return
}

// AddAdhoc configures and selects a one-off service on date. The ordinal
// comes from a per-date counter and is never reused.
func (s *ScheduleStore) AddAdhoc(ctx context.Context, params AddAdhocParams) (service AdhocService, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleStore is nil")
		return
	}

	logger := s.loggerWith(ctx, "AddAdhoc",
		"principal_id", params.Principal.MemberID,
		"team_id", params.TeamID,
		"date", params.Date.String(),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to add ad-hoc service", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("key", service.Key().String()).InfoContext(ctx, "ad-hoc service added")
	}()

	if !params.Principal.IsLeader {
		err = ErrUnauthorized
		return
	}

	serviceTime := firstNonEmpty(params.ServiceTime, s.adhocTime)
	vErr := &ValidationError{}
	if params.Date.IsZero() {
		vErr.add("date", "is required")
	}
	if !instance.ValidClock(serviceTime) {
		vErr.add("service_time", "must be HH:MM")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	_, err = s.docs.update(ctx, persistence.SchedulingNamespace(params.TeamID), func(doc *schedulingDocument) error {
		if adhocTimeTaken(doc.AdhocServices, params.Date, serviceTime, -1) {
			return fmt.Errorf("ad-hoc service at %s on %s: %w", serviceTime, params.Date, ErrAlreadyExists)
		}
		dateKey := params.Date.String()
		ordinal := doc.NextAdhocOrdinal[dateKey]
		for _, existing := range doc.AdhocServices {
			if existing.Date == params.Date && existing.Ordinal >= ordinal {
				ordinal = existing.Ordinal + 1
			}
		}
		doc.NextAdhocOrdinal[dateKey] = ordinal + 1

		service = AdhocService{
			Date:        params.Date,
			Ordinal:     ordinal,
			ServiceTime: serviceTime,
			Label:       strings.TrimSpace(params.Label),
			CreatedAt:   s.now(),
		}
		doc.AdhocServices = append(doc.AdhocServices, service)
		if !slices.Contains(doc.SelectedDates, service.Key()) {
			doc.SelectedDates = instance.SortKeys(append(doc.SelectedDates, service.Key()))
		}
		return nil
	})
	return
}

// UpdateAdhoc changes the start time of an ad-hoc service.
func (s *ScheduleStore) UpdateAdhoc(ctx context.Context, params UpdateAdhocParams) (service AdhocService, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleStore is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateAdhoc",
		"principal_id", params.Principal.MemberID,
		"team_id", params.TeamID,
		"key", params.Key.String(),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update ad-hoc service", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "ad-hoc service updated", "service_time", service.ServiceTime)
	}()

	if !params.Principal.IsLeader {
		err = ErrUnauthorized
		return
	}
	ordinal, ok := params.Key.Instance.Ordinal()
	if !ok {
		err = &ValidationError{FieldErrors: map[string]string{"key": "must reference an ad-hoc service"}}
		return
	}
	serviceTime := strings.TrimSpace(params.ServiceTime)
	if !instance.ValidClock(serviceTime) {
		err = &ValidationError{FieldErrors: map[string]string{"service_time": "must be HH:MM"}}
		return
	}

	_, err = s.docs.update(ctx, persistence.SchedulingNamespace(params.TeamID), func(doc *schedulingDocument) error {
		idx := indexOfAdhoc(doc.AdhocServices, params.Key)
		if idx < 0 {
			return fmt.Errorf("ad-hoc service %s: %w", params.Key, ErrNotFound)
		}
		if adhocTimeTaken(doc.AdhocServices, params.Key.Date, serviceTime, ordinal) {
			return fmt.Errorf("ad-hoc service at %s on %s: %w", serviceTime, params.Key.Date, ErrAlreadyExists)
		}
		doc.AdhocServices[idx].ServiceTime = serviceTime
		service = doc.AdhocServices[idx]
		return nil
	})
	return
}

// RemoveAdhoc deletes an ad-hoc service and its selection. Other ad-hoc
// services on the same date keep their ordinals.
func (s *ScheduleStore) RemoveAdhoc(ctx context.Context, params SelectParams) (err error) {
	if s == nil {
		return fmt.Errorf("ScheduleStore is nil")
	}

	logger := s.loggerWith(ctx, "RemoveAdhoc",
		"principal_id", params.Principal.MemberID,
		"team_id", params.TeamID,
		"key", params.Key.String(),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to remove ad-hoc service", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "ad-hoc service removed")
	}()

	if !params.Principal.IsLeader {
		err = ErrUnauthorized
		return
	}
	if params.Key.Instance.Kind() != instance.KindAdhoc {
		err = &ValidationError{FieldErrors: map[string]string{"key": "must reference an ad-hoc service"}}
		return
	}

	_, err = s.docs.update(ctx, persistence.SchedulingNamespace(params.TeamID), func(doc *schedulingDocument) error {
		if !removeAdhocConfig(doc, params.Key) {
			return fmt.Errorf("ad-hoc service %s: %w", params.Key, ErrNotFound)
		}
		removeSelected(doc, params.Key)
		return nil
	})
	return
}

// SetPeriod names the availability period and its response deadline.
func (s *ScheduleStore) SetPeriod(ctx context.Context, params SetPeriodParams) (selection Selection, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleStore is nil")
		return
	}

	logger := s.loggerWith(ctx, "SetPeriod",
		"principal_id", params.Principal.MemberID,
		"team_id", params.TeamID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to set period", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "period set", "title", selection.PeriodTitle)
	}()

	if !params.Principal.IsLeader {
		err = ErrUnauthorized
		return
	}

	var types []ServiceType
	types, err = s.listTypes(ctx, params.TeamID)
	if err != nil {
		return
	}

	var doc schedulingDocument
	doc, err = s.docs.update(ctx, persistence.SchedulingNamespace(params.TeamID), func(doc *schedulingDocument) error {
		doc.PeriodTitle = strings.TrimSpace(params.Title)
		doc.Deadline = params.Deadline
		return nil
	})
	if err != nil {
		return
	}
	selection = s.selectionView(params.TeamID, doc, types)
	return
}

// Confirm marks the selection as final for the period.
func (s *ScheduleStore) Confirm(ctx context.Context, params TeamParams) (selection Selection, err error) {
	if s == nil {
		err = fmt.Errorf("ScheduleStore is nil")
		return
	}

	logger := s.loggerWith(ctx, "Confirm",
		"principal_id", params.Principal.MemberID,
		"team_id", params.TeamID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to confirm selection", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "selection confirmed", "selected", len(selection.Keys))
	}()

	if !params.Principal.IsLeader {
		err = ErrUnauthorized
		return
	}

	var types []ServiceType
	types, err = s.listTypes(ctx, params.TeamID)
	if err != nil {
		return
	}

	var doc schedulingDocument
	doc, err = s.docs.update(ctx, persistence.SchedulingNamespace(params.TeamID), func(doc *schedulingDocument) error {
		doc.IsConfirmed = true
		return nil
	})
	if err != nil {
		return
	}
	selection = s.selectionView(params.TeamID, doc, types)
	return
}

// RecordReconciled widens the team's reconciled range to cover window.
func (s *ScheduleStore) RecordReconciled(ctx context.Context, teamID string, window DateRange) (err error) {
	if s == nil {
		return fmt.Errorf("ScheduleStore is nil")
	}
	if window.From.IsZero() || window.To.IsZero() {
		return nil
	}

	logger := s.loggerWith(ctx, "RecordReconciled", "team_id", teamID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to record reconciled range", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	_, err = s.docs.update(ctx, persistence.SchedulingNamespace(teamID), func(doc *schedulingDocument) error {
		covered := window
		if doc.Reconciled != nil {
			covered = doc.Reconciled.Union(window)
		}
		doc.Reconciled = &covered
		return nil
	})
	return err
}

func removeSelected(doc *schedulingDocument, key instance.Key) {
	doc.SelectedDates = slices.DeleteFunc(doc.SelectedDates, func(k instance.Key) bool { return k == key })
}

func removeAdhocConfig(doc *schedulingDocument, key instance.Key) bool {
	before := len(doc.AdhocServices)
	doc.AdhocServices = slices.DeleteFunc(doc.AdhocServices, func(a AdhocService) bool { return a.Key() == key })
	return len(doc.AdhocServices) != before
}

func indexOfAdhoc(services []AdhocService, key instance.Key) int {
	return slices.IndexFunc(services, func(a AdhocService) bool { return a.Key() == key })
}

// adhocTimeTaken reports whether another ad-hoc service on date already
// starts at serviceTime, which would give both the same display name.
func adhocTimeTaken(services []AdhocService, date instance.Date, serviceTime string, exceptOrdinal int) bool {
	name := instance.AdhocName(serviceTime)
	for _, svc := range services {
		if svc.Date == date && svc.Ordinal != exceptOrdinal && instance.AdhocName(svc.ServiceTime) == name {
			return true
		}
	}
	return false
}
