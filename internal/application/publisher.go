package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/example/worship-scheduler/internal/instance"
	"github.com/example/worship-scheduler/internal/remote"
)

// SchedulePublisher pushes a finished schedule to the remote service record.
type SchedulePublisher struct {
	schedules   *ScheduleStore
	types       ServiceTypeLister
	remote      remote.Client
	instruments InstrumentCatalogue
	logger      *slog.Logger
}

// NewSchedulePublisher constructs a publisher with the provided dependencies.
func NewSchedulePublisher(schedules *ScheduleStore, types ServiceTypeLister, client remote.Client, instruments []Instrument) *SchedulePublisher {
	return NewSchedulePublisherWithLogger(schedules, types, client, instruments, nil)
}

// NewSchedulePublisherWithLogger constructs a publisher with a specified logger.
func NewSchedulePublisherWithLogger(schedules *ScheduleStore, types ServiceTypeLister, client remote.Client, instruments []Instrument, logger *slog.Logger) *SchedulePublisher {
	if instruments == nil {
		instruments = DefaultInstruments
	}
	return &SchedulePublisher{
		schedules:   schedules,
		types:       types,
		remote:      client,
		instruments: NewInstrumentCatalogue(instruments),
		logger:      defaultLogger(logger),
	}
}

func (p *SchedulePublisher) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, p.logger, "SchedulePublisher", operation, attrs...)
}

// Publish marks the schedule of key published and mirrors its assignments to
// the remote record matching the instance's business key, creating the record
// when none exists. Remote failures are logged and reported in the result;
// the local status stays published.
func (p *SchedulePublisher) Publish(ctx context.Context, params PublishParams) (result PublishResult, err error) {
	if p == nil {
		err = fmt.Errorf("SchedulePublisher is nil")
		return
	}

	logger := p.loggerWith(ctx, "Publish",
		"principal_id", params.Principal.MemberID,
		"team_id", params.TeamID,
		"key", params.Key.String(),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to publish schedule", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "schedule published", "roles", len(result.Roles), "failures", len(result.Failures))
	}()

	if !params.Principal.IsLeader {
		err = ErrUnauthorized
		return
	}
	if p.schedules == nil || p.remote == nil {
		err = fmt.Errorf("publisher not configured")
		return
	}

	result.Schedule, err = p.schedules.markPublished(ctx, params.TeamID, params.Key)
	if err != nil {
		return
	}

	var types []ServiceType
	if p.types != nil {
		if types, err = p.types.List(ctx, params.TeamID); err != nil {
			return
		}
	}
	var selection Selection
	selection, err = p.schedules.Selection(ctx, params.TeamID)
	if err != nil {
		return
	}
	sel := SelectedInstance{Key: params.Key}
	for _, svc := range selection.Adhoc {
		if svc.Key() == params.Key {
			sel.ServiceTime = svc.ServiceTime
		}
	}
	resolver := newKeyResolver(types, p.schedules.adhocTime)
	resolved, ok := resolver.forInstance(sel)
	if !ok {
		err = fmt.Errorf("service type for %s: %w", params.Key, ErrNotFound)
		return
	}

	remoteCtx := context.WithoutCancel(ctx)
	fail := func(op, serviceID string, opErr error) {
		result.Failures = append(result.Failures, ReconcileFailure{
			Operation:   op,
			BusinessKey: resolved.BusinessKey,
			ServiceID:   serviceID,
			Err:         opErr,
		})
		logger.WarnContext(ctx, "remote operation failed",
			"remote_operation", op,
			"business_key", resolved.BusinessKey.String(),
			"service_id", serviceID,
			"error", opErr,
		)
	}

	service, findErr := p.findOrCreateService(remoteCtx, params.TeamID, resolver, resolved)
	if findErr != nil {
		fail(opCreate, "", findErr)
		return
	}
	result.Service = &service

	roleIDs := make(map[string]string)
	for _, instrumentID := range enabledInstruments(result.Schedule) {
		inst := p.instruments.Lookup(instrumentID)
		role, roleErr := p.remote.GetOrCreateRole(remoteCtx, params.TeamID, inst.NameEn, inst.NameLocal, inst.Emoji)
		if roleErr != nil {
			fail(opRoles, service.ID, roleErr)
			continue
		}
		roleIDs[instrumentID] = role.ID
		result.Roles = append(result.Roles, role)
	}

	assignments := make([]remote.AssignmentInput, 0, len(result.Schedule.Assignments))
	for _, slot := range sortedSlots(result.Schedule.Assignments) {
		roleID, ok := roleIDs[InstrumentFromSlot(slot)]
		if !ok {
			continue
		}
		assignments = append(assignments, remote.AssignmentInput{
			TeamMemberID: result.Schedule.Assignments[slot],
			RoleID:       roleID,
		})
	}
	if syncErr := p.remote.SyncAssignments(remoteCtx, service.ID, assignments); syncErr != nil {
		fail(opAssign, service.ID, syncErr)
	}

	if service.Status != remote.StatusPublished {
		if pubErr := p.remote.PublishService(remoteCtx, service.ID); pubErr != nil {
			fail(opPublish, service.ID, pubErr)
		} else {
			result.Service.Status = remote.StatusPublished
		}
	}
	return
}

func (p *SchedulePublisher) findOrCreateService(ctx context.Context, teamID string, resolver keyResolver, resolved resolvedInstance) (remote.Service, error) {
	date := resolved.BusinessKey.Date
	records, err := p.remote.ListServices(ctx, teamID, remote.ListOptions{StartDate: date, EndDate: date, IncludePast: true})
	if err != nil {
		return remote.Service{}, fmt.Errorf("list remote services: %w", err)
	}
	for _, rec := range records {
		if resolver.forRecord(rec) == resolved.BusinessKey {
			return rec, nil
		}
	}
	return p.remote.CreateService(ctx, remote.CreateServiceInput{
		TeamID:      teamID,
		Name:        instance.DisplayName(date, resolved.BusinessKey.Name),
		ServiceDate: date,
		StartTime:   resolved.StartTime,
		Status:      remote.StatusDraft,
	})
}

// enabledInstruments lists instruments with at least one slot, plus any
// instrument that has an assignment without a setup entry.
func enabledInstruments(schedule ScheduleInstance) []string {
	seen := make(map[string]struct{})
	for id, setup := range schedule.InstrumentSetups {
		if setup.Enabled && setup.Count > 0 {
			seen[id] = struct{}{}
		}
	}
	for slot := range schedule.Assignments {
		id := InstrumentFromSlot(slot)
		if setup, ok := schedule.InstrumentSetups[id]; ok && !setup.Enabled {
			continue
		}
		seen[id] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func sortedSlots(assignments map[string]string) []string {
	out := make([]string, 0, len(assignments))
	for slot := range assignments {
		out = append(out, slot)
	}
	sort.Strings(out)
	return out
}
