package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/example/worship-scheduler/internal/instance"
	"github.com/example/worship-scheduler/internal/remote"
)

// SelectionSource provides the stored selection of a team and remembers the
// dates reconciliation has covered.
type SelectionSource interface {
	Selection(ctx context.Context, teamID string) (Selection, error)
	RecordReconciled(ctx context.Context, teamID string, window DateRange) error
}

const (
	opCreate  = "create"
	opDelete  = "delete"
	opPublish = "publish"
	opRoles   = "roles"
	opAssign  = "assign"
)

// SelectionReconciler diffs the selected instances against remote service
// records by business key and applies the difference.
type SelectionReconciler struct {
	types      ServiceTypeLister
	selections SelectionSource
	remote     remote.Client
	adhocTime  string
	logger     *slog.Logger
}

// NewSelectionReconciler constructs a reconciler with the provided dependencies.
func NewSelectionReconciler(types ServiceTypeLister, selections SelectionSource, client remote.Client, adhocTime string) *SelectionReconciler {
	return NewSelectionReconcilerWithLogger(types, selections, client, adhocTime, nil)
}

// NewSelectionReconcilerWithLogger constructs a reconciler with a specified logger.
func NewSelectionReconcilerWithLogger(types ServiceTypeLister, selections SelectionSource, client remote.Client, adhocTime string, logger *slog.Logger) *SelectionReconciler {
	if !instance.ValidClock(adhocTime) {
		adhocTime = DefaultAdhocTime
	}
	return &SelectionReconciler{
		types:      types,
		selections: selections,
		remote:     client,
		adhocTime:  adhocTime,
		logger:     defaultLogger(logger),
	}
}

func (r *SelectionReconciler) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, r.logger, "SelectionReconciler", operation, attrs...)
}

// Plan computes the remote operations of a reconciliation pass without
// applying them.
func (r *SelectionReconciler) Plan(ctx context.Context, params ReconcileParams) (plan ReconcilePlan, err error) {
	if r == nil {
		err = fmt.Errorf("SelectionReconciler is nil")
		return
	}

	logger := r.loggerWith(ctx, "Plan",
		"principal_id", params.Principal.MemberID,
		"team_id", params.TeamID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to plan reconciliation", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if !params.Principal.IsLeader {
		err = ErrUnauthorized
		return
	}
	plan, err = r.plan(ctx, params, logger)
	return
}

// Reconcile brings the remote records of the range in line with the
// selection. Mutations run one after another on a context detached from the
// caller so an interrupted request still finishes the pass. Each failure is
// logged and collected; successful operations are not rolled back.
func (r *SelectionReconciler) Reconcile(ctx context.Context, params ReconcileParams) (result ReconcileResult, err error) {
	if r == nil {
		err = fmt.Errorf("SelectionReconciler is nil")
		return
	}

	logger := r.loggerWith(ctx, "Reconcile",
		"principal_id", params.Principal.MemberID,
		"team_id", params.TeamID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to reconcile selection", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "selection reconciled",
			"created", len(result.Created),
			"published", len(result.Published),
			"deleted", len(result.Deleted),
			"unchanged", len(result.Unchanged),
			"failures", len(result.Failures),
			"duplicates", len(result.Duplicates),
			"orphans", len(result.Orphans),
		)
	}()

	if !params.Principal.IsLeader {
		err = ErrUnauthorized
		return
	}

	var plan ReconcilePlan
	plan, err = r.plan(ctx, params, logger)
	if err != nil {
		return
	}

	result = ReconcileResult{
		Unchanged:  plan.Unchanged,
		Duplicates: plan.Duplicates,
		Orphans:    plan.Orphans,
	}
	applyCtx := context.WithoutCancel(ctx)

	for _, svc := range plan.Delete {
		if deleteErr := r.remote.DeleteService(applyCtx, svc.ID); deleteErr != nil {
			result.Failures = append(result.Failures, r.failure(applyCtx, logger, opDelete, svc.ServiceDate, svc.Name, svc.ID, deleteErr))
			continue
		}
		result.Deleted = append(result.Deleted, svc)
	}

	for _, create := range plan.Create {
		created, createErr := r.remote.CreateService(applyCtx, remote.CreateServiceInput{
			TeamID:      params.TeamID,
			Name:        create.Name,
			ServiceDate: create.BusinessKey.Date,
			StartTime:   create.StartTime,
			Status:      remote.StatusPublished,
		})
		if createErr != nil {
			result.Failures = append(result.Failures, r.failure(applyCtx, logger, opCreate, create.BusinessKey.Date, create.Name, "", createErr))
			continue
		}
		result.Created = append(result.Created, created)
	}

	for _, svc := range plan.Publish {
		if publishErr := r.remote.PublishService(applyCtx, svc.ID); publishErr != nil {
			result.Failures = append(result.Failures, r.failure(applyCtx, logger, opPublish, svc.ServiceDate, svc.Name, svc.ID, publishErr))
			continue
		}
		svc.Status = remote.StatusPublished
		result.Published = append(result.Published, svc)
	}

	if r.selections != nil && !plan.Window.IsZero() {
		if recordErr := r.selections.RecordReconciled(applyCtx, params.TeamID, plan.Window); recordErr != nil {
			logger.WarnContext(ctx, "failed to record reconciled range", "error", recordErr)
		}
	}
	return
}

func (r *SelectionReconciler) failure(ctx context.Context, logger *slog.Logger, op string, date instance.Date, name, serviceID string, err error) ReconcileFailure {
	f := ReconcileFailure{
		Operation:   op,
		BusinessKey: businessKeyFromDisplay(date, name),
		ServiceID:   serviceID,
		Err:         err,
	}
	logger.WarnContext(ctx, "remote operation failed",
		"remote_operation", op,
		"business_key", f.BusinessKey.String(),
		"service_id", serviceID,
		"error", err,
	)
	return f
}

func (r *SelectionReconciler) plan(ctx context.Context, params ReconcileParams, logger *slog.Logger) (ReconcilePlan, error) {
	plan := ReconcilePlan{}
	if r.remote == nil {
		return plan, fmt.Errorf("remote client not configured")
	}

	selected := params.Selection
	var reconciled DateRange
	if r.selections != nil {
		selection, err := r.selections.Selection(ctx, params.TeamID)
		if err != nil {
			return plan, err
		}
		if selected == nil {
			selected = selection.Instances
		}
		if selection.Reconciled != nil {
			reconciled = *selection.Reconciled
		}
	}

	// Without an explicit range the window spans the selection and every date
	// reconciled before, so deselected dates at the edges are still cleaned up.
	from, to := params.From, params.To
	if from.IsZero() || to.IsZero() {
		var bounds DateRange
		if first, last, ok := selectionBounds(selected); ok {
			bounds = DateRange{From: first, To: last}
		}
		bounds = bounds.Union(reconciled)
		if bounds.IsZero() {
			return plan, nil
		}
		if from.IsZero() {
			from = bounds.From
		}
		if to.IsZero() {
			to = bounds.To
		}
	}
	if to.Before(from) {
		return plan, &ValidationError{FieldErrors: map[string]string{"to": "must not precede from"}}
	}
	plan.Window = DateRange{From: from, To: to}

	var types []ServiceType
	if r.types != nil {
		var err error
		if types, err = r.types.List(ctx, params.TeamID); err != nil {
			return plan, err
		}
	}
	resolver := newKeyResolver(types, r.adhocTime)

	window := remote.ListOptions{StartDate: from, EndDate: to, IncludePast: true}
	records, err := r.remote.ListServices(ctx, params.TeamID, window)
	if err != nil {
		return plan, fmt.Errorf("list remote services: %w", err)
	}

	existing := make(map[instance.BusinessKey]remote.Service, len(records))
	existingOrder := make([]instance.BusinessKey, 0, len(records))
	for _, rec := range records {
		if !window.Contains(rec.ServiceDate) {
			continue
		}
		bk := resolver.forRecord(rec)
		if first, ok := existing[bk]; ok {
			logger.WarnContext(ctx, "duplicate remote service for business key",
				"business_key", bk.String(),
				"kept_service_id", first.ID,
				"duplicate_service_id", rec.ID,
			)
			plan.Duplicates = append(plan.Duplicates, rec)
			continue
		}
		existing[bk] = rec
		existingOrder = append(existingOrder, bk)
	}

	ordered := slices.Clone(selected)
	slices.SortStableFunc(ordered, func(a, b SelectedInstance) int { return a.Key.Compare(b.Key) })

	wanted := make(map[instance.BusinessKey]PlannedCreate, len(ordered))
	wantedOrder := make([]instance.BusinessKey, 0, len(ordered))
	for _, sel := range ordered {
		if !window.Contains(sel.Key.Date) {
			continue
		}
		resolved, ok := resolver.forInstance(sel)
		if !ok {
			logger.WarnContext(ctx, "selected key references unknown service type", "key", sel.Key.String())
			plan.Orphans = append(plan.Orphans, sel.Key)
			continue
		}
		if _, ok := wanted[resolved.BusinessKey]; ok {
			continue
		}
		wanted[resolved.BusinessKey] = PlannedCreate{
			BusinessKey: resolved.BusinessKey,
			Key:         sel.Key,
			Name:        instance.DisplayName(resolved.BusinessKey.Date, resolved.BusinessKey.Name),
			StartTime:   resolved.StartTime,
		}
		wantedOrder = append(wantedOrder, resolved.BusinessKey)
	}

	for _, bk := range existingOrder {
		rec := existing[bk]
		if _, ok := wanted[bk]; !ok {
			plan.Delete = append(plan.Delete, rec)
			continue
		}
		if rec.Status == remote.StatusDraft {
			plan.Publish = append(plan.Publish, rec)
			continue
		}
		plan.Unchanged = append(plan.Unchanged, rec)
	}
	for _, bk := range wantedOrder {
		if _, ok := existing[bk]; !ok {
			plan.Create = append(plan.Create, wanted[bk])
		}
	}
	return plan, nil
}

func selectionBounds(selected []SelectedInstance) (first, last instance.Date, ok bool) {
	for _, sel := range selected {
		if !ok || sel.Key.Date.Before(first) {
			first = sel.Key.Date
		}
		if !ok || sel.Key.Date.After(last) {
			last = sel.Key.Date
		}
		ok = true
	}
	return first, last, ok
}

func businessKeyFromDisplay(date instance.Date, display string) instance.BusinessKey {
	if _, _, name, ok := instance.ParseDisplayName(display); ok {
		return instance.BusinessKey{Date: date, Name: name}
	}
	return instance.BusinessKey{Date: date, Name: display}
}
