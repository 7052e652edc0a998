package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/worship-scheduler/internal/application"
	"github.com/example/worship-scheduler/internal/instance"
	"github.com/example/worship-scheduler/internal/remote"
)

type selectionService interface {
	Selection(ctx context.Context, teamID string) (application.Selection, error)
	Select(ctx context.Context, params application.SelectParams) (application.Selection, error)
	Deselect(ctx context.Context, params application.SelectParams) (application.Selection, error)
	AddAdhoc(ctx context.Context, params application.AddAdhocParams) (application.AdhocService, error)
	UpdateAdhoc(ctx context.Context, params application.UpdateAdhocParams) (application.AdhocService, error)
	RemoveAdhoc(ctx context.Context, params application.SelectParams) error
	SetPeriod(ctx context.Context, params application.SetPeriodParams) (application.Selection, error)
	Confirm(ctx context.Context, params application.TeamParams) (application.Selection, error)
}

type reconcileService interface {
	Plan(ctx context.Context, params application.ReconcileParams) (application.ReconcilePlan, error)
	Reconcile(ctx context.Context, params application.ReconcileParams) (application.ReconcileResult, error)
}

// SelectionHandler serves the leader's calendar selection and pushes it to
// the remote service list.
type SelectionHandler struct {
	selections selectionService
	reconciler reconcileService
	responder  responder
	logger     *slog.Logger
}

func NewSelectionHandler(selections selectionService, reconciler reconcileService, logger *slog.Logger) *SelectionHandler {
	return &SelectionHandler{selections: selections, reconciler: reconciler, responder: newResponder(logger), logger: logger}
}

func (h *SelectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.selections == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	teamID, _ := TeamIDFromContext(r.Context())
	selection, err := h.selections.Selection(r.Context(), teamID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSelectionDTO(selection))
}

func (h *SelectionHandler) Select(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, true)
}

func (h *SelectionHandler) Deselect(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, false)
}

func (h *SelectionHandler) toggle(w http.ResponseWriter, r *http.Request, selected bool) {
	if h == nil || h.selections == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	key, ok := h.pathKey(w, r)
	if !ok {
		return
	}
	teamID, _ := TeamIDFromContext(r.Context())
	principal, _ := PrincipalFromContext(r.Context())
	params := application.SelectParams{Principal: principal, TeamID: teamID, Key: key}

	var (
		selection application.Selection
		err       error
	)
	if selected {
		selection, err = h.selections.Select(r.Context(), params)
	} else {
		selection, err = h.selections.Deselect(r.Context(), params)
	}
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSelectionDTO(selection))
}

func (h *SelectionHandler) AddAdhoc(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.selections == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req adhocRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	date, err := instance.ParseDate(req.Date)
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
		return
	}

	teamID, _ := TeamIDFromContext(r.Context())
	principal, _ := PrincipalFromContext(r.Context())

	service, err := h.selections.AddAdhoc(r.Context(), application.AddAdhocParams{
		Principal:   principal,
		TeamID:      teamID,
		Date:        date,
		ServiceTime: strings.TrimSpace(req.ServiceTime),
		Label:       strings.TrimSpace(req.Label),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toAdhocDTO(service))
}

func (h *SelectionHandler) UpdateAdhoc(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.selections == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	key, ok := h.pathKey(w, r)
	if !ok {
		return
	}
	var req adhocRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	teamID, _ := TeamIDFromContext(r.Context())
	principal, _ := PrincipalFromContext(r.Context())

	service, err := h.selections.UpdateAdhoc(r.Context(), application.UpdateAdhocParams{
		Principal:   principal,
		TeamID:      teamID,
		Key:         key,
		ServiceTime: strings.TrimSpace(req.ServiceTime),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAdhocDTO(service))
}

func (h *SelectionHandler) RemoveAdhoc(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.selections == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	key, ok := h.pathKey(w, r)
	if !ok {
		return
	}
	teamID, _ := TeamIDFromContext(r.Context())
	principal, _ := PrincipalFromContext(r.Context())

	if err := h.selections.RemoveAdhoc(r.Context(), application.SelectParams{Principal: principal, TeamID: teamID, Key: key}); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *SelectionHandler) SetPeriod(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.selections == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req periodRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	teamID, _ := TeamIDFromContext(r.Context())
	principal, _ := PrincipalFromContext(r.Context())

	selection, err := h.selections.SetPeriod(r.Context(), application.SetPeriodParams{
		Principal: principal,
		TeamID:    teamID,
		Title:     strings.TrimSpace(req.Title),
		Deadline:  req.Deadline,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSelectionDTO(selection))
}

func (h *SelectionHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.selections == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	teamID, _ := TeamIDFromContext(r.Context())
	principal, _ := PrincipalFromContext(r.Context())

	selection, err := h.selections.Confirm(r.Context(), application.TeamParams{Principal: principal, TeamID: teamID})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSelectionDTO(selection))
}

func (h *SelectionHandler) Plan(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.reconciler == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	params, ok := h.reconcileParams(w, r)
	if !ok {
		return
	}
	plan, err := h.reconciler.Plan(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toPlanDTO(plan))
}

func (h *SelectionHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.reconciler == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	params, ok := h.reconcileParams(w, r)
	if !ok {
		return
	}
	result, err := h.reconciler.Reconcile(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	if len(result.Failures) > 0 {
		handlerLogger(r.Context(), h.logger, "SelectionHandler", "Reconcile").
			WarnContext(r.Context(), "reconciliation finished with remote failures", "failures", len(result.Failures))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toReconcileDTO(result))
}

func (h *SelectionHandler) reconcileParams(w http.ResponseWriter, r *http.Request) (application.ReconcileParams, bool) {
	var req reconcileRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return application.ReconcileParams{}, false
	}

	teamID, _ := TeamIDFromContext(r.Context())
	principal, _ := PrincipalFromContext(r.Context())
	params := application.ReconcileParams{Principal: principal, TeamID: teamID}

	var err error
	if req.From != "" {
		if params.From, err = instance.ParseDate(req.From); err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
			return application.ReconcileParams{}, false
		}
	}
	if req.To != "" {
		if params.To, err = instance.ParseDate(req.To); err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
			return application.ReconcileParams{}, false
		}
	}
	return params, true
}

func (h *SelectionHandler) pathKey(w http.ResponseWriter, r *http.Request) (instance.Key, bool) {
	key, err := instance.ParseKey(r.PathValue("key"))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidKey)
		return instance.Key{}, false
	}
	return key, true
}

type adhocRequest struct {
	Date        string `json:"date"`
	ServiceTime string `json:"service_time"`
	Label       string `json:"label"`
}

type periodRequest struct {
	Title    string     `json:"title"`
	Deadline *time.Time `json:"deadline"`
}

type reconcileRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type selectionDTO struct {
	TeamID      string        `json:"team_id"`
	Keys        []string      `json:"keys"`
	Instances   []selectedDTO `json:"instances"`
	Adhoc       []adhocDTO    `json:"adhoc"`
	IsConfirmed bool          `json:"is_confirmed"`
	PeriodTitle string        `json:"period_title,omitempty"`
	Deadline    *time.Time    `json:"deadline,omitempty"`
}

type selectedDTO struct {
	Key         string `json:"key"`
	ServiceTime string `json:"service_time,omitempty"`
	Label       string `json:"label,omitempty"`
}

type adhocDTO struct {
	Key         string `json:"key"`
	Date        string `json:"date"`
	Ordinal     int    `json:"ordinal"`
	ServiceTime string `json:"service_time"`
	Label       string `json:"label,omitempty"`
	Name        string `json:"name"`
}

func toSelectionDTO(selection application.Selection) selectionDTO {
	dto := selectionDTO{
		TeamID:      selection.TeamID,
		Keys:        keyStrings(selection.Keys),
		Instances:   make([]selectedDTO, 0, len(selection.Instances)),
		Adhoc:       make([]adhocDTO, 0, len(selection.Adhoc)),
		IsConfirmed: selection.IsConfirmed,
		PeriodTitle: selection.PeriodTitle,
		Deadline:    selection.Deadline,
	}
	for _, sel := range selection.Instances {
		dto.Instances = append(dto.Instances, selectedDTO{Key: sel.Key.String(), ServiceTime: sel.ServiceTime, Label: sel.Label})
	}
	for _, svc := range selection.Adhoc {
		dto.Adhoc = append(dto.Adhoc, toAdhocDTO(svc))
	}
	return dto
}

func toAdhocDTO(svc application.AdhocService) adhocDTO {
	return adhocDTO{
		Key:         svc.Key().String(),
		Date:        svc.Date.String(),
		Ordinal:     svc.Ordinal,
		ServiceTime: svc.ServiceTime,
		Label:       svc.Label,
		Name:        instance.AdhocName(svc.ServiceTime),
	}
}

type serviceRecordDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ServiceDate string `json:"service_date"`
	StartTime   string `json:"start_time,omitempty"`
	Status      string `json:"status"`
}

type plannedCreateDTO struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	StartTime string `json:"start_time,omitempty"`
}

type failureDTO struct {
	Operation   string `json:"operation"`
	ServiceDate string `json:"service_date,omitempty"`
	Name        string `json:"name,omitempty"`
	ServiceID   string `json:"service_id,omitempty"`
	Error       string `json:"error"`
}

type planDTO struct {
	From       string             `json:"from,omitempty"`
	To         string             `json:"to,omitempty"`
	Create     []plannedCreateDTO `json:"create"`
	Delete     []serviceRecordDTO `json:"delete"`
	Publish    []serviceRecordDTO `json:"publish"`
	Unchanged  []serviceRecordDTO `json:"unchanged"`
	Duplicates []serviceRecordDTO `json:"duplicates,omitempty"`
	Orphans    []string           `json:"orphans,omitempty"`
}

type reconcileDTO struct {
	Created    []serviceRecordDTO `json:"created"`
	Published  []serviceRecordDTO `json:"published"`
	Deleted    []serviceRecordDTO `json:"deleted"`
	Unchanged  []serviceRecordDTO `json:"unchanged"`
	Failures   []failureDTO       `json:"failures,omitempty"`
	Duplicates []serviceRecordDTO `json:"duplicates,omitempty"`
	Orphans    []string           `json:"orphans,omitempty"`
}

func toPlanDTO(plan application.ReconcilePlan) planDTO {
	creates := make([]plannedCreateDTO, 0, len(plan.Create))
	for _, c := range plan.Create {
		creates = append(creates, plannedCreateDTO{Key: c.Key.String(), Name: c.Name, StartTime: c.StartTime})
	}
	return planDTO{
		From:       plan.Window.From.String(),
		To:         plan.Window.To.String(),
		Create:     creates,
		Delete:     toServiceRecordDTOs(plan.Delete),
		Publish:    toServiceRecordDTOs(plan.Publish),
		Unchanged:  toServiceRecordDTOs(plan.Unchanged),
		Duplicates: toServiceRecordDTOs(plan.Duplicates),
		Orphans:    keyStrings(plan.Orphans),
	}
}

func toReconcileDTO(result application.ReconcileResult) reconcileDTO {
	return reconcileDTO{
		Created:    toServiceRecordDTOs(result.Created),
		Published:  toServiceRecordDTOs(result.Published),
		Deleted:    toServiceRecordDTOs(result.Deleted),
		Unchanged:  toServiceRecordDTOs(result.Unchanged),
		Failures:   toFailureDTOs(result.Failures),
		Duplicates: toServiceRecordDTOs(result.Duplicates),
		Orphans:    keyStrings(result.Orphans),
	}
}

func toServiceRecordDTOs(services []remote.Service) []serviceRecordDTO {
	out := make([]serviceRecordDTO, 0, len(services))
	for _, svc := range services {
		out = append(out, serviceRecordDTO{
			ID:          svc.ID,
			Name:        svc.Name,
			ServiceDate: svc.ServiceDate.String(),
			StartTime:   svc.StartTime,
			Status:      string(svc.Status),
		})
	}
	return out
}

func toFailureDTOs(failures []application.ReconcileFailure) []failureDTO {
	if len(failures) == 0 {
		return nil
	}
	out := make([]failureDTO, 0, len(failures))
	for _, f := range failures {
		dto := failureDTO{Operation: f.Operation, Name: f.BusinessKey.Name, ServiceID: f.ServiceID}
		if !f.BusinessKey.Date.IsZero() {
			dto.ServiceDate = f.BusinessKey.Date.String()
		}
		if f.Err != nil {
			dto.Error = f.Err.Error()
		}
		out = append(out, dto)
	}
	return out
}

func keyStrings(keys []instance.Key) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, key.String())
	}
	return out
}
