package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/worship-scheduler/internal/application"
	"github.com/example/worship-scheduler/internal/instance"
)

// defaultCandidateDays is the window length when the caller omits "to".
const defaultCandidateDays = 56

type serviceTypeService interface {
	List(ctx context.Context, teamID string) ([]application.ServiceType, error)
	Add(ctx context.Context, params application.AddServiceTypeParams) (application.ServiceType, error)
	Update(ctx context.Context, params application.UpdateServiceTypeParams) (application.ServiceType, error)
	Delete(ctx context.Context, params application.DeleteServiceTypeParams) error
	Candidates(ctx context.Context, teamID string, from, to instance.Date) ([]instance.Key, error)
}

type ServiceTypeHandler struct {
	service   serviceTypeService
	responder responder
	logger    *slog.Logger
	now       func() time.Time
}

func NewServiceTypeHandler(service serviceTypeService, logger *slog.Logger) *ServiceTypeHandler {
	return &ServiceTypeHandler{service: service, responder: newResponder(logger), logger: logger, now: time.Now}
}

func (h *ServiceTypeHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	teamID, _ := TeamIDFromContext(r.Context())
	types, err := h.service.List(r.Context(), teamID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, serviceTypeListResponse{ServiceTypes: toServiceTypeDTOs(types)})
}

func (h *ServiceTypeHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req serviceTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	teamID, _ := TeamIDFromContext(r.Context())
	principal, _ := PrincipalFromContext(r.Context())

	created, err := h.service.Add(r.Context(), application.AddServiceTypeParams{
		Principal: principal,
		TeamID:    teamID,
		Input:     req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "ServiceTypeHandler", "Create", "service_type_id", created.ID).
		DebugContext(r.Context(), "service type created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toServiceTypeDTO(created))
}

func (h *ServiceTypeHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidServiceID)
		return
	}

	var req serviceTypePatchRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	teamID, _ := TeamIDFromContext(r.Context())
	principal, _ := PrincipalFromContext(r.Context())

	updated, err := h.service.Update(r.Context(), application.UpdateServiceTypeParams{
		Principal:     principal,
		TeamID:        teamID,
		ServiceTypeID: id,
		Patch:         req.toPatch(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toServiceTypeDTO(updated))
}

func (h *ServiceTypeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidServiceID)
		return
	}

	teamID, _ := TeamIDFromContext(r.Context())
	principal, _ := PrincipalFromContext(r.Context())

	if err := h.service.Delete(r.Context(), application.DeleteServiceTypeParams{
		Principal:     principal,
		TeamID:        teamID,
		ServiceTypeID: id,
	}); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Candidates lists the weekly instance keys between ?from= (default today)
// and ?to= (default eight weeks later).
func (h *ServiceTypeHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	from := instance.DateOf(h.now())
	if value := strings.TrimSpace(query.Get("from")); value != "" {
		parsed, err := instance.ParseDate(value)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
			return
		}
		from = parsed
	}
	to := from.AddDays(defaultCandidateDays - 1)
	if value := strings.TrimSpace(query.Get("to")); value != "" {
		parsed, err := instance.ParseDate(value)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
			return
		}
		to = parsed
	}

	teamID, _ := TeamIDFromContext(r.Context())
	keys, err := h.service.Candidates(r.Context(), teamID, from, to)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, candidatesResponse{From: from, To: to, Keys: keyStrings(keys)})
}

type serviceTypeRequest struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	ScheduleType   string        `json:"schedule_type"`
	DefaultWeekday *time.Weekday `json:"default_weekday"`
	ServiceTime    string        `json:"service_time"`
	RehearsalType  string        `json:"rehearsal_type"`
	RehearsalTime  string        `json:"rehearsal_time"`
	Order          *int          `json:"order"`
	IsPrimary      bool          `json:"is_primary"`
}

func (r serviceTypeRequest) toInput() application.ServiceTypeInput {
	return application.ServiceTypeInput{
		ID:             strings.TrimSpace(r.ID),
		Name:           strings.TrimSpace(r.Name),
		ScheduleType:   application.ScheduleType(strings.TrimSpace(r.ScheduleType)),
		DefaultWeekday: r.DefaultWeekday,
		ServiceTime:    strings.TrimSpace(r.ServiceTime),
		RehearsalType:  application.RehearsalType(strings.TrimSpace(r.RehearsalType)),
		RehearsalTime:  strings.TrimSpace(r.RehearsalTime),
		Order:          r.Order,
		IsPrimary:      r.IsPrimary,
	}
}

type serviceTypePatchRequest struct {
	Name           *string       `json:"name"`
	ScheduleType   *string       `json:"schedule_type"`
	DefaultWeekday *time.Weekday `json:"default_weekday"`
	ClearWeekday   bool          `json:"clear_weekday"`
	ServiceTime    *string       `json:"service_time"`
	RehearsalType  *string       `json:"rehearsal_type"`
	RehearsalTime  *string       `json:"rehearsal_time"`
	Order          *int          `json:"order"`
	IsPrimary      *bool         `json:"is_primary"`
}

func (r serviceTypePatchRequest) toPatch() application.ServiceTypePatch {
	patch := application.ServiceTypePatch{
		Name:           r.Name,
		DefaultWeekday: r.DefaultWeekday,
		ClearWeekday:   r.ClearWeekday,
		ServiceTime:    r.ServiceTime,
		RehearsalTime:  r.RehearsalTime,
		Order:          r.Order,
		IsPrimary:      r.IsPrimary,
	}
	if r.ScheduleType != nil {
		st := application.ScheduleType(strings.TrimSpace(*r.ScheduleType))
		patch.ScheduleType = &st
	}
	if r.RehearsalType != nil {
		rt := application.RehearsalType(strings.TrimSpace(*r.RehearsalType))
		patch.RehearsalType = &rt
	}
	return patch
}

type candidatesResponse struct {
	From instance.Date `json:"from"`
	To   instance.Date `json:"to"`
	Keys []string      `json:"keys"`
}

type serviceTypeListResponse struct {
	ServiceTypes []serviceTypeDTO `json:"service_types"`
}

type serviceTypeDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ScheduleType   string `json:"schedule_type"`
	DefaultWeekday *int   `json:"default_weekday,omitempty"`
	ServiceTime    string `json:"service_time,omitempty"`
	RehearsalType  string `json:"rehearsal_type"`
	RehearsalTime  string `json:"rehearsal_time,omitempty"`
	Order          int    `json:"order"`
	IsPrimary      bool   `json:"is_primary"`
}

func toServiceTypeDTO(st application.ServiceType) serviceTypeDTO {
	dto := serviceTypeDTO{
		ID:            st.ID,
		Name:          st.Name,
		ScheduleType:  string(st.ScheduleType),
		ServiceTime:   st.ServiceTime,
		RehearsalType: string(st.RehearsalType),
		RehearsalTime: st.RehearsalTime,
		Order:         st.Order,
		IsPrimary:     st.IsPrimary,
	}
	if st.DefaultWeekday != nil {
		wd := int(*st.DefaultWeekday)
		dto.DefaultWeekday = &wd
	}
	return dto
}

func toServiceTypeDTOs(types []application.ServiceType) []serviceTypeDTO {
	out := make([]serviceTypeDTO, 0, len(types))
	for _, st := range types {
		out = append(out, toServiceTypeDTO(st))
	}
	return out
}
