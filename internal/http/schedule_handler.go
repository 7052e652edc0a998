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

type scheduleService interface {
	Get(ctx context.Context, teamID string, key instance.Key) (application.ScheduleInstance, error)
	List(ctx context.Context, teamID string) ([]application.ScheduleInstance, error)
	Save(ctx context.Context, params application.SaveScheduleParams) (application.ScheduleInstance, error)
	SaveFocused(ctx context.Context, token application.FocusToken, params application.SaveScheduleParams) (application.ScheduleInstance, error)
	Clear(ctx context.Context, params application.SelectParams) error
	Next(ctx context.Context, teamID string, from instance.Date) (instance.Date, bool, error)
	Previous(ctx context.Context, teamID string, from instance.Date) (instance.Date, bool, error)
	Focus(clientID, teamID string, key instance.Key) application.FocusToken
	FocusToken(id string) (application.FocusToken, bool)
	Unfocus(clientID string)
}

type publishService interface {
	Publish(ctx context.Context, params application.PublishParams) (application.PublishResult, error)
}

type ScheduleHandler struct {
	service   scheduleService
	publisher publishService
	responder responder
	logger    *slog.Logger
	now       func() time.Time
}

func NewScheduleHandler(service scheduleService, publisher publishService, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{service: service, publisher: publisher, responder: newResponder(logger), logger: logger, now: time.Now}
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	teamID, _ := TeamIDFromContext(r.Context())
	schedules, err := h.service.List(r.Context(), teamID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]scheduleDTO, 0, len(schedules))
	for _, schedule := range schedules {
		out = append(out, toScheduleDTO(schedule))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSchedulesResponse{Schedules: out})
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	key, ok := h.pathKey(w, r)
	if !ok {
		return
	}
	teamID, _ := TeamIDFromContext(r.Context())

	schedule, err := h.service.Get(r.Context(), teamID, key)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toScheduleDTO(schedule))
}

// Save stores assignments. With an X-Focus-Token header the write is dropped
// with 409 once the client has focused another instance.
func (h *ScheduleHandler) Save(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	key, ok := h.pathKey(w, r)
	if !ok {
		return
	}
	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	teamID, _ := TeamIDFromContext(r.Context())
	principal, _ := PrincipalFromContext(r.Context())
	params := application.SaveScheduleParams{
		Principal: principal,
		TeamID:    teamID,
		Key:       key,
		Input:     req.toInput(),
	}

	var (
		schedule application.ScheduleInstance
		err      error
	)
	if tokenID := strings.TrimSpace(r.Header.Get(FocusTokenHeader)); tokenID != "" {
		token, found := h.service.FocusToken(tokenID)
		if !found {
			h.responder.writeError(r.Context(), w, http.StatusConflict, errUnknownFocus)
			return
		}
		schedule, err = h.service.SaveFocused(r.Context(), token, params)
	} else {
		schedule, err = h.service.Save(r.Context(), params)
	}
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toScheduleDTO(schedule))
}

func (h *ScheduleHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	key, ok := h.pathKey(w, r)
	if !ok {
		return
	}
	teamID, _ := TeamIDFromContext(r.Context())
	principal, _ := PrincipalFromContext(r.Context())

	if err := h.service.Clear(r.Context(), application.SelectParams{Principal: principal, TeamID: teamID, Key: key}); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *ScheduleHandler) Focus(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	key, ok := h.pathKey(w, r)
	if !ok {
		return
	}
	clientID := strings.TrimSpace(r.Header.Get(ClientIDHeader))
	if clientID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingClientID)
		return
	}
	teamID, _ := TeamIDFromContext(r.Context())

	token := h.service.Focus(clientID, teamID, key)
	handlerLogger(r.Context(), h.logger, "ScheduleHandler", "Focus", "client_id", clientID, "key", key.String()).
		DebugContext(r.Context(), "schedule focused")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, focusResponse{Token: token.ID, Key: key.String()})
}

// Unfocus drops the X-Client-ID client's focus so later writes with its token
// are rejected.
func (h *ScheduleHandler) Unfocus(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	clientID := strings.TrimSpace(r.Header.Get(ClientIDHeader))
	if clientID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingClientID)
		return
	}
	h.service.Unfocus(clientID)
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *ScheduleHandler) Publish(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.publisher == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	key, ok := h.pathKey(w, r)
	if !ok {
		return
	}
	teamID, _ := TeamIDFromContext(r.Context())
	principal, _ := PrincipalFromContext(r.Context())

	result, err := h.publisher.Publish(r.Context(), application.PublishParams{Principal: principal, TeamID: teamID, Key: key})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	response := publishResponse{
		Schedule: toScheduleDTO(result.Schedule),
		Failures: toFailureDTOs(result.Failures),
	}
	if result.Service != nil {
		records := toServiceRecordDTOs([]remote.Service{*result.Service})
		response.Service = &records[0]
	}
	for _, role := range result.Roles {
		response.Roles = append(response.Roles, roleDTO{ID: role.ID, NameEn: role.NameEn, Emoji: role.Emoji})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, response)
}

func (h *ScheduleHandler) Next(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, true)
}

func (h *ScheduleHandler) Previous(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, false)
}

func (h *ScheduleHandler) navigate(w http.ResponseWriter, r *http.Request, forward bool) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	from := instance.DateOf(h.now())
	if value := strings.TrimSpace(r.URL.Query().Get("from")); value != "" {
		parsed, err := instance.ParseDate(value)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
			return
		}
		from = parsed
	}
	teamID, _ := TeamIDFromContext(r.Context())

	var (
		date  instance.Date
		found bool
		err   error
	)
	if forward {
		date, found, err = h.service.Next(r.Context(), teamID, from)
	} else {
		date, found, err = h.service.Previous(r.Context(), teamID, from)
	}
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if !found {
		h.responder.handleServiceError(r.Context(), w, application.ErrNotFound)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, navigationResponse{Date: date.String()})
}

func (h *ScheduleHandler) pathKey(w http.ResponseWriter, r *http.Request) (instance.Key, bool) {
	key, err := instance.ParseKey(r.PathValue("key"))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidKey)
		return instance.Key{}, false
	}
	return key, true
}

type scheduleRequest struct {
	Assignments      map[string]string             `json:"assignments"`
	InstrumentSetups map[string]instrumentSetupDTO `json:"instrument_setups"`
	Status           string                        `json:"status"`
	Reopen           bool                          `json:"reopen"`
}

func (r scheduleRequest) toInput() application.ScheduleInput {
	input := application.ScheduleInput{
		Assignments: r.Assignments,
		Status:      application.ScheduleStatus(strings.TrimSpace(r.Status)),
		Reopen:      r.Reopen,
	}
	if r.InstrumentSetups != nil {
		input.InstrumentSetups = make(map[string]application.InstrumentSetup, len(r.InstrumentSetups))
		for id, setup := range r.InstrumentSetups {
			input.InstrumentSetups[id] = application.InstrumentSetup{Enabled: setup.Enabled, Count: setup.Count}
		}
	}
	return input
}

type instrumentSetupDTO struct {
	Enabled bool `json:"enabled"`
	Count   int  `json:"count"`
}

type scheduleDTO struct {
	Key              string                        `json:"key"`
	Assignments      map[string]string             `json:"assignments"`
	InstrumentSetups map[string]instrumentSetupDTO `json:"instrument_setups"`
	Status           string                        `json:"status"`
	UpdatedAt        string                        `json:"updated_at,omitempty"`
}

func toScheduleDTO(schedule application.ScheduleInstance) scheduleDTO {
	dto := scheduleDTO{
		Key:              schedule.Key.String(),
		Assignments:      schedule.Assignments,
		InstrumentSetups: make(map[string]instrumentSetupDTO, len(schedule.InstrumentSetups)),
		Status:           string(schedule.Status),
	}
	if dto.Assignments == nil {
		dto.Assignments = map[string]string{}
	}
	for id, setup := range schedule.InstrumentSetups {
		dto.InstrumentSetups[id] = instrumentSetupDTO{Enabled: setup.Enabled, Count: setup.Count}
	}
	if !schedule.UpdatedAt.IsZero() {
		dto.UpdatedAt = schedule.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

type listSchedulesResponse struct {
	Schedules []scheduleDTO `json:"schedules"`
}

type focusResponse struct {
	Token string `json:"token"`
	Key   string `json:"key"`
}

type roleDTO struct {
	ID     string `json:"id"`
	NameEn string `json:"name_en"`
	Emoji  string `json:"emoji,omitempty"`
}

type publishResponse struct {
	Schedule scheduleDTO       `json:"schedule"`
	Service  *serviceRecordDTO `json:"service,omitempty"`
	Roles    []roleDTO         `json:"roles,omitempty"`
	Failures []failureDTO      `json:"failures,omitempty"`
}

type navigationResponse struct {
	Date string `json:"date"`
}
