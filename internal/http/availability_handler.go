package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/worship-scheduler/internal/application"
	"github.com/example/worship-scheduler/internal/instance"
	"github.com/example/worship-scheduler/internal/scheduler"
)

type availabilityService interface {
	SyncFromSelection(ctx context.Context, params application.SyncParams) (application.SyncResult, error)
	Respond(ctx context.Context, params application.RespondParams) (application.RespondResult, error)
	Pending(ctx context.Context, teamID, memberID string) ([]application.AvailabilityRequest, error)
	Responses(ctx context.Context, teamID, memberID string) ([]application.MemberAvailability, error)
	TeamResponses(ctx context.Context, teamID string, key instance.Key) ([]application.MemberAvailability, error)
}

type selectionReader interface {
	Selection(ctx context.Context, teamID string) (application.Selection, error)
}

type AvailabilityHandler struct {
	service    availabilityService
	selections selectionReader
	responder  responder
	logger     *slog.Logger
}

func NewAvailabilityHandler(service availabilityService, selections selectionReader, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{service: service, selections: selections, responder: newResponder(logger), logger: logger}
}

// Sync asks each listed member about the given keys, or about the team's
// current selection when no keys are sent. Leaders only.
func (h *AvailabilityHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if !principal.IsLeader {
		h.responder.handleServiceError(r.Context(), w, application.ErrUnauthorized)
		return
	}

	var req syncRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	teamID, _ := TeamIDFromContext(r.Context())

	var (
		keys     []instance.Key
		deadline = req.Deadline
	)
	if req.Keys == nil {
		if h.selections == nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		selection, err := h.selections.Selection(r.Context(), teamID)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, err)
			return
		}
		keys = selection.Keys
		if deadline == nil {
			deadline = selection.Deadline
		}
	} else {
		for _, raw := range req.Keys {
			key, err := instance.ParseKey(raw)
			if err != nil {
				h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidKey)
				return
			}
			keys = append(keys, key)
		}
	}

	results := make(map[string]syncResultDTO, len(req.MemberIDs))
	for _, memberID := range req.MemberIDs {
		memberID = strings.TrimSpace(memberID)
		result, err := h.service.SyncFromSelection(r.Context(), application.SyncParams{
			TeamID:   teamID,
			MemberID: memberID,
			Keys:     keys,
			Deadline: deadline,
		})
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, err)
			return
		}
		results[memberID] = syncResultDTO{
			Added:   keyStrings(result.Added),
			Removed: keyStrings(result.Removed),
			Kept:    keyStrings(result.Kept),
			Skipped: keyStrings(result.Skipped),
		}
	}

	handlerLogger(r.Context(), h.logger, "AvailabilityHandler", "Sync", "members", len(results), "keys", len(keys)).
		InfoContext(r.Context(), "availability requests synchronized")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, syncResponse{Members: results})
}

func (h *AvailabilityHandler) Respond(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	key, err := instance.ParseKey(r.PathValue("key"))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidKey)
		return
	}
	var req respondRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	teamID, _ := TeamIDFromContext(r.Context())
	principal, _ := PrincipalFromContext(r.Context())

	result, err := h.service.Respond(r.Context(), application.RespondParams{
		TeamID:     teamID,
		MemberID:   principal.MemberID,
		MemberName: strings.TrimSpace(req.MemberName),
		Key:        key,
		Status:     scheduler.AvailabilityStatus(strings.TrimSpace(req.Status)),
		Note:       req.Note,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	response := respondResponse{Availability: toAvailabilityDTO(result.Availability)}
	if result.Conflict != nil {
		conflict := toConflictDTO(*result.Conflict)
		response.Conflict = &conflict
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, response)
}

func (h *AvailabilityHandler) Pending(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	teamID, _ := TeamIDFromContext(r.Context())
	principal, _ := PrincipalFromContext(r.Context())

	requests, err := h.service.Pending(r.Context(), teamID, principal.MemberID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]availabilityRequestDTO, 0, len(requests))
	for _, req := range requests {
		out = append(out, availabilityRequestDTO{
			Key:          req.Key.String(),
			InstanceName: req.InstanceName,
			InstanceTime: req.InstanceTime,
			Deadline:     req.Deadline,
			RequestedAt:  req.RequestedAt,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, pendingResponse{Requests: out})
}

func (h *AvailabilityHandler) Responses(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	teamID, _ := TeamIDFromContext(r.Context())
	principal, _ := PrincipalFromContext(r.Context())

	responses, err := h.service.Responses(r.Context(), teamID, principal.MemberID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, responsesResponse{Responses: toAvailabilityDTOs(responses)})
}

func (h *AvailabilityHandler) TeamResponses(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	key, err := instance.ParseKey(r.PathValue("key"))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidKey)
		return
	}
	teamID, _ := TeamIDFromContext(r.Context())

	responses, err := h.service.TeamResponses(r.Context(), teamID, key)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, responsesResponse{Responses: toAvailabilityDTOs(responses)})
}

type syncRequest struct {
	MemberIDs []string   `json:"member_ids"`
	Keys      []string   `json:"keys"`
	Deadline  *time.Time `json:"deadline"`
}

type syncResultDTO struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Kept    []string `json:"kept"`
	Skipped []string `json:"skipped,omitempty"`
}

type syncResponse struct {
	Members map[string]syncResultDTO `json:"members"`
}

type respondRequest struct {
	Status     string `json:"status"`
	Note       string `json:"note"`
	MemberName string `json:"member_name"`
}

type respondResponse struct {
	Availability availabilityDTO `json:"availability"`
	Conflict     *conflictDTO    `json:"conflict,omitempty"`
}

type availabilityRequestDTO struct {
	Key          string     `json:"key"`
	InstanceName string     `json:"instance_name"`
	InstanceTime string     `json:"instance_time,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	RequestedAt  time.Time  `json:"requested_at"`
}

type pendingResponse struct {
	Requests []availabilityRequestDTO `json:"requests"`
}

type availabilityDTO struct {
	Key         string     `json:"key"`
	MemberID    string     `json:"member_id"`
	Status      string     `json:"status"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	Note        string     `json:"note,omitempty"`
}

type responsesResponse struct {
	Responses []availabilityDTO `json:"responses"`
}

func toAvailabilityDTO(a application.MemberAvailability) availabilityDTO {
	return availabilityDTO{
		Key:         a.Key.String(),
		MemberID:    a.MemberID,
		Status:      string(a.Status),
		RespondedAt: a.RespondedAt,
		Note:        a.Note,
	}
}

func toAvailabilityDTOs(responses []application.MemberAvailability) []availabilityDTO {
	out := make([]availabilityDTO, 0, len(responses))
	for _, a := range responses {
		out = append(out, toAvailabilityDTO(a))
	}
	return out
}
