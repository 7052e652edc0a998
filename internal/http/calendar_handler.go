package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/worship-scheduler/internal/application"
	"github.com/example/worship-scheduler/internal/calendar"
)

type calendarSources interface {
	List(ctx context.Context, teamID string) ([]application.ScheduleInstance, error)
	Selection(ctx context.Context, teamID string) (application.Selection, error)
}

type serviceTypeLister interface {
	List(ctx context.Context, teamID string) ([]application.ServiceType, error)
}

// CalendarHandler serves the published schedules of a team as text/calendar.
type CalendarHandler struct {
	schedules calendarSources
	types     serviceTypeLister
	options   calendar.Options
	responder responder
	logger    *slog.Logger
}

func NewCalendarHandler(schedules calendarSources, types serviceTypeLister, options calendar.Options, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{schedules: schedules, types: types, options: options, responder: newResponder(logger), logger: logger}
}

func (h *CalendarHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.schedules == nil || h.types == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	teamID, _ := TeamIDFromContext(ctx)

	schedules, err := h.schedules.List(ctx, teamID)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	selection, err := h.schedules.Selection(ctx, teamID)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	types, err := h.types.List(ctx, teamID)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	options := h.options
	if options.Now.IsZero() {
		options.Now = time.Now()
	}
	body := calendar.Export(teamID, schedules, selection, types, options)

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+teamID+`.ics"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, body); err != nil {
		handlerLogger(ctx, h.logger, "CalendarHandler", "Export").ErrorContext(ctx, "failed to write calendar", "error", err)
	}
}
