package http

import (
	"log/slog"
	"net/http"
)

type RouterConfig struct {
	ServiceTypes *ServiceTypeHandler
	Selection    *SelectionHandler
	Availability *AvailabilityHandler
	Schedules    *ScheduleHandler
	Conflicts    *ConflictHandler
	Calendar     *CalendarHandler
	Leaders      LeaderOracle
	Logger       *slog.Logger
	Middleware   []func(http.Handler) http.Handler
}

// NewRouter mounts every team scoped endpoint under /teams/{team}/ plus an
// unauthenticated /healthz.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	responder := newResponder(cfg.Logger)

	handle := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, teamScope(cfg.Leaders, responder, h))
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if cfg.ServiceTypes != nil {
		handle("GET /teams/{team}/service-types", cfg.ServiceTypes.List)
		handle("POST /teams/{team}/service-types", cfg.ServiceTypes.Create)
		handle("GET /teams/{team}/service-types/candidates", cfg.ServiceTypes.Candidates)
		handle("PATCH /teams/{team}/service-types/{id}", cfg.ServiceTypes.Update)
		handle("DELETE /teams/{team}/service-types/{id}", cfg.ServiceTypes.Delete)
	}

	if cfg.Selection != nil {
		handle("GET /teams/{team}/selection", cfg.Selection.Get)
		handle("PUT /teams/{team}/selection/{key}", cfg.Selection.Select)
		handle("DELETE /teams/{team}/selection/{key}", cfg.Selection.Deselect)
		handle("PUT /teams/{team}/period", cfg.Selection.SetPeriod)
		handle("POST /teams/{team}/confirm", cfg.Selection.Confirm)
		handle("POST /teams/{team}/adhoc", cfg.Selection.AddAdhoc)
		handle("PATCH /teams/{team}/adhoc/{key}", cfg.Selection.UpdateAdhoc)
		handle("DELETE /teams/{team}/adhoc/{key}", cfg.Selection.RemoveAdhoc)
		handle("POST /teams/{team}/reconcile", cfg.Selection.Reconcile)
		handle("POST /teams/{team}/reconcile/plan", cfg.Selection.Plan)
	}

	if cfg.Availability != nil {
		handle("POST /teams/{team}/availability/sync", cfg.Availability.Sync)
		handle("GET /teams/{team}/availability/pending", cfg.Availability.Pending)
		handle("GET /teams/{team}/availability/responses", cfg.Availability.Responses)
		handle("PUT /teams/{team}/availability/{key}", cfg.Availability.Respond)
		handle("GET /teams/{team}/availability/{key}/responses", cfg.Availability.TeamResponses)
	}

	if cfg.Schedules != nil {
		handle("GET /teams/{team}/schedules", cfg.Schedules.List)
		handle("GET /teams/{team}/schedules/next", cfg.Schedules.Next)
		handle("GET /teams/{team}/schedules/previous", cfg.Schedules.Previous)
		handle("GET /teams/{team}/schedules/{key}", cfg.Schedules.Get)
		handle("PUT /teams/{team}/schedules/{key}", cfg.Schedules.Save)
		handle("DELETE /teams/{team}/schedules/{key}", cfg.Schedules.Clear)
		handle("POST /teams/{team}/schedules/{key}/focus", cfg.Schedules.Focus)
		handle("DELETE /teams/{team}/schedules/focus", cfg.Schedules.Unfocus)
		handle("POST /teams/{team}/schedules/{key}/publish", cfg.Schedules.Publish)
	}

	if cfg.Conflicts != nil {
		handle("GET /teams/{team}/conflicts", cfg.Conflicts.List)
		handle("POST /teams/{team}/conflicts/{id}/resolve", cfg.Conflicts.Resolve)
	}

	if cfg.Calendar != nil {
		handle("GET /teams/{team}/calendar.ics", cfg.Calendar.Export)
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handler
}
