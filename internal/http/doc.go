// Package http exposes the scheduling services as a JSON API.
//
// Every endpoint except GET /healthz is scoped to a team and requires the
// X-Member-ID header. Leader capability is decided per team by a LeaderOracle;
// leader-only operations answer 403 for other members.
//
//   - GET/POST /teams/{team}/service-types, PATCH/DELETE /teams/{team}/service-types/{id}:
//     the team's recurring service templates (serviceTypeDTO).
//   - GET /teams/{team}/selection, PUT/DELETE /teams/{team}/selection/{key}: the calendar
//     selection. Keys are "YYYY-MM-DD", "YYYY-MM-DD:<service type id>" or "YYYY-MM-DD:adhoc-N".
//   - POST /teams/{team}/adhoc, PATCH/DELETE /teams/{team}/adhoc/{key}: one-off services.
//   - PUT /teams/{team}/period, POST /teams/{team}/confirm: availability period metadata.
//   - POST /teams/{team}/reconcile and /reconcile/plan: push the selection to the remote
//     service list, or preview the operations. Body {"from","to"} narrows the date range.
//   - POST /teams/{team}/availability/sync, GET .../availability/pending and .../responses,
//     PUT .../availability/{key}, GET .../availability/{key}/responses: availability requests
//     and answers. A response that contradicts current assignments returns the recorded conflict.
//   - GET /teams/{team}/schedules, GET/PUT/DELETE .../schedules/{key}, POST .../focus and
//     .../publish, GET .../schedules/next and /previous?from=YYYY-MM-DD: per-instance
//     assignments. PUT with X-Focus-Token is dropped with 409 once the client (X-Client-ID)
//     has focused another instance, called DELETE .../schedules/focus, or gone idle.
//   - GET /teams/{team}/conflicts?unresolved=true, POST .../conflicts/{id}/resolve.
//   - GET /teams/{team}/calendar.ics: published schedules as iCalendar.
//
// Error bodies are {"error_code","message","errors"} with Japanese messages.
package http
