package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/example/worship-scheduler/internal/instance"
	"github.com/example/worship-scheduler/internal/persistence"
	"github.com/example/worship-scheduler/internal/scheduler"
	"github.com/example/worship-scheduler/internal/testfixtures"
)

func TestAvailabilitySynchronizer_AddThenRemove(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addSunday(t)
	ctx := context.Background()

	first := env.sync(t, "m1", "2026-01-04", "2026-01-11")
	if got := keyStrings(first.Added); !slices.Equal(got, []string{"2026-01-04:st1", "2026-01-11:st1"}) {
		t.Fatalf("expected two added keys, got %v", got)
	}
	pending, err := env.availability.Pending(ctx, testTeam, "m1")
	if err != nil {
		t.Fatalf("Pending returned error: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected two pending requests, got %d", len(pending))
	}
	if pending[0].InstanceName != "Sunday 11:00" || pending[0].InstanceTime != "11:00" || pending[0].TeamID != testTeam {
		t.Fatalf("unexpected request contents: %+v", pending[0])
	}

	second := env.sync(t, "m1", "2026-01-04")
	if got := keyStrings(second.Removed); !slices.Equal(got, []string{"2026-01-11:st1"}) {
		t.Fatalf("expected removed [2026-01-11:st1], got %v", got)
	}
	if len(second.Added) != 0 {
		t.Fatalf("expected nothing added, got %v", keyStrings(second.Added))
	}
	if got := keyStrings(second.Kept); !slices.Equal(got, []string{"2026-01-04:st1"}) {
		t.Fatalf("expected kept [2026-01-04:st1], got %v", got)
	}

	pending, err = env.availability.Pending(ctx, testTeam, "m1")
	if err != nil {
		t.Fatalf("Pending returned error: %v", err)
	}
	if len(pending) != 1 || pending[0].Key.String() != "2026-01-04:st1" {
		t.Fatalf("expected single pending request for 2026-01-04:st1, got %+v", pending)
	}
}

func TestAvailabilitySynchronizer_ResponseSurvivesResync(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addSunday(t)
	ctx := context.Background()

	env.sync(t, "m1", "2026-01-04", "2026-01-11")
	if _, err := env.availability.Respond(ctx, RespondParams{
		TeamID:   testTeam,
		MemberID: "m1",
		Key:      instance.MustParseKey("2026-01-04:st1"),
		Status:   scheduler.StatusUnavailable,
	}); err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}

	result := env.sync(t, "m1", "2026-01-04", "2026-01-11")
	if len(result.Added) != 0 || len(result.Removed) != 0 {
		t.Fatalf("expected no changes, got added %v removed %v", keyStrings(result.Added), keyStrings(result.Removed))
	}

	responses, err := env.availability.Responses(ctx, testTeam, "m1")
	if err != nil {
		t.Fatalf("Responses returned error: %v", err)
	}
	if len(responses) != 1 || responses[0].Key.String() != "2026-01-04:st1" || responses[0].Status != scheduler.StatusUnavailable {
		t.Fatalf("expected preserved unavailable response, got %+v", responses)
	}

	pending, err := env.availability.Pending(ctx, testTeam, "m1")
	if err != nil {
		t.Fatalf("Pending returned error: %v", err)
	}
	for _, req := range pending {
		if req.Key.String() == "2026-01-04:st1" {
			t.Fatalf("expected no pending request for answered key")
		}
	}
}

func TestAvailabilitySynchronizer_Idempotent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addSunday(t)
	ctx := context.Background()
	namespace := persistence.AvailabilityNamespace(testTeam, "m1")

	env.sync(t, "m1", "2026-01-04", "2026-01-11")
	if _, err := env.availability.Respond(ctx, RespondParams{
		TeamID:   testTeam,
		MemberID: "m1",
		Key:      instance.MustParseKey("2026-01-11:st1"),
		Status:   scheduler.StatusAvailable,
	}); err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}
	before, err := env.store.Load(ctx, namespace)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	env.clock.Advance(time.Hour)
	result := env.sync(t, "m1", "2026-01-04", "2026-01-11")
	if len(result.Added) != 0 || len(result.Removed) != 0 {
		t.Fatalf("expected added = [] and removed = [], got %v and %v", keyStrings(result.Added), keyStrings(result.Removed))
	}

	after, err := env.store.Load(ctx, namespace)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if before.Digest != after.Digest {
		t.Fatalf("expected availability document to be unchanged")
	}
	if !before.UpdatedAt.Equal(after.UpdatedAt) {
		t.Fatalf("expected no write, updated at moved from %s to %s", before.UpdatedAt, after.UpdatedAt)
	}
}

func TestAvailabilitySynchronizer_SkipsUnresolvableKeys(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addSunday(t)

	// 2026-01-17 is a Saturday with no template.
	first := env.sync(t, "m1", "2026-01-17", "2026-01-04:gone", "2026-01-17:adhoc-0", "2026-01-04")
	if got := keyStrings(first.Added); !slices.Equal(got, []string{"2026-01-04:st1"}) {
		t.Fatalf("expected only the resolvable key to be added, got %v", got)
	}
	if got := keyStrings(first.Skipped); !slices.Equal(got, []string{"2026-01-04:gone", "2026-01-17", "2026-01-17:adhoc-0"}) {
		t.Fatalf("unexpected skipped keys %v", got)
	}

	second := env.sync(t, "m1", "2026-01-17", "2026-01-04:gone", "2026-01-17:adhoc-0", "2026-01-04")
	if len(second.Added) != 0 || len(second.Removed) != 0 {
		t.Fatalf("expected repeated sync to be a no-op, got added %v removed %v", keyStrings(second.Added), keyStrings(second.Removed))
	}
}

func TestAvailabilitySynchronizer_DateExpandsToEveryMatchingTemplate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addSunday(t)
	env.addType(t, "st2", "Sunday Evening", testfixtures.Weekday(time.Sunday), "18:00")
	env.addType(t, "st3", "Wednesday Prayer", testfixtures.Weekday(time.Wednesday), "19:30")

	result := env.sync(t, "m1", "2026-01-04")
	if got := keyStrings(result.Added); !slices.Equal(got, []string{"2026-01-04:st1", "2026-01-04:st2"}) {
		t.Fatalf("expected both Sunday templates, got %v", got)
	}
}

func TestAvailabilitySynchronizer_Validation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	_, err := env.availability.SyncFromSelection(context.Background(), SyncParams{TeamID: testTeam})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.FieldErrors["member_id"] == "" {
		t.Fatalf("expected member_id validation error, got %v", err)
	}
}

func TestAvailabilitySynchronizer_Respond(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("unknown key is not found", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		env.addSunday(t)
		_, err := env.availability.Respond(ctx, RespondParams{
			TeamID:   testTeam,
			MemberID: "m1",
			Key:      instance.MustParseKey("2026-01-04:st1"),
			Status:   scheduler.StatusAvailable,
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("pending is not a valid answer", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		env.addSunday(t)
		env.sync(t, "m1", "2026-01-04")
		_, err := env.availability.Respond(ctx, RespondParams{
			TeamID:   testTeam,
			MemberID: "m1",
			Key:      instance.MustParseKey("2026-01-04:st1"),
			Status:   scheduler.StatusPending,
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("answer can be changed", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t)
		env.addSunday(t)
		env.sync(t, "m1", "2026-01-04")
		key := instance.MustParseKey("2026-01-04:st1")
		for _, status := range []scheduler.AvailabilityStatus{scheduler.StatusAvailable, scheduler.StatusUnavailable} {
			result, err := env.availability.Respond(ctx, RespondParams{TeamID: testTeam, MemberID: "m1", Key: key, Status: status, Note: " away "})
			if err != nil {
				t.Fatalf("Respond(%s) returned error: %v", status, err)
			}
			if result.Availability.Status != status || result.Availability.Note != "away" {
				t.Fatalf("unexpected availability %+v", result.Availability)
			}
		}
	})
}

func TestAvailabilitySynchronizer_RespondRecordsConflicts(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addSunday(t)
	ctx := context.Background()
	key := instance.MustParseKey("2026-01-04:st1")

	env.sync(t, "m1", "2026-01-04")
	env.sync(t, "m2", "2026-01-04")
	if _, err := env.schedules.Save(ctx, SaveScheduleParams{
		Principal: testLeader,
		TeamID:    testTeam,
		Key:       key,
		Input: ScheduleInput{
			Assignments:      map[string]string{SlotKey("drums", 1): "m1"},
			InstrumentSetups: map[string]InstrumentSetup{"drums": {Enabled: true, Count: 1}},
		},
	}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	result, err := env.availability.Respond(ctx, RespondParams{
		TeamID:     testTeam,
		MemberID:   "m1",
		MemberName: "Kim",
		Key:        key,
		Status:     scheduler.StatusUnavailable,
	})
	if err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}
	if result.Conflict == nil {
		t.Fatalf("expected conflict for assigned member")
	}
	if result.Conflict.ConflictType != scheduler.ConflictLateUnavailable || result.Conflict.InstrumentName != "Drums" || result.Conflict.ServiceName != "Sunday 11:00" {
		t.Fatalf("unexpected conflict %+v", result.Conflict)
	}

	if _, err := env.availability.Respond(ctx, RespondParams{TeamID: testTeam, MemberID: "m2", MemberName: "Lee", Key: key, Status: scheduler.StatusUnavailable}); err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}
	late, err := env.availability.Respond(ctx, RespondParams{TeamID: testTeam, MemberID: "m2", MemberName: "Lee", Key: key, Status: scheduler.StatusAvailable})
	if err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}
	if late.Conflict == nil || late.Conflict.ConflictType != scheduler.ConflictLateAvailable {
		t.Fatalf("expected late_available conflict, got %+v", late.Conflict)
	}

	conflicts, err := env.conflicts.List(ctx, testTeam, true)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(conflicts) != 2 {
		t.Fatalf("expected 2 conflicts, got %d", len(conflicts))
	}

	responses, err := env.availability.TeamResponses(ctx, testTeam, key)
	if err != nil {
		t.Fatalf("TeamResponses returned error: %v", err)
	}
	if len(responses) != 2 || responses[0].MemberID != "m1" || responses[1].MemberID != "m2" {
		t.Fatalf("unexpected team responses %+v", responses)
	}
}

// TestAvailabilitySynchronizer_Partition checks every pairing of existing and
// selected Sunday sets: added, kept and removed never overlap, added ∪ kept is
// the selection, removed is existing minus selected, and no key is ever both
// pending and answered.
func TestAvailabilitySynchronizer_Partition(t *testing.T) {
	t.Parallel()

	dates := []string{"2026-01-04", "2026-01-11", "2026-01-18", "2026-01-25"}
	subset := func(mask int) []string {
		out := make([]string, 0, len(dates))
		for i, d := range dates {
			if mask&(1<<i) != 0 {
				out = append(out, d)
			}
		}
		return out
	}
	templated := func(ds []string) map[string]bool {
		out := make(map[string]bool, len(ds))
		for _, d := range ds {
			out[d+":st1"] = true
		}
		return out
	}

	for existingMask := 0; existingMask < 1<<len(dates); existingMask++ {
		for selectedMask := 0; selectedMask < 1<<len(dates); selectedMask++ {
			existingMask, selectedMask := existingMask, selectedMask
			t.Run(fmt.Sprintf("%04b_%04b", existingMask, selectedMask), func(t *testing.T) {
				t.Parallel()

				env := newTestEnv(t)
				env.addSunday(t)
				ctx := context.Background()

				existing := subset(existingMask)
				env.sync(t, "m1", existing...)
				if len(existing) > 0 {
					if _, err := env.availability.Respond(ctx, RespondParams{
						TeamID:   testTeam,
						MemberID: "m1",
						Key:      instance.MustParseKey(existing[0] + ":st1"),
						Status:   scheduler.StatusUnavailable,
					}); err != nil {
						t.Fatalf("Respond returned error: %v", err)
					}
				}

				result := env.sync(t, "m1", subset(selectedMask)...)
				want := templated(subset(selectedMask))
				had := templated(existing)

				seen := make(map[string]string)
				for label, keys := range map[string][]instance.Key{"added": result.Added, "kept": result.Kept, "removed": result.Removed} {
					for _, k := range keys {
						if prev, ok := seen[k.String()]; ok {
							t.Fatalf("key %s counted as both %s and %s", k, prev, label)
						}
						seen[k.String()] = label
					}
				}
				for k := range want {
					if label := seen[k]; label != "added" && label != "kept" {
						t.Fatalf("selected key %s classified as %q", k, label)
					}
					if had[k] != (seen[k] == "kept") {
						t.Fatalf("key %s: existing=%v but classified %q", k, had[k], seen[k])
					}
				}
				for k := range had {
					if !want[k] && seen[k] != "removed" {
						t.Fatalf("deselected key %s classified as %q", k, seen[k])
					}
				}
				if len(seen) != len(want)+len(had)-countShared(want, had) {
					t.Fatalf("expected every key exactly once, got %v", seen)
				}

				pending, err := env.availability.Pending(ctx, testTeam, "m1")
				if err != nil {
					t.Fatalf("Pending returned error: %v", err)
				}
				responses, err := env.availability.Responses(ctx, testTeam, "m1")
				if err != nil {
					t.Fatalf("Responses returned error: %v", err)
				}
				answered := make(map[string]bool, len(responses))
				for _, r := range responses {
					answered[r.Key.String()] = true
					if !want[r.Key.String()] {
						t.Fatalf("response for deselected key %s survived", r.Key)
					}
				}
				for _, p := range pending {
					if answered[p.Key.String()] {
						t.Fatalf("key %s is both pending and answered", p.Key)
					}
				}
				if len(pending)+len(responses) != len(want) {
					t.Fatalf("expected %d tracked keys, got %d pending and %d answered", len(want), len(pending), len(responses))
				}
			})
		}
	}
}

func countShared(a, b map[string]bool) int {
	n := 0
	for k := range a {
		if b[k] {
			n++
		}
	}
	return n
}

func TestAvailabilitySynchronizer_ResponseSurvivesServiceTypeDeletion(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		keys []string
	}{
		{name: "templated key", keys: []string{"2026-01-04:st1"}},
		{name: "whole date key", keys: []string{"2026-01-04"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			env.addSunday(t)
			ctx := context.Background()

			env.sync(t, "m1", tc.keys...)
			if _, err := env.availability.Respond(ctx, RespondParams{
				TeamID:   testTeam,
				MemberID: "m1",
				Key:      instance.MustParseKey("2026-01-04:st1"),
				Status:   scheduler.StatusUnavailable,
			}); err != nil {
				t.Fatalf("Respond returned error: %v", err)
			}
			if err := env.registry.Delete(ctx, DeleteServiceTypeParams{Principal: testLeader, TeamID: testTeam, ServiceTypeID: "st1"}); err != nil {
				t.Fatalf("Delete returned error: %v", err)
			}

			result := env.sync(t, "m1", tc.keys...)
			if len(result.Removed) != 0 || len(result.Added) != 0 {
				t.Fatalf("expected no changes, got added %v removed %v", keyStrings(result.Added), keyStrings(result.Removed))
			}
			if got := keyStrings(result.Kept); !slices.Equal(got, []string{"2026-01-04:st1"}) {
				t.Fatalf("expected kept [2026-01-04:st1], got %v", got)
			}

			responses, err := env.availability.Responses(ctx, testTeam, "m1")
			if err != nil {
				t.Fatalf("Responses returned error: %v", err)
			}
			if len(responses) != 1 || responses[0].Status != scheduler.StatusUnavailable {
				t.Fatalf("expected the response to survive, got %+v", responses)
			}

			// Deselecting the date still removes it.
			cleared := env.sync(t, "m1")
			if got := keyStrings(cleared.Removed); !slices.Equal(got, []string{"2026-01-04:st1"}) {
				t.Fatalf("expected removed [2026-01-04:st1], got %v", got)
			}
		})
	}
}

func TestAvailabilitySynchronizer_RejectsNamespaceCharacters(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		teamID string
		member string
		field  string
	}{
		{name: "colon in team", teamID: "team-1:x", member: "m1", field: "team_id"},
		{name: "colon in member", teamID: testTeam, member: "x:m1", field: "member_id"},
		{name: "glob in member", teamID: testTeam, member: "m*", field: "member_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			env.addSunday(t)
			ctx := context.Background()

			_, err := env.availability.SyncFromSelection(ctx, SyncParams{
				TeamID:   tc.teamID,
				MemberID: tc.member,
				Keys:     testfixtures.Keys("2026-01-04:st1"),
			})
			var vErr *ValidationError
			if !errors.As(err, &vErr) || vErr.FieldErrors[tc.field] == "" {
				t.Fatalf("expected %s validation error, got %v", tc.field, err)
			}
			if _, err := env.availability.Pending(ctx, tc.teamID, tc.member); !errors.As(err, &vErr) {
				t.Fatalf("expected Pending to reject the ids, got %v", err)
			}
		})
	}
}

func TestAvailabilitySynchronizer_TeamResponsesIgnoresNestedNamespaces(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.addSunday(t)
	ctx := context.Background()
	key := instance.MustParseKey("2026-01-04:st1")

	env.sync(t, "m1", key.String())
	if _, err := env.availability.Respond(ctx, RespondParams{TeamID: testTeam, MemberID: "m1", Key: key, Status: scheduler.StatusAvailable}); err != nil {
		t.Fatalf("Respond returned error: %v", err)
	}

	// A document written under team "team-1:x" shares the team-1 prefix.
	foreign := newAvailabilityDocument()
	foreign.MyAvailability[key] = MemberAvailability{Key: key, MemberID: "m2", Status: scheduler.StatusUnavailable}
	if err := env.availability.docs.save(ctx, "availability:team-1:x:m2", foreign); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	responses, err := env.availability.TeamResponses(ctx, testTeam, key)
	if err != nil {
		t.Fatalf("TeamResponses returned error: %v", err)
	}
	if len(responses) != 1 || responses[0].MemberID != "m1" {
		t.Fatalf("expected only m1, got %+v", responses)
	}

	var vErr *ValidationError
	if _, err := env.availability.TeamResponses(ctx, "team-1:x", key); !errors.As(err, &vErr) {
		t.Fatalf("expected validation error for nested team id, got %v", err)
	}
}
