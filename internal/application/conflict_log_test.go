package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/worship-scheduler/internal/instance"
	"github.com/example/worship-scheduler/internal/scheduler"
)

func detectedConflict(memberID string, created time.Time) scheduler.Conflict {
	return scheduler.Conflict{
		MemberID:       memberID,
		MemberName:     "Member " + memberID,
		ServiceDate:    instance.MustParseDate("2026-01-04"),
		ServiceName:    "Sunday 11:00",
		InstrumentID:   "drums",
		InstrumentName: "Drums",
		Type:           scheduler.ConflictLateUnavailable,
		CreatedAt:      created,
	}
}

func TestConflictLog_RecordDeduplicates(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()

	first, err := env.conflicts.Record(ctx, testTeam, detectedConflict("m1", now))
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if first.ID != "conflict-1" || first.TeamID != testTeam || first.IsResolved {
		t.Fatalf("unexpected conflict %+v", first)
	}

	again, err := env.conflicts.Record(ctx, testTeam, detectedConflict("m1", now.Add(time.Minute)))
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("expected identical unresolved conflict to be reused, got %s", again.ID)
	}

	if _, err := env.conflicts.Resolve(ctx, ResolveConflictParams{Principal: testLeader, TeamID: testTeam, ConflictID: first.ID}); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	fresh, err := env.conflicts.Record(ctx, testTeam, detectedConflict("m1", now.Add(2*time.Minute)))
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if fresh.ID == first.ID {
		t.Fatalf("expected a new record once the previous one is resolved")
	}
}

func TestConflictLog_ListNewestFirst(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()

	for i, member := range []string{"m1", "m2", "m3"} {
		if _, err := env.conflicts.Record(ctx, testTeam, detectedConflict(member, now.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Record returned error: %v", err)
		}
	}
	if _, err := env.conflicts.Resolve(ctx, ResolveConflictParams{Principal: testLeader, TeamID: testTeam, ConflictID: "conflict-2"}); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	all, err := env.conflicts.List(ctx, testTeam, false)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(all) != 3 || all[0].MemberID != "m3" || all[2].MemberID != "m1" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	open, err := env.conflicts.List(ctx, testTeam, true)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 unresolved conflicts, got %d", len(open))
	}
	for _, c := range open {
		if c.IsResolved {
			t.Fatalf("expected only unresolved conflicts, got %+v", c)
		}
	}
}

func TestConflictLog_Resolve(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	recorded, err := env.conflicts.Record(ctx, testTeam, detectedConflict("m1", time.Time{}))
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if !recorded.CreatedAt.Equal(env.clock.Now()) {
		t.Fatalf("expected missing CreatedAt to default to now, got %s", recorded.CreatedAt)
	}

	if _, err := env.conflicts.Resolve(ctx, ResolveConflictParams{Principal: testMember, TeamID: testTeam, ConflictID: recorded.ID}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := env.conflicts.Resolve(ctx, ResolveConflictParams{Principal: testLeader, TeamID: testTeam, ConflictID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	resolved, err := env.conflicts.Resolve(ctx, ResolveConflictParams{Principal: testLeader, TeamID: testTeam, ConflictID: recorded.ID})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !resolved.IsResolved || resolved.ResolvedAt == nil {
		t.Fatalf("expected conflict to be resolved, got %+v", resolved)
	}
	firstResolvedAt := *resolved.ResolvedAt

	env.clock.Advance(time.Hour)
	again, err := env.conflicts.Resolve(ctx, ResolveConflictParams{Principal: testLeader, TeamID: testTeam, ConflictID: recorded.ID})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !again.ResolvedAt.Equal(firstResolvedAt) {
		t.Fatalf("expected resolving twice to keep %s, got %s", firstResolvedAt, again.ResolvedAt)
	}
}
