package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/worship-scheduler/internal/instance"
)

func newTestMemory() *Memory {
	n := 0
	now := time.Date(2026, time.January, 2, 9, 0, 0, 0, time.UTC)
	return NewMemory(
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("svc-%d", n)
		}),
		WithClock(func() time.Time { return now }),
	)
}

func TestMemory_ServiceLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestMemory()

	created, err := client.CreateService(ctx, CreateServiceInput{
		TeamID:      "team-1",
		Name:        "1/4 Sunday 11:00",
		ServiceDate: instance.MustParseDate("2026-01-04"),
		StartTime:   "11:00",
	})
	if err != nil {
		t.Fatalf("CreateService failed: %v", err)
	}
	if created.Status != StatusDraft {
		t.Fatalf("expected default status draft, got %s", created.Status)
	}

	if err := client.PublishService(ctx, created.ID); err != nil {
		t.Fatalf("PublishService failed: %v", err)
	}
	draft := StatusDraft
	if err := client.UpdateService(ctx, created.ID, UpdateServiceInput{Status: &draft}); err != nil {
		t.Fatalf("UpdateService failed: %v", err)
	}

	listed, err := client.ListServices(ctx, "team-1", ListOptions{})
	if err != nil {
		t.Fatalf("ListServices failed: %v", err)
	}
	if len(listed) != 1 || listed[0].Status != StatusDraft {
		t.Fatalf("unexpected listing %+v", listed)
	}

	if err := client.DeleteService(ctx, created.ID); err != nil {
		t.Fatalf("DeleteService failed: %v", err)
	}
	if err := client.DeleteService(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_ListServicesFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestMemory()
	client.Seed(
		Service{TeamID: "team-1", Name: "12/28 Sunday", ServiceDate: instance.MustParseDate("2025-12-28")},
		Service{TeamID: "team-1", Name: "1/4 Sunday", ServiceDate: instance.MustParseDate("2026-01-04")},
		Service{TeamID: "team-1", Name: "2/1 Sunday", ServiceDate: instance.MustParseDate("2026-02-01")},
		Service{TeamID: "team-2", Name: "1/4 Sunday", ServiceDate: instance.MustParseDate("2026-01-04")},
	)

	upcoming, _ := client.ListServices(ctx, "team-1", ListOptions{})
	if len(upcoming) != 2 {
		t.Fatalf("expected past services to be excluded, got %+v", upcoming)
	}

	ranged, _ := client.ListServices(ctx, "team-1", ListOptions{
		StartDate:   instance.MustParseDate("2025-12-01"),
		EndDate:     instance.MustParseDate("2026-01-31"),
		IncludePast: true,
	})
	if len(ranged) != 2 || ranged[0].Name != "12/28 Sunday" {
		t.Fatalf("unexpected ranged listing %+v", ranged)
	}
}

func TestMemory_FailureInjection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestMemory()
	boom := errors.New("backend unavailable")
	client.FailWith(func(op Operation, target string) error {
		if op == OpCreateService && target == "1/11 Sunday" {
			return boom
		}
		return nil
	})

	if _, err := client.CreateService(ctx, CreateServiceInput{TeamID: "team-1", Name: "1/11 Sunday"}); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if _, err := client.CreateService(ctx, CreateServiceInput{TeamID: "team-1", Name: "1/4 Sunday"}); err != nil {
		t.Fatalf("expected other creates to succeed, got %v", err)
	}
	if got := client.CountCalls(OpCreateService); got != 2 {
		t.Fatalf("expected 2 recorded create calls, got %d", got)
	}
}

func TestMemory_RolesAndAssignments(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestMemory()

	first, err := client.GetOrCreateRole(ctx, "team-1", "Drums", "Drums", "🥁")
	if err != nil {
		t.Fatalf("GetOrCreateRole failed: %v", err)
	}
	second, _ := client.GetOrCreateRole(ctx, "team-1", "drums", "Drums", "🥁")
	if first.ID != second.ID {
		t.Fatalf("expected role to be reused, got %s and %s", first.ID, second.ID)
	}

	svc, _ := client.CreateService(ctx, CreateServiceInput{TeamID: "team-1", Name: "1/4 Sunday"})
	assignments := []AssignmentInput{{TeamMemberID: "m1", RoleID: first.ID}}
	if err := client.SyncAssignments(ctx, svc.ID, assignments); err != nil {
		t.Fatalf("SyncAssignments failed: %v", err)
	}
	if got := client.Assignments(svc.ID); len(got) != 1 || got[0].TeamMemberID != "m1" {
		t.Fatalf("unexpected assignments %+v", got)
	}
	if err := client.SyncAssignments(ctx, "missing", assignments); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
