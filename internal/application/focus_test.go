package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/worship-scheduler/internal/instance"
	"github.com/example/worship-scheduler/internal/testfixtures"
)

func TestFocusTracker(t *testing.T) {
	t.Parallel()

	tracker := NewFocusTracker(testfixtures.NewIDGenerator("focus").NextFunc())
	first := instance.MustParseKey("2026-01-04:st1")
	second := instance.MustParseKey("2026-01-11:st1")

	a := tracker.Focus("client-a", testTeam, first)
	b := tracker.Focus("client-b", testTeam, first)
	if !tracker.Current(a) || !tracker.Current(b) {
		t.Fatalf("expected both clients to hold current tokens")
	}

	moved := tracker.Focus("client-a", testTeam, second)
	if tracker.Current(a) {
		t.Fatalf("expected old token to go stale after refocus")
	}
	select {
	case <-a.Done():
	default:
		t.Fatalf("expected stale token to be cancelled")
	}
	if !tracker.Current(moved) || !tracker.Current(b) {
		t.Fatalf("expected other tokens to stay current")
	}

	if got, ok := tracker.Lookup(moved.ID); !ok || got.Key != second {
		t.Fatalf("expected lookup to return the new focus, got %+v (%v)", got, ok)
	}

	tracker.Release("client-b")
	if tracker.Current(b) {
		t.Fatalf("expected released token to be stale")
	}
	if _, ok := tracker.Lookup(b.ID); ok {
		t.Fatalf("expected released token to be forgotten")
	}
}

func TestFocusTracker_EvictsIdleEntries(t *testing.T) {
	t.Parallel()

	clock := testfixtures.NewClock(time.Date(2026, 1, 4, 9, 0, 0, 0, time.UTC))
	tracker := NewFocusTrackerWithClock(testfixtures.NewIDGenerator("focus").NextFunc(), clock.NowFunc(), time.Hour)
	key := instance.MustParseKey("2026-01-04:st1")

	idle := tracker.Focus("client-a", testTeam, key)
	clock.Advance(30 * time.Minute)
	active := tracker.Focus("client-b", testTeam, key)
	clock.Advance(45 * time.Minute)
	if _, ok := tracker.Lookup(active.ID); !ok {
		t.Fatalf("expected recently used token to survive")
	}

	if _, ok := tracker.Lookup(idle.ID); ok {
		t.Fatalf("expected idle token to be evicted")
	}
	select {
	case <-idle.Done():
	default:
		t.Fatalf("expected evicted token to be cancelled")
	}
	if n := tracker.Len(); n != 1 {
		t.Fatalf("expected 1 tracked client, got %d", n)
	}

	tracker.Release("client-b")
	if n := tracker.Len(); n != 0 {
		t.Fatalf("expected no tracked clients after release, got %d", n)
	}
}

func TestFocusToken_Bind(t *testing.T) {
	t.Parallel()

	tracker := NewFocusTracker(testfixtures.NewIDGenerator("focus").NextFunc())
	token := tracker.Focus("client-a", testTeam, instance.MustParseKey("2026-01-04:st1"))

	ctx, release := token.bind(context.Background())
	defer release()

	tracker.Focus("client-a", testTeam, instance.MustParseKey("2026-01-11:st1"))

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected bound context to be cancelled when focus moves")
	}
	if cause := context.Cause(ctx); !errors.Is(cause, ErrStaleContext) {
		t.Fatalf("expected ErrStaleContext cause, got %v", cause)
	}

	var zero FocusToken
	plain, done := zero.bind(context.Background())
	defer done()
	if plain.Err() != nil {
		t.Fatalf("expected zero token to leave the parent untouched")
	}
}
