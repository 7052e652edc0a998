package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/example/worship-scheduler/internal/persistence"
	"github.com/example/worship-scheduler/internal/testfixtures"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	testfixtures.RunStateStoreContract(t, func(t *testing.T) persistence.StateStore {
		return persistence.NewMemoryStore()
	})
}

func TestMemoryStore_StampsUpdatedAt(t *testing.T) {
	t.Parallel()

	clock := testfixtures.NewClock(time.Time{})
	store := persistence.NewMemoryStoreWithClock(clock.NowFunc())
	ctx := context.Background()

	if _, err := store.Save(ctx, "scheduling:team-1", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	first := clock.Now()
	clock.Advance(time.Hour)
	if _, err := store.Save(ctx, "scheduling:team-1", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	doc, err := store.Load(ctx, "scheduling:team-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !doc.UpdatedAt.Equal(first) {
		t.Fatalf("expected skipped write to keep timestamp %s, got %s", first, doc.UpdatedAt)
	}
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	t.Parallel()

	store := persistence.NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Save(ctx, "conflicts:team-1", []byte(`abc`)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	doc, _ := store.Load(ctx, "conflicts:team-1")
	doc.Data[0] = 'x'

	again, _ := store.Load(ctx, "conflicts:team-1")
	if string(again.Data) != "abc" {
		t.Fatalf("expected stored data to be isolated, got %s", again.Data)
	}
}

func TestDigest(t *testing.T) {
	t.Parallel()

	a := persistence.Digest([]byte("one"))
	b := persistence.Digest([]byte("two"))
	if a == b {
		t.Fatalf("expected distinct digests")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(a))
	}
	if persistence.Digest([]byte("one")) != a {
		t.Fatalf("expected digest to be deterministic")
	}
}

func TestNamespaces(t *testing.T) {
	t.Parallel()

	ns := persistence.AvailabilityNamespace("team-1", "m1")
	if ns != "availability:team-1:m1" {
		t.Fatalf("unexpected namespace %s", ns)
	}
	member, ok := persistence.MemberFromAvailabilityNamespace("team-1", ns)
	if !ok || member != "m1" {
		t.Fatalf("expected member m1, got %q (%v)", member, ok)
	}
	if _, ok := persistence.MemberFromAvailabilityNamespace("team-2", ns); ok {
		t.Fatalf("expected other team prefix to be rejected")
	}
	nested := persistence.AvailabilityNamespace("team-1:x", "m1")
	if _, ok := persistence.MemberFromAvailabilityNamespace("team-1", nested); ok {
		t.Fatalf("expected %s not to belong to team-1", nested)
	}
}

func TestValidID(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"team-1":   true,
		"m1":       true,
		"":         false,
		"  ":       false,
		"team-1:x": false,
		"team*":    false,
		"m?":       false,
		"[m]":      false,
	}
	for id, want := range cases {
		if got := persistence.ValidID(id); got != want {
			t.Fatalf("ValidID(%q): expected %v, got %v", id, want, got)
		}
	}
}
