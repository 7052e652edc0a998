package testfixtures

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/example/worship-scheduler/internal/persistence"
)

// StateStoreFactory builds an empty store for one subtest.
type StateStoreFactory func(t *testing.T) persistence.StateStore

// RunStateStoreContract exercises the behaviour every StateStore backend shares.
func RunStateStoreContract(t *testing.T, newStore StateStoreFactory) {
	t.Helper()

	t.Run("missing namespace returns not found", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Load(context.Background(), persistence.SchedulingNamespace("team-1"))
		if !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("saves and loads documents with digests", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		namespace := persistence.ServiceTypesNamespace("team-1")
		data := []byte(`{"serviceTypes":[]}`)

		written, err := store.Save(ctx, namespace, data)
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if !written {
			t.Fatalf("expected first save to write")
		}

		doc, err := store.Load(ctx, namespace)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if string(doc.Data) != string(data) {
			t.Fatalf("expected %s, got %s", data, doc.Data)
		}
		if doc.Digest != persistence.Digest(data) {
			t.Fatalf("expected digest %s, got %s", persistence.Digest(data), doc.Digest)
		}
		if doc.Namespace != namespace {
			t.Fatalf("expected namespace %s, got %s", namespace, doc.Namespace)
		}
	})

	t.Run("skips unchanged writes", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		namespace := persistence.ConflictsNamespace("team-1")

		if _, err := store.Save(ctx, namespace, []byte(`{"conflicts":[]}`)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		written, err := store.Save(ctx, namespace, []byte(`{"conflicts":[]}`))
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if written {
			t.Fatalf("expected identical save to be skipped")
		}

		written, err = store.Save(ctx, namespace, []byte(`{"conflicts":[{}]}`))
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if !written {
			t.Fatalf("expected changed save to write")
		}
	})

	t.Run("lists namespaces by prefix", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		for _, namespace := range []string{
			persistence.AvailabilityNamespace("team-1", "m2"),
			persistence.AvailabilityNamespace("team-1", "m1"),
			persistence.AvailabilityNamespace("team-2", "m1"),
			persistence.SchedulingNamespace("team-1"),
		} {
			if _, err := store.Save(ctx, namespace, []byte(`{}`)); err != nil {
				t.Fatalf("Save(%s) failed: %v", namespace, err)
			}
		}

		got, err := store.List(ctx, persistence.AvailabilityPrefix("team-1"))
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		want := []string{"availability:team-1:m1", "availability:team-1:m2"}
		if !slices.Equal(got, want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
	})

	t.Run("deletes documents", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		namespace := persistence.SchedulingNamespace("team-1")

		if _, err := store.Save(ctx, namespace, []byte(`{}`)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := store.Delete(ctx, namespace); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := store.Load(ctx, namespace); !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
		if err := store.Delete(ctx, namespace); err != nil {
			t.Fatalf("expected deleting a missing document to succeed, got %v", err)
		}
	})

	t.Run("rejects invalid namespaces", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Save(context.Background(), " ", []byte(`{}`)); !errors.Is(err, persistence.ErrInvalidNamespace) {
			t.Fatalf("expected ErrInvalidNamespace, got %v", err)
		}
	})
}
