package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/example/worship-scheduler/internal/instance"
)

func weekday(d time.Weekday) *time.Weekday { return &d }

func TestExpander_Candidates(t *testing.T) {
	t.Parallel()

	templates := []Template{
		{ID: "sunday-am", Weekday: weekday(time.Sunday)},
		{ID: "flex"},
		{ID: "saturday", Weekday: weekday(time.Saturday)},
		{ID: "sunday-pm", Weekday: weekday(time.Sunday)},
	}

	t.Run("expands weekly templates within the window", func(t *testing.T) {
		t.Parallel()

		keys, err := NewExpander(0).Candidates(templates, instance.MustParseDate("2026-01-01"), instance.MustParseDate("2026-01-11"))
		if err != nil {
			t.Fatalf("Candidates returned error: %v", err)
		}

		want := []string{
			"2026-01-03:saturday",
			"2026-01-04:sunday-am",
			"2026-01-04:sunday-pm",
			"2026-01-10:saturday",
			"2026-01-11:sunday-am",
			"2026-01-11:sunday-pm",
		}
		if len(keys) != len(want) {
			t.Fatalf("expected %d keys, got %d: %v", len(want), len(keys), keys)
		}
		for i, key := range keys {
			if key.String() != want[i] {
				t.Fatalf("expected key %d to be %s, got %s", i, want[i], key)
			}
		}
	})

	t.Run("single day window", func(t *testing.T) {
		t.Parallel()

		day := instance.MustParseDate("2026-01-04")
		keys, err := NewExpander(0).Candidates(templates, day, day)
		if err != nil {
			t.Fatalf("Candidates returned error: %v", err)
		}
		if len(keys) != 2 {
			t.Fatalf("expected 2 keys, got %v", keys)
		}
	})

	t.Run("caps occurrences per template", func(t *testing.T) {
		t.Parallel()

		keys, err := NewExpander(1).Candidates(templates[:1], instance.MustParseDate("2026-01-01"), instance.MustParseDate("2026-03-01"))
		if err != nil {
			t.Fatalf("Candidates returned error: %v", err)
		}
		if len(keys) != 1 || keys[0].String() != "2026-01-04:sunday-am" {
			t.Fatalf("expected only the first occurrence, got %v", keys)
		}
	})

	t.Run("rejects inverted window", func(t *testing.T) {
		t.Parallel()

		_, err := NewExpander(0).Candidates(templates, instance.MustParseDate("2026-02-01"), instance.MustParseDate("2026-01-01"))
		if !errors.Is(err, ErrInvalidWindow) {
			t.Fatalf("expected ErrInvalidWindow, got %v", err)
		}
	})
}

func TestMatchingTypes(t *testing.T) {
	t.Parallel()

	templates := []Template{
		{ID: "st2", Weekday: weekday(time.Sunday)},
		{ID: "st1", Weekday: weekday(time.Sunday)},
		{ID: "wed", Weekday: weekday(time.Wednesday)},
		{ID: "flex"},
	}

	matches := MatchingTypes(templates, instance.MustParseDate("2026-01-04"))
	if len(matches) != 2 || matches[0].ID != "st2" || matches[1].ID != "st1" {
		t.Fatalf("expected sunday templates in registry order, got %+v", matches)
	}
	if got := MatchingTypes(templates, instance.MustParseDate("2026-01-17")); len(got) != 0 {
		t.Fatalf("expected no matches on saturday, got %+v", got)
	}
}

func BenchmarkExpanderCandidates(b *testing.B) {
	expander := NewExpander(0)
	templates := []Template{
		{ID: "sunday", Weekday: weekday(time.Sunday)},
		{ID: "wednesday", Weekday: weekday(time.Wednesday)},
	}
	from := instance.MustParseDate("2026-01-01")
	to := instance.MustParseDate("2026-12-31")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		keys, err := expander.Candidates(templates, from, to)
		if err != nil {
			b.Fatalf("unexpected error: %v", err)
		}
		if len(keys) == 0 {
			b.Fatal("expected candidates to be generated")
		}
	}
}
