package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleSeed = `
teams:
  - team_id: team-1
    service_types:
      - id: st1
        name: Sunday 11:00
        default_weekday: sunday
        service_time: "11:00"
        rehearsal_type: same_day
        rehearsal_time: "09:30"
        primary: true
      - name: Wednesday Prayer
        schedule_type: weekly
        default_weekday: 3
        service_time: "19:30"
        order: 5
  - team_id: team-2
    service_types:
      - name: Youth
        schedule_type: flexible
`

func TestParseServiceTypeSeed(t *testing.T) {
	t.Parallel()

	seed, err := ParseServiceTypeSeed([]byte(sampleSeed))
	if err != nil {
		t.Fatalf("ParseServiceTypeSeed returned error: %v", err)
	}
	if len(seed.Teams) != 2 {
		t.Fatalf("expected 2 teams, got %d", len(seed.Teams))
	}

	sunday := seed.Teams[0].ServiceTypes[0]
	if sunday.ID != "st1" || sunday.Name != "Sunday 11:00" || !sunday.Primary {
		t.Fatalf("unexpected first service type %+v", sunday)
	}
	if wd := sunday.DefaultWeekday.Time(); wd == nil || *wd != time.Sunday {
		t.Fatalf("expected Sunday, got %v", wd)
	}

	prayer := seed.Teams[0].ServiceTypes[1]
	if wd := prayer.DefaultWeekday.Time(); wd == nil || *wd != time.Wednesday {
		t.Fatalf("expected numeric weekday 3 to be Wednesday, got %v", wd)
	}
	if prayer.Order == nil || *prayer.Order != 5 {
		t.Fatalf("expected order 5, got %v", prayer.Order)
	}

	youth := seed.Teams[1].ServiceTypes[0]
	if youth.DefaultWeekday.Time() != nil {
		t.Fatalf("expected no weekday for flexible type")
	}
}

func TestParseServiceTypeSeed_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"unknown field":   "teams:\n  - team_id: t\n    colour: red\n",
		"bad weekday":     "teams:\n  - team_id: t\n    service_types:\n      - name: X\n        default_weekday: someday\n",
		"missing team id": "teams:\n  - service_types: []\n",
	}
	for name, doc := range cases {
		if _, err := ParseServiceTypeSeed([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	empty, err := ParseServiceTypeSeed(nil)
	if err != nil || len(empty.Teams) != 0 {
		t.Fatalf("expected empty document to decode to an empty seed, got %+v, %v", empty, err)
	}
}

func TestLoadServiceTypeSeed(t *testing.T) {
	t.Parallel()

	seed, err := LoadServiceTypeSeed("")
	if err != nil || len(seed.Teams) != 0 {
		t.Fatalf("expected empty path to yield empty seed, got %+v, %v", seed, err)
	}

	path := filepath.Join(t.TempDir(), "types.yaml")
	if err := os.WriteFile(path, []byte(sampleSeed), 0o600); err != nil {
		t.Fatalf("failed to write seed: %v", err)
	}
	seed, err = LoadServiceTypeSeed(path)
	if err != nil {
		t.Fatalf("LoadServiceTypeSeed returned error: %v", err)
	}
	if len(seed.Teams) != 2 {
		t.Fatalf("expected 2 teams, got %d", len(seed.Teams))
	}

	if _, err := LoadServiceTypeSeed(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
