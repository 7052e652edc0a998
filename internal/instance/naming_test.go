package instance

import "testing"

func TestAdhocName(t *testing.T) {
	t.Parallel()

	date := MustParseDate("2026-01-17")
	morning := DisplayName(date, AdhocName("10:00"))
	afternoon := DisplayName(date, AdhocName("15:00"))

	if morning != "1/17 Special 10:00 AM" {
		t.Fatalf("unexpected morning name %q", morning)
	}
	if afternoon != "1/17 Special 3:00 PM" {
		t.Fatalf("unexpected afternoon name %q", afternoon)
	}
	if morning == afternoon {
		t.Fatalf("expected distinct names for distinct times")
	}
}

func TestParseDisplayName(t *testing.T) {
	t.Parallel()

	month, day, name, ok := ParseDisplayName("12/25 Christmas Eve Service")
	if !ok {
		t.Fatalf("expected display name to parse")
	}
	if month != 12 || day != 25 || name != "Christmas Eve Service" {
		t.Fatalf("unexpected parts: %d %d %q", month, day, name)
	}

	if _, _, _, ok := ParseDisplayName("Sunday 11:00"); ok {
		t.Fatalf("expected name without date prefix to be rejected")
	}
	if _, _, _, ok := ParseDisplayName("13/01 Sunday"); ok {
		t.Fatalf("expected out of range month to be rejected")
	}
}

func TestIsAdhocName(t *testing.T) {
	t.Parallel()

	if !IsAdhocName("Special 3:00 PM") || !IsAdhocName("Special") {
		t.Fatalf("expected ad-hoc names to be recognized")
	}
	if IsAdhocName("Specialty Night") {
		t.Fatalf("expected prefix match to require a separator")
	}
}

func TestFormatServiceTime(t *testing.T) {
	t.Parallel()

	got, err := FormatServiceTime("09:30")
	if err != nil {
		t.Fatalf("FormatServiceTime returned error: %v", err)
	}
	if got != "9:30 AM" {
		t.Fatalf("expected 9:30 AM, got %q", got)
	}
	if _, err := FormatServiceTime("25:00"); err == nil {
		t.Fatalf("expected invalid time to fail")
	}
}
