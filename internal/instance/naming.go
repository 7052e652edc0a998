package instance

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// AdhocLabel prefixes the display name of every ad-hoc service.
const AdhocLabel = "Special"

// ClockLayout is the wire form of a service or rehearsal time.
const ClockLayout = "15:04"

var displayNamePattern = regexp.MustCompile(`^(\d{1,2})/(\d{1,2}) (.+)$`)

// BusinessKey is the derived (date, display name) identity used to match local
// selections with remote service records.
type BusinessKey struct {
	Date Date
	Name string
}

func (b BusinessKey) String() string {
	return b.Date.String() + "|" + b.Name
}

// DisplayName renders a service record name, e.g. "1/4 Sunday 11:00".
func DisplayName(date Date, name string) string {
	return fmt.Sprintf("%d/%d %s", int(date.Month()), date.Day(), name)
}

// ParseDisplayName splits a record name produced by DisplayName.
func ParseDisplayName(display string) (month, day int, name string, ok bool) {
	m := displayNamePattern.FindStringSubmatch(strings.TrimSpace(display))
	if m == nil {
		return 0, 0, "", false
	}
	month, _ = strconv.Atoi(m[1])
	day, _ = strconv.Atoi(m[2])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, 0, "", false
	}
	return month, day, strings.TrimSpace(m[3]), true
}

// ParseClock parses an HH:MM time of day.
func ParseClock(value string) (hour, minute int, err error) {
	t, err := time.Parse(ClockLayout, strings.TrimSpace(value))
	if err != nil {
		return 0, 0, fmt.Errorf("instance: invalid time %q", value)
	}
	return t.Hour(), t.Minute(), nil
}

// ValidClock reports whether value is an HH:MM time of day.
func ValidClock(value string) bool {
	_, _, err := ParseClock(value)
	return err == nil
}

// FormatServiceTime renders "15:00" as "3:00 PM".
func FormatServiceTime(value string) (string, error) {
	hour, minute, err := ParseClock(value)
	if err != nil {
		return "", err
	}
	return time.Date(2000, 1, 1, hour, minute, 0, 0, time.UTC).Format("3:04 PM"), nil
}

// AdhocName returns the display name of an ad-hoc service starting at value.
// Unparseable times are kept verbatim so distinct inputs stay distinct.
func AdhocName(value string) string {
	formatted, err := FormatServiceTime(value)
	if err != nil {
		formatted = strings.TrimSpace(value)
	}
	if formatted == "" {
		return AdhocLabel
	}
	return AdhocLabel + " " + formatted
}

// IsAdhocName reports whether a service name follows the ad-hoc convention.
func IsAdhocName(name string) bool {
	return name == AdhocLabel || strings.HasPrefix(name, AdhocLabel+" ")
}
