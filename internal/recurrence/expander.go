package recurrence

import (
	"errors"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/example/worship-scheduler/internal/instance"
)

// DefaultMaxOccurrences bounds how many dates a single template may expand to.
const DefaultMaxOccurrences = 366

// ErrInvalidWindow indicates the expansion window ends before it starts.
var ErrInvalidWindow = errors.New("recurrence: window end precedes start")

// Template is the part of a service type that drives expansion. Templates
// without a weekday are flexible and never expand on their own.
type Template struct {
	ID      string
	Weekday *time.Weekday
}

// Expander turns weekly templates into candidate instance keys.
type Expander struct {
	maxOccurrences int
}

// NewExpander constructs an Expander. A non-positive limit selects DefaultMaxOccurrences.
func NewExpander(maxOccurrences int) *Expander {
	if maxOccurrences <= 0 {
		maxOccurrences = DefaultMaxOccurrences
	}
	return &Expander{maxOccurrences: maxOccurrences}
}

var rruleWeekdays = [...]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// Candidates expands every weekly template over the inclusive window
// [from, to]. Keys are ordered by date, then by template order.
func (e *Expander) Candidates(templates []Template, from, to instance.Date) ([]instance.Key, error) {
	if to.Before(from) {
		return nil, ErrInvalidWindow
	}

	start := from.In(time.UTC)
	end := to.In(time.UTC)

	byDate := make(map[instance.Date][]instance.Key)
	dates := make([]instance.Date, 0)
	for _, tmpl := range templates {
		if tmpl.Weekday == nil || tmpl.ID == "" {
			continue
		}
		rule, err := rrule.NewRRule(rrule.ROption{
			Freq:      rrule.WEEKLY,
			Dtstart:   start,
			Until:     end,
			Byweekday: []rrule.Weekday{rruleWeekdays[*tmpl.Weekday]},
		})
		if err != nil {
			return nil, err
		}

		var set rrule.Set
		set.RRule(rule)
		occurrences := set.Between(start, end, true)
		if len(occurrences) > e.maxOccurrences {
			occurrences = occurrences[:e.maxOccurrences]
		}

		for _, occ := range occurrences {
			date := instance.DateOf(occ)
			if _, seen := byDate[date]; !seen {
				dates = append(dates, date)
			}
			byDate[date] = append(byDate[date], instance.MakeKey(date, instance.Templated(tmpl.ID)))
		}
	}

	slices.SortFunc(dates, instance.Date.Compare)
	keys := make([]instance.Key, 0)
	for _, date := range dates {
		keys = append(keys, byDate[date]...)
	}
	return keys, nil
}

// MatchingTypes returns the templates whose default weekday equals the
// weekday of date, preserving the order of templates.
func MatchingTypes(templates []Template, date instance.Date) []Template {
	weekday := date.Weekday()
	matches := make([]Template, 0)
	for _, tmpl := range templates {
		if tmpl.Weekday != nil && *tmpl.Weekday == weekday {
			matches = append(matches, tmpl)
		}
	}
	return matches
}
