// Package calendar renders published schedules as an iCalendar feed.
package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/example/worship-scheduler/internal/application"
	"github.com/example/worship-scheduler/internal/instance"
)

// DefaultDuration is the length given to every exported service.
const DefaultDuration = 90 * time.Minute

// Options tunes the exported feed.
type Options struct {
	Location  *time.Location
	AdhocTime string
	Duration  time.Duration
	// Now stamps DTSTAMP; zero uses time.Now.
	Now time.Time
}

// Export returns the iCalendar text of every published schedule of teamID.
// Draft and complete schedules are skipped. Names follow the remote record
// convention so feed entries line up with the service list.
func Export(teamID string, schedules []application.ScheduleInstance, selection application.Selection, types []application.ServiceType, opts Options) string {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	duration := opts.Duration
	if duration <= 0 {
		duration = DefaultDuration
	}
	adhocTime := opts.AdhocTime
	if adhocTime == "" {
		adhocTime = application.DefaultAdhocTime
	}
	stamp := opts.Now
	if stamp.IsZero() {
		stamp = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//worship-scheduler//team " + teamID + "//EN")
	cal.SetXWRCalName(teamID)

	byID := make(map[string]application.ServiceType, len(types))
	for _, st := range types {
		byID[st.ID] = st
	}
	adhoc := make(map[instance.Key]application.AdhocService, len(selection.Adhoc))
	for _, svc := range selection.Adhoc {
		adhoc[svc.Key()] = svc
	}
	catalogue := application.NewInstrumentCatalogue(application.DefaultInstruments)

	ordered := append([]application.ScheduleInstance(nil), schedules...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Key.Compare(ordered[j].Key) < 0 })

	for _, schedule := range ordered {
		if schedule.Status != application.SchedulePublished {
			continue
		}
		name, startTime := resolve(schedule.Key, byID, types, adhoc, adhocTime)
		start := startAt(schedule.Key.Date, startTime, loc)

		event := cal.AddEvent(fmt.Sprintf("%s@%s", schedule.Key.String(), teamID))
		event.SetDtStampTime(stamp)
		if !schedule.UpdatedAt.IsZero() {
			event.SetModifiedAt(schedule.UpdatedAt)
		}
		event.SetStartAt(start)
		event.SetEndAt(start.Add(duration))
		event.SetSummary(instance.DisplayName(schedule.Key.Date, name))
		if description := describe(schedule, catalogue); description != "" {
			event.SetDescription(description)
		}
	}

	return cal.Serialize()
}

func resolve(key instance.Key, byID map[string]application.ServiceType, types []application.ServiceType, adhoc map[instance.Key]application.AdhocService, adhocTime string) (string, string) {
	switch key.Instance.Kind() {
	case instance.KindTemplated:
		id, _ := key.Instance.ServiceTypeID()
		if st, ok := byID[id]; ok {
			return st.Name, st.ServiceTime
		}
	case instance.KindAdhoc:
		startTime := adhocTime
		if svc, ok := adhoc[key]; ok && svc.ServiceTime != "" {
			startTime = svc.ServiceTime
		}
		return instance.AdhocName(startTime), startTime
	default:
		for _, st := range types {
			if st.DefaultWeekday != nil && *st.DefaultWeekday == key.Date.Weekday() {
				return st.Name, st.ServiceTime
			}
		}
	}
	return instance.AdhocName(adhocTime), adhocTime
}

func startAt(date instance.Date, clock string, loc *time.Location) time.Time {
	day := date.In(loc)
	hour, minute, err := instance.ParseClock(clock)
	if err != nil {
		return day
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
}

// describe lists filled slots as "Instrument N: member" lines in slot order.
func describe(schedule application.ScheduleInstance, catalogue application.InstrumentCatalogue) string {
	slots := make([]string, 0, len(schedule.Assignments))
	for slot, member := range schedule.Assignments {
		if strings.TrimSpace(member) != "" {
			slots = append(slots, slot)
		}
	}
	sort.Strings(slots)

	lines := make([]string, 0, len(slots))
	for _, slot := range slots {
		id := application.InstrumentFromSlot(slot)
		label := catalogue.Lookup(id).NameEn
		if suffix := strings.TrimPrefix(slot, id); suffix != "" {
			label += " " + suffix
		}
		lines = append(lines, label+": "+schedule.Assignments[slot])
	}
	return strings.Join(lines, "\n")
}
