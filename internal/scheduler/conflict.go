package scheduler

import (
	"time"

	"github.com/example/worship-scheduler/internal/instance"
)

// AvailabilityStatus is a member's declared availability for a service.
type AvailabilityStatus string

const (
	StatusAvailable   AvailabilityStatus = "available"
	StatusUnavailable AvailabilityStatus = "unavailable"
	StatusPending     AvailabilityStatus = "pending"
)

// Assignment is one filled slot of a schedule as seen by conflict detection.
type Assignment struct {
	ServiceDate      instance.Date
	ServiceName      string
	InstrumentID     string
	InstrumentName   string
	AssignedMemberID string
}

// ConflictType describes how a late response contradicts the schedule.
type ConflictType string

const (
	// ConflictLateUnavailable indicates an assigned member declared unavailability.
	ConflictLateUnavailable ConflictType = "late_unavailable"
	// ConflictLateAvailable indicates a previously unavailable member is now available.
	ConflictLateAvailable ConflictType = "late_available"
)

// Conflict details a contradiction between a response and current assignments.
type Conflict struct {
	MemberID       string
	MemberName     string
	ServiceDate    instance.Date
	ServiceName    string
	InstrumentID   string
	InstrumentName string
	Type           ConflictType
	CreatedAt      time.Time
	IsResolved     bool
}

// DetectConflict checks a newly submitted response against the assignments
// currently held on date. It returns nil when the response confirms the
// schedule or the member holds no slot that day.
func DetectConflict(memberID, memberName string, date instance.Date, status AvailabilityStatus, assignments []Assignment, now time.Time) *Conflict {
	if status != StatusUnavailable {
		return nil
	}
	assigned, ok := findAssignment(memberID, date, assignments)
	if !ok {
		return nil
	}
	return &Conflict{
		MemberID:       memberID,
		MemberName:     memberName,
		ServiceDate:    date,
		ServiceName:    assigned.ServiceName,
		InstrumentID:   assigned.InstrumentID,
		InstrumentName: assigned.InstrumentName,
		Type:           ConflictLateUnavailable,
		CreatedAt:      now,
	}
}

// DetectLateAvailability emits an informational conflict when a member who had
// declared unavailable switches to available for a date whose schedule already
// has assignments without them.
func DetectLateAvailability(memberID, memberName string, date instance.Date, previous, status AvailabilityStatus, assignments []Assignment, now time.Time) *Conflict {
	if previous != StatusUnavailable || status != StatusAvailable {
		return nil
	}
	if _, ok := findAssignment(memberID, date, assignments); ok {
		return nil
	}
	var serviceName string
	for _, a := range assignments {
		if a.ServiceDate == date {
			serviceName = a.ServiceName
			break
		}
	}
	if serviceName == "" {
		return nil
	}
	return &Conflict{
		MemberID:    memberID,
		MemberName:  memberName,
		ServiceDate: date,
		ServiceName: serviceName,
		Type:        ConflictLateAvailable,
		CreatedAt:   now,
	}
}

func findAssignment(memberID string, date instance.Date, assignments []Assignment) (Assignment, bool) {
	for _, a := range assignments {
		if a.AssignedMemberID == memberID && a.ServiceDate == date {
			return a, true
		}
	}
	return Assignment{}, false
}
