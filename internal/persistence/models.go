package persistence

import (
	"strings"
	"time"
)

// Document is one persisted JSON state blob.
type Document struct {
	Namespace string
	Data      []byte
	Digest    string
	UpdatedAt time.Time
}

// Clone returns a copy whose Data does not alias d.Data.
func (d Document) Clone() Document {
	if d.Data != nil {
		d.Data = append([]byte(nil), d.Data...)
	}
	return d
}

const (
	schedulingPrefix   = "scheduling:"
	serviceTypesPrefix = "service_types:"
	availabilityPrefix = "availability:"
	conflictsPrefix    = "conflicts:"
)

// SchedulingNamespace holds a team's selection, ad-hoc services and schedules.
func SchedulingNamespace(teamID string) string {
	return schedulingPrefix + teamID
}

// ServiceTypesNamespace holds a team's service type registry.
func ServiceTypesNamespace(teamID string) string {
	return serviceTypesPrefix + teamID
}

// AvailabilityNamespace holds one member's pending requests and responses for a team.
func AvailabilityNamespace(teamID, memberID string) string {
	return availabilityPrefix + teamID + ":" + memberID
}

// AvailabilityPrefix matches every member availability document of a team.
func AvailabilityPrefix(teamID string) string {
	return availabilityPrefix + teamID + ":"
}

// MemberFromAvailabilityNamespace recovers the member id from an availability namespace.
func MemberFromAvailabilityNamespace(teamID, namespace string) (string, bool) {
	prefix := AvailabilityPrefix(teamID)
	if !strings.HasPrefix(namespace, prefix) {
		return "", false
	}
	member := strings.TrimPrefix(namespace, prefix)
	return member, ValidID(member)
}

// ConflictsNamespace holds a team's conflict log.
func ConflictsNamespace(teamID string) string {
	return conflictsPrefix + teamID
}

// ValidID reports whether id can form one segment of a namespace. Segments
// are joined with ':' and listed with glob patterns, so neither may appear.
func ValidID(id string) bool {
	return strings.TrimSpace(id) != "" && !strings.ContainsAny(id, ":*?[]")
}

// ValidNamespace reports whether namespace may be used as a storage key.
func ValidNamespace(namespace string) bool {
	return strings.TrimSpace(namespace) != "" && !strings.ContainsAny(namespace, "*?[]")
}
