package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/worship-scheduler/internal/instance"
	"github.com/example/worship-scheduler/internal/remote"
)

var remoteServiceCounter uint64

var referenceTime = time.Date(2026, time.January, 2, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
// It falls on the Friday before the first Sunday of 2026.
func ReferenceTime() time.Time {
	return referenceTime
}

// Weekday returns a pointer to wd for optional weekday fields.
func Weekday(wd time.Weekday) *time.Weekday {
	return &wd
}

// Keys parses each value with instance.ParseKey and panics on malformed input.
func Keys(values ...string) []instance.Key {
	out := make([]instance.Key, 0, len(values))
	for _, v := range values {
		out = append(out, instance.MustParseKey(v))
	}
	return out
}

// KeyStrings renders keys in their canonical text form.
func KeyStrings(keys []instance.Key) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	return out
}

// RemoteServiceOption configures a remote service fixture.
type RemoteServiceOption func(*remote.Service)

// NewRemoteService returns a published remote service record named with the
// display convention, e.g. "1/4 Sunday 11:00".
func NewRemoteService(teamID, date, name string, opts ...RemoteServiceOption) remote.Service {
	idx := atomic.AddUint64(&remoteServiceCounter, 1)
	d := instance.MustParseDate(date)
	svc := remote.Service{
		ID:          fmt.Sprintf("svc-%03d", idx),
		TeamID:      teamID,
		Name:        instance.DisplayName(d, name),
		ServiceDate: d,
		Status:      remote.StatusPublished,
		CreatedAt:   referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&svc)
	}
	return svc
}

// WithRemoteID overrides the generated identifier.
func WithRemoteID(id string) RemoteServiceOption {
	return func(s *remote.Service) {
		s.ID = id
	}
}

// WithRemoteStatus overrides the record status.
func WithRemoteStatus(status remote.Status) RemoteServiceOption {
	return func(s *remote.Service) {
		s.Status = status
	}
}

// WithStartTime sets the record start time.
func WithStartTime(value string) RemoteServiceOption {
	return func(s *remote.Service) {
		s.StartTime = value
	}
}

// WithRawName stores name verbatim instead of applying the display convention.
func WithRawName(name string) RemoteServiceOption {
	return func(s *remote.Service) {
		s.Name = name
	}
}
