// Package remote describes the backing store that holds published service
// records, roles and assignments, and provides local implementations of it.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/example/worship-scheduler/internal/instance"
)

// ErrNotFound is returned when a service or role does not exist.
var ErrNotFound = errors.New("remote: not found")

// Status is the lifecycle state of a remote service record.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Service is a persisted service occurrence as seen by the backing store.
// Name carries the display name ("1/4 Sunday 11:00"); there is no stored
// reference to the service type that produced it.
type Service struct {
	ID          string
	TeamID      string
	Name        string
	ServiceDate instance.Date
	StartTime   string
	Status      Status
	CreatedAt   time.Time
}

// ListOptions narrows ListServices. Zero dates leave that side open.
type ListOptions struct {
	StartDate   instance.Date
	EndDate     instance.Date
	IncludePast bool
}

// Contains reports whether date falls inside the inclusive range.
func (o ListOptions) Contains(date instance.Date) bool {
	if !o.StartDate.IsZero() && date.Before(o.StartDate) {
		return false
	}
	if !o.EndDate.IsZero() && date.After(o.EndDate) {
		return false
	}
	return true
}

// CreateServiceInput describes a new service record.
type CreateServiceInput struct {
	TeamID      string
	Name        string
	ServiceDate instance.Date
	StartTime   string
	Status      Status
}

// UpdateServiceInput patches a service record.
type UpdateServiceInput struct {
	Status *Status
}

// Role is an instrument or team role assignable on a service.
type Role struct {
	ID        string
	TeamID    string
	NameEn    string
	NameLocal string
	Emoji     string
}

// AssignmentInput assigns a team member to a role on a service.
type AssignmentInput struct {
	TeamMemberID string
	RoleID       string
}

// Client is the remote service API. Calls are independent; there is no
// cross-call atomicity.
type Client interface {
	ListServices(ctx context.Context, teamID string, opts ListOptions) ([]Service, error)
	CreateService(ctx context.Context, input CreateServiceInput) (Service, error)
	UpdateService(ctx context.Context, id string, input UpdateServiceInput) error
	DeleteService(ctx context.Context, id string) error
	PublishService(ctx context.Context, id string) error
	GetOrCreateRole(ctx context.Context, teamID, nameEn, nameLocal, emoji string) (Role, error)
	SyncAssignments(ctx context.Context, serviceID string, assignments []AssignmentInput) error
}
