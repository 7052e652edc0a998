package remote

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/worship-scheduler/internal/instance"
)

// Operation names a Client method, used for call logs and failure injection.
type Operation string

const (
	OpListServices    Operation = "ListServices"
	OpCreateService   Operation = "CreateService"
	OpUpdateService   Operation = "UpdateService"
	OpDeleteService   Operation = "DeleteService"
	OpPublishService  Operation = "PublishService"
	OpGetOrCreateRole Operation = "GetOrCreateRole"
	OpSyncAssignments Operation = "SyncAssignments"
)

// Call records one invocation against Memory.
type Call struct {
	Op     Operation
	Target string
}

// FailureFunc decides whether a call should fail. target is the service id,
// service name or role name depending on the operation.
type FailureFunc func(op Operation, target string) error

// Memory is an in-process Client. It keeps insertion order so listings are
// deterministic.
type Memory struct {
	mu          sync.Mutex
	services    []Service
	roles       []Role
	assignments map[string][]AssignmentInput
	calls       []Call
	fail        FailureFunc
	idGenerator func() string
	now         func() time.Time
}

// MemoryOption configures Memory.
type MemoryOption func(*Memory)

// WithIDGenerator overrides identifier generation.
func WithIDGenerator(fn func() string) MemoryOption {
	return func(m *Memory) {
		if fn != nil {
			m.idGenerator = fn
		}
	}
}

// WithClock overrides the clock used for CreatedAt and IncludePast filtering.
func WithClock(fn func() time.Time) MemoryOption {
	return func(m *Memory) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewMemory constructs an empty Memory client.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		assignments: make(map[string][]AssignmentInput),
		idGenerator: uuid.NewString,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FailWith installs a failure hook; nil clears it.
func (m *Memory) FailWith(fn FailureFunc) {
	m.mu.Lock()
	m.fail = fn
	m.mu.Unlock()
}

// Seed inserts records as-is, bypassing failure injection.
func (m *Memory) Seed(services ...Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, svc := range services {
		if svc.ID == "" {
			svc.ID = m.idGenerator()
		}
		m.services = append(m.services, svc)
	}
}

// Services returns every stored record of a team in insertion order.
func (m *Memory) Services(teamID string) []Service {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Service, 0)
	for _, svc := range m.services {
		if svc.TeamID == teamID {
			out = append(out, svc)
		}
	}
	return out
}

// Assignments returns the last synced assignments of a service.
func (m *Memory) Assignments(serviceID string) []AssignmentInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.assignments[serviceID])
}

// Calls returns the recorded call log.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// CountCalls returns how many calls of op were made.
func (m *Memory) CountCalls(op Operation) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, call := range m.calls {
		if call.Op == op {
			n++
		}
	}
	return n
}

func (m *Memory) begin(op Operation, target string) error {
	m.calls = append(m.calls, Call{Op: op, Target: target})
	if m.fail != nil {
		return m.fail(op, target)
	}
	return nil
}

func (m *Memory) indexOf(id string) int {
	return slices.IndexFunc(m.services, func(svc Service) bool { return svc.ID == id })
}

// ListServices returns the team's records inside opts in insertion order.
func (m *Memory) ListServices(_ context.Context, teamID string, opts ListOptions) ([]Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpListServices, teamID); err != nil {
		return nil, err
	}

	today := instance.DateOf(m.now())
	out := make([]Service, 0)
	for _, svc := range m.services {
		if svc.TeamID != teamID || !opts.Contains(svc.ServiceDate) {
			continue
		}
		if !opts.IncludePast && svc.ServiceDate.Before(today) {
			continue
		}
		out = append(out, svc)
	}
	return out, nil
}

// CreateService stores a new record.
func (m *Memory) CreateService(_ context.Context, input CreateServiceInput) (Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpCreateService, input.Name); err != nil {
		return Service{}, err
	}

	status := input.Status
	if status == "" {
		status = StatusDraft
	}
	svc := Service{
		ID:          m.idGenerator(),
		TeamID:      input.TeamID,
		Name:        input.Name,
		ServiceDate: input.ServiceDate,
		StartTime:   input.StartTime,
		Status:      status,
		CreatedAt:   m.now().UTC(),
	}
	m.services = append(m.services, svc)
	return svc, nil
}

// UpdateService patches a record.
func (m *Memory) UpdateService(_ context.Context, id string, input UpdateServiceInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpUpdateService, id); err != nil {
		return err
	}

	idx := m.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("service %s: %w", id, ErrNotFound)
	}
	if input.Status != nil {
		m.services[idx].Status = *input.Status
	}
	return nil
}

// DeleteService removes a record and its assignments.
func (m *Memory) DeleteService(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpDeleteService, id); err != nil {
		return err
	}

	idx := m.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("service %s: %w", id, ErrNotFound)
	}
	m.services = slices.Delete(m.services, idx, idx+1)
	delete(m.assignments, id)
	return nil
}

// PublishService marks a record published.
func (m *Memory) PublishService(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpPublishService, id); err != nil {
		return err
	}

	idx := m.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("service %s: %w", id, ErrNotFound)
	}
	m.services[idx].Status = StatusPublished
	return nil
}

// GetOrCreateRole returns the team role named nameEn, creating it when missing.
func (m *Memory) GetOrCreateRole(_ context.Context, teamID, nameEn, nameLocal, emoji string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpGetOrCreateRole, nameEn); err != nil {
		return Role{}, err
	}

	for _, role := range m.roles {
		if role.TeamID == teamID && strings.EqualFold(role.NameEn, nameEn) {
			return role, nil
		}
	}
	role := Role{ID: m.idGenerator(), TeamID: teamID, NameEn: nameEn, NameLocal: nameLocal, Emoji: emoji}
	m.roles = append(m.roles, role)
	return role, nil
}

// SyncAssignments replaces the assignments of a service.
func (m *Memory) SyncAssignments(_ context.Context, serviceID string, assignments []AssignmentInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpSyncAssignments, serviceID); err != nil {
		return err
	}

	if m.indexOf(serviceID) < 0 {
		return fmt.Errorf("service %s: %w", serviceID, ErrNotFound)
	}
	m.assignments[serviceID] = slices.Clone(assignments)
	return nil
}

var _ Client = (*Memory)(nil)
