package remote

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Throttle paces calls to an underlying Client.
type Throttle struct {
	next    Client
	limiter *rate.Limiter
}

// NewThrottle wraps next so that at most perSecond calls start each second.
// A non-positive rate returns next unchanged.
func NewThrottle(next Client, perSecond float64) Client {
	if perSecond <= 0 {
		return next
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &Throttle{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (t *Throttle) wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("remote: throttled: %w", err)
	}
	return nil
}

func (t *Throttle) ListServices(ctx context.Context, teamID string, opts ListOptions) ([]Service, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.next.ListServices(ctx, teamID, opts)
}

func (t *Throttle) CreateService(ctx context.Context, input CreateServiceInput) (Service, error) {
	if err := t.wait(ctx); err != nil {
		return Service{}, err
	}
	return t.next.CreateService(ctx, input)
}

func (t *Throttle) UpdateService(ctx context.Context, id string, input UpdateServiceInput) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.next.UpdateService(ctx, id, input)
}

func (t *Throttle) DeleteService(ctx context.Context, id string) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.next.DeleteService(ctx, id)
}

func (t *Throttle) PublishService(ctx context.Context, id string) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.next.PublishService(ctx, id)
}

func (t *Throttle) GetOrCreateRole(ctx context.Context, teamID, nameEn, nameLocal, emoji string) (Role, error) {
	if err := t.wait(ctx); err != nil {
		return Role{}, err
	}
	return t.next.GetOrCreateRole(ctx, teamID, nameEn, nameLocal, emoji)
}

func (t *Throttle) SyncAssignments(ctx context.Context, serviceID string, assignments []AssignmentInput) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.next.SyncAssignments(ctx, serviceID, assignments)
}

var _ Client = (*Throttle)(nil)
