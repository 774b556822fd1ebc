// Package tenantqueue carries the current tenant from the code that enqueues a
// task to the worker that processes it, using queue stamps.
package tenantqueue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenancy/pkg/queue"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// StampType identifies tenant stamps on a task envelope.
const StampType = "tenant"

// TenantStamp is the payload of a tenant stamp. The worker looks the tenant
// up by ID first and falls back to the slug.
type TenantStamp struct {
	TenantID uuid.UUID `json:"tenant_id"`
	Slug     string    `json:"slug"`
	Name     string    `json:"name,omitempty"`
}

// ErrInvalidStamp is returned when a tenant stamp cannot be decoded.
var ErrInvalidStamp = errors.New("tenantqueue: invalid tenant stamp")

// NewStamp builds the envelope stamp for t.
func NewStamp(t *tenant.Tenant) queue.Stamp {
	// TenantStamp has only string and UUID fields, so Marshal cannot fail.
	payload, _ := json.Marshal(TenantStamp{TenantID: t.ID, Slug: t.Slug, Name: t.Name})
	return queue.Stamp{Type: StampType, Payload: payload}
}

// StampFor is an enqueue option that targets t explicitly, e.g. from a console
// command or an admin request acting on another tenant. Being added before the
// enqueue middlewares run, it also keeps SendingMiddleware from stamping.
func StampFor(t *tenant.Tenant) queue.EnqueueOption {
	if t == nil {
		return queue.WithStamps()
	}
	return queue.WithStamps(NewStamp(t))
}

// FromTask decodes the last tenant stamp of task.
func FromTask(task *queue.Task) (TenantStamp, bool, error) {
	s, ok := task.LastStamp(StampType)
	if !ok {
		return TenantStamp{}, false, nil
	}
	var ts TenantStamp
	if err := json.Unmarshal(s.Payload, &ts); err != nil {
		return TenantStamp{}, true, errors.Join(ErrInvalidStamp, err)
	}
	return ts, true, nil
}

// SendingMiddleware stamps outgoing tasks with the tenant found in ctx.
// Tasks that already carry a tenant stamp are left alone, as are tasks
// enqueued without a tenant.
func SendingMiddleware() queue.EnqueueMiddleware {
	return func(next queue.EnqueueFunc) queue.EnqueueFunc {
		return func(ctx context.Context, task *queue.Task) error {
			t, ok := tenant.FromContext(ctx)
			if ok && !task.HasStamp(StampType) {
				task.AddStamp(NewStamp(t))
			}
			return next(ctx, task)
		}
	}
}
