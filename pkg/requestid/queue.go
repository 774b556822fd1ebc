package requestid

import (
	"context"
	"encoding/json"

	"github.com/dmitrymomot/tenancy/pkg/queue"
)

// StampType identifies the request ID stamp on queued tasks.
const StampType = "request_id"

// SendingMiddleware stamps tasks enqueued during a request with its ID, so
// worker logs can be correlated with the request that caused them.
func SendingMiddleware() queue.EnqueueMiddleware {
	return func(next queue.EnqueueFunc) queue.EnqueueFunc {
		return func(ctx context.Context, task *queue.Task) error {
			if id := FromContext(ctx); id != "" && !task.HasStamp(StampType) {
				payload, _ := json.Marshal(id)
				task.AddStamp(queue.Stamp{Type: StampType, Payload: payload})
			}
			return next(ctx, task)
		}
	}
}

// WorkerMiddleware restores the stamped request ID into the handler context.
// Tasks without a valid stamp run unchanged.
func WorkerMiddleware() queue.HandlerMiddleware {
	return func(next queue.HandleFunc) queue.HandleFunc {
		return func(ctx context.Context, task *queue.Task) error {
			if s, ok := task.LastStamp(StampType); ok {
				var id string
				if json.Unmarshal(s.Payload, &id) == nil && Valid(id) {
					ctx = WithContext(ctx, id)
				}
			}
			return next(ctx, task)
		}
	}
}
