// Package queue is a small repository-agnostic task queue.
//
// An Enqueuer turns a payload into a Task and stores it; a Worker claims due
// tasks and dispatches them to the Handler registered under the task name.
// Tasks carry Stamps: envelope metadata that is not part of the payload.
// Enqueue middlewares add stamps on the way in, handler middlewares read
// them back before the handler runs. Tenant propagation is built on this
// (see package tenantqueue).
//
//	storage := queue.NewMemoryStorage()
//	enq, _ := queue.NewEnqueuer(storage, queue.WithEnqueueMiddleware(tenantqueue.SendingMiddleware()))
//	_ = enq.Enqueue(ctx, WelcomeEmail{UserID: id})
//
//	w, _ := queue.NewWorker(storage, queue.WithHandlerMiddleware(tenantqueue.WorkerMiddleware(registry)))
//	w.RegisterHandlers(queue.NewTaskHandler(sendWelcomeEmail))
//	g.Go(w.Run(ctx))
//
// Failed tasks are retried with linear backoff until MaxRetries, then moved
// to the dead letter queue. Tasks without a handler go to the DLQ directly.
package queue
