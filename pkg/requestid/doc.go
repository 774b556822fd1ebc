// Package requestid correlates an HTTP request with everything it causes.
//
// Middleware assigns each request an ID (reusing a well-formed X-Request-ID
// header), LoggerExtractor adds it to slog records, and the queue middlewares
// carry it across the enqueue/worker boundary as a task stamp:
//
//	enq, _ := queue.NewEnqueuer(store, queue.WithEnqueueMiddleware(
//		requestid.SendingMiddleware(),
//		tenantqueue.SendingMiddleware(),
//	))
//	worker, _ := queue.NewWorker(store, queue.WithHandlerMiddleware(
//		requestid.WorkerMiddleware(),
//		tenantqueue.WorkerMiddleware(registry),
//	))
package requestid
