// Package httpserver runs an http.Server for the lifetime of a context and
// provides liveness and readiness handlers.
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server failed", logger.Error(err))
//	}
//
// Run returns nil after a graceful shutdown and an error wrapping ErrStart when
// the listener cannot be bound or Serve fails. The server does not install
// signal handlers, so several components can share one cancellation context
// (for example under an errgroup together with a queue worker).
//
// Readiness checks receive the request context:
//
//	r.Get("/health/ready", httpserver.ReadinessHandler(log, 2*time.Second,
//		httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)},
//		httpserver.Check{Name: "redis", Fn: redis.Healthcheck(rdb)},
//	))
package httpserver
