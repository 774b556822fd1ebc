// Command server is an HTTP service that resolves the tenant of every request,
// keeps tenant data isolated in PostgreSQL and object storage, and carries the
// tenant into background jobs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/tenancy/migrations"
	"github.com/dmitrymomot/tenancy/pkg/clientip"
	"github.com/dmitrymomot/tenancy/pkg/email"
	"github.com/dmitrymomot/tenancy/pkg/environment"
	"github.com/dmitrymomot/tenancy/pkg/httpserver"
	"github.com/dmitrymomot/tenancy/pkg/logger"
	"github.com/dmitrymomot/tenancy/pkg/pg"
	"github.com/dmitrymomot/tenancy/pkg/queue"
	"github.com/dmitrymomot/tenancy/pkg/ratelimiter"
	"github.com/dmitrymomot/tenancy/pkg/redis"
	"github.com/dmitrymomot/tenancy/pkg/requestid"
	"github.com/dmitrymomot/tenancy/pkg/rls"
	"github.com/dmitrymomot/tenancy/pkg/storage"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
	"github.com/dmitrymomot/tenancy/pkg/tenantqueue"
	"github.com/dmitrymomot/tenancy/pkg/tenantstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("server stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	env := environment.Parse(cfg.Env)
	logOpts := []logger.Option{
		logger.WithEnvironment(env, cfg.Service),
		logger.WithContextExtractors(
			tenant.LoggerExtractor(),
			requestid.LoggerExtractor(),
			clientip.LoggerExtractor(),
		),
	}
	log := logger.New(append(logOpts, cfg.Log.Options()...)...)
	logger.SetAsDefault(log)

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.MigrateFS(ctx, pool, migrations.FS, ".", cfg.PG, log); err != nil {
		return err
	}

	checks := []httpserver.Check{{Name: "postgres", Fn: pg.Healthcheck(pool)}}

	state, err := newShared(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer state.close()
	checks = append(checks, state.checks...)

	registry := tenant.NewCachedRegistry(tenantstore.New(pool), state.cache, cfg.CacheTTL)
	resolver, err := tenant.NewResolver(cfg.Tenant, registry, tenant.DefaultFactories(), tenant.WithChainLogger(log))
	if err != nil {
		return err
	}

	var limiter *ratelimiter.Limiter
	if cfg.RateLimit.Enabled {
		if limiter, err = ratelimiter.New(state.limits, cfg.RateLimit); err != nil {
			return err
		}
	}

	sc := rls.New(cfg.RLS, rls.WithLogger(log))
	notes := tenantstore.NewNotes(pool, sc)

	files, err := newStorage(ctx, cfg)
	if err != nil {
		return err
	}

	mailer, err := newMailer(cfg, log)
	if err != nil {
		return err
	}

	tasks := queue.NewMemoryStorage()
	defer tasks.Close()

	enq, err := queue.NewEnqueuer(tasks, queue.WithEnqueueMiddleware(
		requestid.SendingMiddleware(),
		tenantqueue.SendingMiddleware(),
	))
	if err != nil {
		return err
	}

	worker, err := queue.NewWorker(tasks, append(cfg.Queue.WorkerOptions(),
		queue.WithWorkerLogger(log),
		queue.WithHandlerMiddleware(
			requestid.WorkerMiddleware(),
			tenantqueue.WorkerMiddleware(registry,
				tenantqueue.WithSessionConfigurator(sc, pool),
				tenantqueue.WithLogger(log),
			),
		),
	)...)
	if err != nil {
		return err
	}
	worker.RegisterHandlers(queue.NewTaskHandler(notifyNoteCreated(notes, mailer, state.sent, log)))

	router := newRouter(routerConfig{
		env:           env,
		tenantPrefix:  cfg.Tenant.Uses(tenant.StrategyPath),
		requireTenant: cfg.Tenant.RequireTenant,
		resolver:      resolver,
		limiter:       limiter,
		checks:        checks,
		log:           log,
	}, &api{
		log:      log,
		notes:    notes,
		files:    files,
		enqueuer: enq,
	})

	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx, router) })
	g.Go(worker.Run(ctx))
	return g.Wait()
}

// shared holds state that several instances must agree on: the tenant cache,
// the rate limit buckets and the notification delivery marks. They live in
// Redis when the cache driver is redis and in process otherwise; delivery marks
// are only kept in Redis.
type shared struct {
	cache  tenant.Cache
	limits ratelimiter.Store
	sent   deliveries
	checks []httpserver.Check
	close  func()
}

func newShared(ctx context.Context, cfg appConfig, log *slog.Logger) (*shared, error) {
	switch cfg.CacheDriver {
	case cacheMemory, cacheNone:
		var cache tenant.Cache = tenant.NewNoOpCache()
		if cfg.CacheDriver == cacheMemory {
			cache = tenant.NewInMemoryCache()
		}
		limits := ratelimiter.NewMemoryStore()
		return &shared{
			cache:  cache,
			limits: limits,
			close: func() {
				_ = cache.Close()
				_ = limits.Close()
			},
		}, nil
	case cacheRedis:
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return &shared{
			cache:  redis.NewTenantCache(client, cfg.Redis.KeyPrefix, redis.WithCacheLogger(log)),
			limits: redis.NewRateLimitStore(client, cfg.Redis.KeyPrefix),
			sent:   redis.NewScoped(client, cfg.Redis.KeyPrefix),
			checks: []httpserver.Check{{Name: "redis", Fn: redis.Healthcheck(client)}},
			close:  func() { _ = client.Close() },
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownCacheDriver, cfg.CacheDriver)
	}
}

func newStorage(ctx context.Context, cfg appConfig) (*storage.Scoped, error) {
	var (
		backend storage.Storage
		err     error
	)
	switch cfg.StorageDriver {
	case storageLocal:
		backend, err = storage.NewLocal(cfg.StorageDir, cfg.StorageBaseURL)
	case storageS3:
		backend, err = storage.NewS3(ctx, cfg.S3)
	default:
		err = fmt.Errorf("%w: %q", errUnknownStorageDriver, cfg.StorageDriver)
	}
	if err != nil {
		return nil, err
	}
	return storage.NewScoped(backend), nil
}

// newMailer sends through Postmark when a server token is configured and
// writes messages to disk otherwise. Tenants with a mailer DSN get their own
// sender either way.
func newMailer(cfg appConfig, log *slog.Logger) (email.EmailSender, error) {
	fallback := email.NewDevSender(cfg.Email.DevOutputDir)
	if cfg.Email.PostmarkServerToken != "" {
		client, err := email.NewPostmarkClient(cfg.Email)
		if err != nil {
			return nil, err
		}
		fallback = client
	}
	return email.NewTenantSender(fallback, cfg.Email, email.WithLogger(log)), nil
}
