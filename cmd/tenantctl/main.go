// Command tenantctl runs administrative commands against tenants.
//
//	tenantctl migrate
//	tenantctl list
//	tenantctl create --name "Acme Corp" [--slug acme] [--mailer-dsn postmark://token@default]
//	tenantctl activate --tenant acme
//	tenantctl deactivate --tenant acme
//	tenantctl notes [--tenant acme | --all]
//	tenantctl add-note --tenant acme --body "hello"
//
// Commands that act on a tenant take it from --tenant (slug or UUID) or the
// TENANT_ID environment variable. The tenant is set for the duration of the
// command and cleared afterwards.
//
// With TENANT_CACHE_DRIVER=redis, activate and deactivate drop the tenant from
// the cache shared with the server. In-process server caches pick the change up
// after TENANT_CACHE_TTL.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/tenancy/migrations"
	"github.com/dmitrymomot/tenancy/pkg/config"
	"github.com/dmitrymomot/tenancy/pkg/environment"
	"github.com/dmitrymomot/tenancy/pkg/logger"
	"github.com/dmitrymomot/tenancy/pkg/pg"
	"github.com/dmitrymomot/tenancy/pkg/redis"
	"github.com/dmitrymomot/tenancy/pkg/rls"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
	"github.com/dmitrymomot/tenancy/pkg/tenantstore"
)

type appConfig struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	Concurrency int    `env:"TENANTCTL_CONCURRENCY" envDefault:"4"`
	CacheDriver string `env:"TENANT_CACHE_DRIVER" envDefault:"memory"`

	Log   logger.Config
	PG    pg.Config
	RLS   rls.Config
	Redis redis.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, errUsage) {
			printUsage()
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	logOpts := []logger.Option{
		logger.WithEnvironment(environment.Parse(cfg.Env), "tenantctl"),
		logger.WithOutput(os.Stderr),
		logger.WithContextExtractors(tenant.LoggerExtractor()),
	}
	log := logger.New(append(logOpts, cfg.Log.Options()...)...)

	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := tenantstore.New(pool)

	var cache cacheInvalidator
	if cfg.CacheDriver == "redis" {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		shared := redis.NewTenantCache(client, cfg.Redis.KeyPrefix, redis.WithCacheLogger(log))
		cache = tenant.NewCachedRegistry(store, shared, 0)
	}

	sc := rls.New(cfg.RLS, rls.WithLogger(log))
	migrate := func(ctx context.Context) error {
		return pg.MigrateFS(ctx, pool, migrations.FS, ".", cfg.PG, log)
	}
	a := &app{
		store:       store,
		notes:       tenantstore.NewNotes(pool, sc),
		cache:       cache,
		migrate:     migrate,
		out:         os.Stdout,
		getenv:      os.Getenv,
		concurrency: cfg.Concurrency,
		log:         log,
	}
	return a.run(ctx, args)
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage: tenantctl <command> [flags]

Commands:
  migrate                  Apply database migrations
  list                     List all tenants
  create                   Create a tenant (--name, --slug, --mailer-dsn, --inactive)
  activate                 Activate a tenant (--tenant)
  deactivate               Deactivate a tenant (--tenant)
  notes                    List notes (--tenant or --all)
  add-note                 Add a note (--tenant, --body)

The tenant defaults to the TENANT_ID environment variable.
`)
}
