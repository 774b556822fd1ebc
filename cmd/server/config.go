package main

import (
	"errors"
	"time"

	"github.com/dmitrymomot/tenancy/pkg/config"
	"github.com/dmitrymomot/tenancy/pkg/email"
	"github.com/dmitrymomot/tenancy/pkg/httpserver"
	"github.com/dmitrymomot/tenancy/pkg/logger"
	"github.com/dmitrymomot/tenancy/pkg/pg"
	"github.com/dmitrymomot/tenancy/pkg/queue"
	"github.com/dmitrymomot/tenancy/pkg/ratelimiter"
	"github.com/dmitrymomot/tenancy/pkg/redis"
	"github.com/dmitrymomot/tenancy/pkg/rls"
	"github.com/dmitrymomot/tenancy/pkg/storage"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// Tenant cache drivers.
const (
	cacheMemory = "memory"
	cacheRedis  = "redis"
	cacheNone   = "none"
)

// Object storage drivers.
const (
	storageLocal = "local"
	storageS3    = "s3"
)

type appConfig struct {
	Env     string `env:"APP_ENV" envDefault:"development"`
	Service string `env:"APP_NAME" envDefault:"tenancy"`

	// TenantConfigFile is an optional YAML overlay for tenant.Config, handy
	// for large domain mapping tables.
	TenantConfigFile string        `env:"TENANT_CONFIG_FILE"`
	CacheDriver      string        `env:"TENANT_CACHE_DRIVER" envDefault:"memory"`
	CacheTTL         time.Duration `env:"TENANT_CACHE_TTL" envDefault:"5m"`

	StorageDriver  string `env:"STORAGE_DRIVER" envDefault:"local"`
	StorageDir     string `env:"STORAGE_LOCAL_DIR" envDefault:"./tmp/uploads"`
	StorageBaseURL string `env:"STORAGE_LOCAL_BASE_URL" envDefault:"/files/"`

	Log       logger.Config
	HTTP      httpserver.Config
	PG        pg.Config
	Redis     redis.Config
	Tenant    tenant.Config
	RLS       rls.Config
	Queue     queue.Config
	S3        storage.S3Config
	Email     email.Config
	RateLimit ratelimiter.Config
}

var (
	errUnknownCacheDriver   = errors.New("unknown tenant cache driver")
	errUnknownStorageDriver = errors.New("unknown storage driver")
)

func loadConfig() (appConfig, error) {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return cfg, err
	}
	if cfg.TenantConfigFile != "" {
		if err := config.LoadYAML(cfg.TenantConfigFile, &cfg.Tenant); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}
