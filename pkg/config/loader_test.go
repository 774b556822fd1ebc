package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenancy/pkg/config"
	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

type successConfig struct {
	Name    string `env:"CFG_TEST_NAME" envDefault:"default"`
	Workers int    `env:"CFG_TEST_WORKERS" envDefault:"4"`
	Debug   bool   `env:"CFG_TEST_DEBUG" envDefault:"true"`
}

type defaultsConfig struct {
	Name    string `env:"CFG_TEST_DEFAULTS_NAME" envDefault:"default"`
	Workers int    `env:"CFG_TEST_DEFAULTS_WORKERS" envDefault:"4"`
}

type singletonConfig struct {
	Value string `env:"CFG_TEST_SINGLETON"`
}

type requiredConfig struct {
	Value string `env:"CFG_TEST_REQUIRED,required"`
}

type envFileConfig struct {
	Value string `env:"CFG_TEST_FROM_FILE"`
}

func TestLoad(t *testing.T) {
	t.Run("reads environment", func(t *testing.T) {
		t.Setenv("CFG_TEST_NAME", "tenancy")
		t.Setenv("CFG_TEST_WORKERS", "16")
		t.Setenv("CFG_TEST_DEBUG", "false")

		var cfg successConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "tenancy", cfg.Name)
		assert.Equal(t, 16, cfg.Workers)
		assert.False(t, cfg.Debug)
	})

	t.Run("uses defaults", func(t *testing.T) {
		var cfg defaultsConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "default", cfg.Name)
		assert.Equal(t, 4, cfg.Workers)
	})

	t.Run("caches per type", func(t *testing.T) {
		t.Setenv("CFG_TEST_SINGLETON", "first")

		var first singletonConfig
		require.NoError(t, config.Load(&first))

		t.Setenv("CFG_TEST_SINGLETON", "second")
		var second singletonConfig
		require.NoError(t, config.Load(&second))
		assert.Equal(t, "first", second.Value)

		config.ResetCache()
		var third singletonConfig
		require.NoError(t, config.Load(&third))
		assert.Equal(t, "second", third.Value)
	})

	t.Run("missing required value", func(t *testing.T) {
		var cfg requiredConfig
		require.ErrorIs(t, config.Load(&cfg), config.ErrParsingConfig)
	})

	t.Run("nil pointer", func(t *testing.T) {
		var cfg *successConfig
		require.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
	})
}

func TestLoadEnv(t *testing.T) {
	t.Run("file values override environment", func(t *testing.T) {
		t.Setenv("CFG_TEST_FROM_FILE", "from-env")

		path := filepath.Join(t.TempDir(), ".env.test")
		require.NoError(t, os.WriteFile(path, []byte("CFG_TEST_FROM_FILE=from-file\n"), 0o600))
		require.NoError(t, config.LoadEnv(path))

		var cfg envFileConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "from-file", cfg.Value)
	})

	t.Run("missing file", func(t *testing.T) {
		err := config.LoadEnv(filepath.Join(t.TempDir(), "nope.env"))
		require.ErrorIs(t, err, config.ErrLoadingEnvFile)
	})

	t.Run("no files", func(t *testing.T) {
		require.NoError(t, config.LoadEnv())
	})
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	writeFile := func(t *testing.T, body string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "tenancy.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}

	t.Run("overlays tenant config", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, `
resolver: chain
resolver_chain:
  order: [domain, subdomain, header]
  strict: true
  header_allow_list: [X-Tenant-Slug]
domain:
  domain_mapping:
    acme.com: acme
    www.acme.com: acme
dns_txt:
  timeout: 2s
`)

		cfg := tenant.Config{
			Resolver:  tenant.StrategySubdomain,
			Subdomain: tenant.SubdomainConfig{BaseDomain: "example.com"},
			Header:    tenant.HeaderConfig{Name: "X-Tenant-Slug"},
		}
		require.NoError(t, config.LoadYAML(path, &cfg))

		assert.Equal(t, tenant.StrategyChain, cfg.Resolver)
		assert.Equal(t, []string{"domain", "subdomain", "header"}, cfg.Chain.Order)
		assert.True(t, cfg.Chain.Strict)
		assert.Equal(t, map[string]string{"acme.com": "acme", "www.acme.com": "acme"}, cfg.Domain.DomainMapping)
		assert.Equal(t, 2*time.Second, cfg.DNSTXT.Timeout)
		assert.Equal(t, "example.com", cfg.Subdomain.BaseDomain, "keys absent from the file are kept")
	})

	t.Run("malformed document", func(t *testing.T) {
		t.Parallel()

		var cfg tenant.Config
		require.ErrorIs(t, config.LoadYAML(writeFile(t, "resolver: [unterminated"), &cfg), config.ErrParsingConfig)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		var cfg tenant.Config
		require.ErrorIs(t, config.LoadYAML(filepath.Join(t.TempDir(), "nope.yaml"), &cfg), config.ErrReadingFile)
	})
}
