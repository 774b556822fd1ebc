package tenant

import (
	"fmt"
	"strings"
	"time"
)

// Strategy names recognized by DefaultFactories and Config.Resolver.
const (
	StrategyPath      = "path"
	StrategySubdomain = "subdomain"
	StrategyHeader    = "header"
	StrategyQuery     = "query"
	StrategyDomain    = "domain"
	StrategyHybrid    = "hybrid"
	StrategyDNSTXT    = "dns_txt"
	StrategyChain     = "chain"
)

// Config is the resolution configuration surface. It can be filled from the
// environment (caarlos0/env tags) or from YAML.
type Config struct {
	Resolver      string          `yaml:"resolver" env:"TENANT_RESOLVER" envDefault:"subdomain"`
	RequireTenant bool            `yaml:"require_tenant" env:"TENANT_REQUIRE"`
	Chain         ChainConfig     `yaml:"resolver_chain" envPrefix:"TENANT_CHAIN_"`
	Subdomain     SubdomainConfig `yaml:"subdomain" envPrefix:"TENANT_SUBDOMAIN_"`
	Header        HeaderConfig    `yaml:"header" envPrefix:"TENANT_HEADER_"`
	Query         QueryConfig     `yaml:"query" envPrefix:"TENANT_QUERY_"`
	Domain        DomainConfig    `yaml:"domain" envPrefix:"TENANT_DOMAIN_"`
	Hybrid        HybridConfig    `yaml:"hybrid" envPrefix:"TENANT_HYBRID_"`
	DNSTXT        DNSTXTConfig    `yaml:"dns_txt" envPrefix:"TENANT_DNS_TXT_"`
}

// SubdomainConfig configures StrategySubdomain. BaseDomain is required.
type SubdomainConfig struct {
	BaseDomain         string   `yaml:"base_domain" env:"BASE_DOMAIN"`
	ExcludedSubdomains []string `yaml:"excluded_subdomains" env:"EXCLUDED" envSeparator:","`
}

// HeaderConfig names the header read by StrategyHeader.
type HeaderConfig struct {
	Name string `yaml:"name" env:"NAME" envDefault:"X-Tenant-Slug"`
}

// QueryConfig names the query parameter read by StrategyQuery.
type QueryConfig struct {
	Parameter string `yaml:"parameter" env:"PARAMETER" envDefault:"tenant"`
}

// DomainConfig maps full hosts to slugs for StrategyDomain.
type DomainConfig struct {
	DomainMapping map[string]string `yaml:"domain_mapping" env:"MAPPING"`
}

// DNSTXTConfig configures StrategyDNSTXT. Without Nameservers the system
// resolv.conf is used.
type DNSTXTConfig struct {
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT" envDefault:"5s"`
	EnableCache bool          `yaml:"enable_cache" env:"ENABLE_CACHE"`
	CacheTTL    time.Duration `yaml:"cache_ttl" env:"CACHE_TTL" envDefault:"5m"`
	Nameservers []string      `yaml:"nameservers" env:"NAMESERVERS" envSeparator:","`
}

// Uses reports whether strategy runs, alone or as part of the chain.
func (c Config) Uses(strategy string) bool {
	name := strings.TrimSpace(c.Resolver)
	if name != StrategyChain {
		return name == strategy
	}
	for _, n := range c.Chain.Order {
		if strings.TrimSpace(n) == strategy {
			return true
		}
	}
	return false
}

// Factory builds one strategy from configuration.
type Factory func(cfg Config, reg Registry) (Resolver, error)

// DefaultFactories returns a fresh name -> factory map for the built-in strategies.
// Integrators may add or replace entries before calling NewResolver.
func DefaultFactories() map[string]Factory {
	return map[string]Factory{
		StrategyPath: func(_ Config, reg Registry) (Resolver, error) {
			return NewPathResolver(reg), nil
		},
		StrategySubdomain: func(cfg Config, reg Registry) (Resolver, error) {
			if strings.TrimSpace(cfg.Subdomain.BaseDomain) == "" {
				return nil, fmt.Errorf("%w: subdomain.base_domain is required", ErrInvalidConfig)
			}
			return NewSubdomainResolver(reg, cfg.Subdomain.BaseDomain, cfg.Subdomain.ExcludedSubdomains...), nil
		},
		StrategyHeader: func(cfg Config, reg Registry) (Resolver, error) {
			return NewHeaderResolver(reg, cfg.Header.Name), nil
		},
		StrategyQuery: func(cfg Config, reg Registry) (Resolver, error) {
			return NewQueryResolver(reg, cfg.Query.Parameter), nil
		},
		StrategyDomain: func(cfg Config, reg Registry) (Resolver, error) {
			return NewDomainResolver(reg, cfg.Domain.DomainMapping), nil
		},
		StrategyHybrid: func(cfg Config, reg Registry) (Resolver, error) {
			return NewHybridResolver(reg, cfg.Hybrid), nil
		},
		StrategyDNSTXT: func(cfg Config, reg Registry) (Resolver, error) {
			opts := []DNSOption{WithDNSTimeout(cfg.DNSTXT.Timeout)}
			if len(cfg.DNSTXT.Nameservers) > 0 {
				opts = append(opts, WithNameservers(cfg.DNSTXT.Nameservers...))
			}
			if cfg.DNSTXT.EnableCache {
				opts = append(opts, WithDNSCache(NewInMemoryCache(), cfg.DNSTXT.CacheTTL))
			}
			return NewDNSTXTResolver(reg, opts...), nil
		},
	}
}

// NewResolver builds the configured strategy once at startup.
// A single strategy comes back as a *NamedResolver so failures can name it.
// For StrategyChain every name in cfg.Chain.Order that has a factory is built;
// names without a factory are skipped.
func NewResolver(cfg Config, reg Registry, factories map[string]Factory, opts ...ChainOption) (Resolver, error) {
	if reg == nil {
		return nil, fmt.Errorf("%w: registry is required", ErrInvalidConfig)
	}
	if factories == nil {
		factories = DefaultFactories()
	}

	name := strings.TrimSpace(cfg.Resolver)
	if name != StrategyChain {
		factory, ok := factories[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
		}
		r, err := factory(cfg, reg)
		if err != nil {
			return nil, err
		}
		return &NamedResolver{Name: name, Resolver: r}, nil
	}

	if len(cfg.Chain.Order) == 0 {
		return nil, fmt.Errorf("%w: resolver_chain.order is empty", ErrInvalidConfig)
	}

	resolvers := make(map[string]Resolver, len(cfg.Chain.Order))
	for _, n := range cfg.Chain.Order {
		n = strings.TrimSpace(n)
		factory, ok := factories[n]
		if !ok || n == StrategyChain {
			continue
		}
		r, err := factory(cfg, reg)
		if err != nil {
			return nil, fmt.Errorf("build resolver %q: %w", n, err)
		}
		resolvers[n] = r
	}

	return NewChainResolver(resolvers, cfg.Chain, opts...), nil
}
