package tenant

import (
	"log/slog"
	"net/http"
	"strings"
)

// ChainConfig controls the chain resolver.
type ChainConfig struct {
	// Order lists resolver names in invocation order. Names without a resolver are skipped.
	Order []string `yaml:"order" env:"ORDER" envSeparator:","`
	// Strict requires every resolver that matches to agree on one tenant.
	Strict bool `yaml:"strict" env:"STRICT"`
	// HeaderAllowList names the headers header-based resolvers may read.
	// Header-based resolvers reading any other header are skipped.
	HeaderAllowList []string `yaml:"header_allow_list" env:"HEADER_ALLOW_LIST" envSeparator:","`
}

// ChainOption configures ChainResolver.
type ChainOption func(*ChainResolver)

// WithChainLogger sets the logger used for swallowed resolver failures.
func WithChainLogger(logger *slog.Logger) ChainOption {
	return func(c *ChainResolver) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type namedResolver struct {
	name     string
	resolver Resolver
}

// ChainResolver runs several strategies in a fixed order and applies a conflict policy.
// The ordered list is built once; Resolve never evaluates resolvers in parallel.
type ChainResolver struct {
	entries   []namedResolver
	strict    bool
	allowList map[string]struct{}
	logger    *slog.Logger
}

// NewChainResolver builds the chain from the named resolvers in cfg.Order.
// Resolvers absent from cfg.Order are never invoked.
func NewChainResolver(resolvers map[string]Resolver, cfg ChainConfig, opts ...ChainOption) *ChainResolver {
	c := &ChainResolver{
		strict:    cfg.Strict,
		allowList: make(map[string]struct{}, len(cfg.HeaderAllowList)),
		logger:    slog.Default(),
	}
	for _, h := range cfg.HeaderAllowList {
		if h = strings.TrimSpace(h); h != "" {
			c.allowList[http.CanonicalHeaderKey(h)] = struct{}{}
		}
	}
	for _, name := range cfg.Order {
		name = strings.TrimSpace(name)
		r, ok := resolvers[name]
		if !ok || r == nil {
			continue
		}
		c.entries = append(c.entries, namedResolver{name: name, resolver: r})
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Names returns the resolver names that will be invoked, in order.
func (c *ChainResolver) Names() []string {
	names := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		names = append(names, e.name)
	}
	return names
}

// Strict reports whether the chain runs in strict mode.
func (c *ChainResolver) Strict() bool { return c.strict }

// Resolve implements Resolver.
//
// Non-strict: the first resolver (by order) that matches wins; failures are logged
// and treated as "no match"; no match at all returns nil, nil.
// Strict: failures return *ResolutionError, no match returns *ResolutionError,
// disagreeing matches (different slugs) return *AmbiguousResolutionError.
func (c *ChainResolver) Resolve(req *http.Request) (*Tenant, error) {
	ctx := req.Context()
	tried := make([]string, 0, len(c.entries))
	var matches []Match

	for _, e := range c.entries {
		if !c.headerAllowed(e.resolver) {
			c.logger.DebugContext(ctx, "tenant resolver skipped: header not allowed",
				slog.String("resolver", e.name))
			continue
		}

		tried = append(tried, e.name)
		t, err := e.resolver.Resolve(req)
		if err != nil {
			if c.strict {
				return nil, &ResolutionError{Tried: tried, Resolver: e.name, Cause: err}
			}
			c.logger.WarnContext(ctx, "tenant resolver failed",
				slog.String("resolver", e.name),
				slog.String("error", err.Error()))
			continue
		}
		if t == nil {
			continue
		}
		if !c.strict {
			return t, nil
		}
		matches = append(matches, Match{Resolver: e.name, Tenant: t})
	}

	if !c.strict {
		return nil, nil
	}
	if len(matches) == 0 {
		return nil, &ResolutionError{Tried: tried}
	}
	first := matches[0].Tenant
	for _, m := range matches[1:] {
		if !first.SameAs(m.Tenant) {
			return nil, &AmbiguousResolutionError{Matches: matches}
		}
	}
	return first, nil
}

// headerAllowed is false only for header-based resolvers reading a header outside the allow-list.
func (c *ChainResolver) headerAllowed(r Resolver) bool {
	src, ok := r.(HeaderSource)
	if !ok {
		return true
	}
	_, allowed := c.allowList[http.CanonicalHeaderKey(src.HeaderName())]
	return allowed
}
