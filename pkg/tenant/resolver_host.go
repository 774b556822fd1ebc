package tenant

import (
	"net/http"
	"regexp"
	"slices"
	"strings"
)

// UseSubdomain, as a hybrid subdomain-mapping value, means "the wildcard capture is the slug".
const UseSubdomain = "subdomain"

// DomainResolver maps full hosts to slugs (acme.org -> acme).
type DomainResolver struct {
	registry Registry
	mapping  map[string]string
}

// NewDomainResolver normalizes mapping keys with NormalizeHost.
func NewDomainResolver(reg Registry, mapping map[string]string) *DomainResolver {
	return &DomainResolver{registry: reg, mapping: normalizeMapping(mapping)}
}

// Resolve looks up the normalized host in the mapping. Unmapped hosts are absent.
func (d *DomainResolver) Resolve(req *http.Request) (*Tenant, error) {
	slug, ok := d.mapping[NormalizeHost(req.Host)]
	if !ok {
		return nil, nil
	}
	return findBySlug(req.Context(), d.registry, slug)
}

// HybridConfig configures the hybrid domain/subdomain strategy.
type HybridConfig struct {
	// DomainMapping is checked first: exact host -> slug.
	DomainMapping map[string]string `yaml:"domain_mapping" env:"DOMAIN_MAPPING"`
	// SubdomainMapping maps wildcard host patterns (*.example.com) to either
	// UseSubdomain or a fixed slug.
	SubdomainMapping map[string]string `yaml:"subdomain_mapping" env:"SUBDOMAIN_MAPPING"`
	// ExcludedSubdomains defaults to DefaultExcludedSubdomains when empty.
	ExcludedSubdomains []string `yaml:"excluded_subdomains" env:"EXCLUDED_SUBDOMAINS"`
}

type hostPattern struct {
	pattern string
	re      *regexp.Regexp
	value   string
	// base is the pattern with its wildcard label removed, compared against captures.
	base string
}

// HybridResolver combines exact domain mapping with wildcard subdomain patterns.
type HybridResolver struct {
	registry Registry
	domains  map[string]string
	patterns []hostPattern
	excluded map[string]struct{}
}

// NewHybridResolver compiles the subdomain patterns once.
// Patterns are tried most specific first (more literal characters), then lexically.
func NewHybridResolver(reg Registry, cfg HybridConfig) *HybridResolver {
	excluded := cfg.ExcludedSubdomains
	if len(excluded) == 0 {
		excluded = DefaultExcludedSubdomains
	}

	patterns := make([]hostPattern, 0, len(cfg.SubdomainMapping))
	for pattern, value := range normalizeMapping(cfg.SubdomainMapping) {
		patterns = append(patterns, hostPattern{
			pattern: pattern,
			re:      compileHostPattern(pattern),
			value:   strings.TrimSpace(value),
			base:    strings.TrimPrefix(strings.TrimPrefix(pattern, "*"), "."),
		})
	}
	slices.SortFunc(patterns, func(a, b hostPattern) int {
		la := len(a.pattern) - strings.Count(a.pattern, "*")
		lb := len(b.pattern) - strings.Count(b.pattern, "*")
		if la != lb {
			return lb - la
		}
		return strings.Compare(a.pattern, b.pattern)
	})

	return &HybridResolver{
		registry: reg,
		domains:  normalizeMapping(cfg.DomainMapping),
		patterns: patterns,
		excluded: excludedSet(excluded),
	}
}

// Slug returns the slug the host maps to without consulting the registry.
func (h *HybridResolver) Slug(host string) string {
	host = NormalizeHost(host)
	if host == "" {
		return ""
	}
	if slug, ok := h.domains[host]; ok {
		return slug
	}

	for _, p := range h.patterns {
		m := p.re.FindStringSubmatch(host)
		if m == nil {
			continue
		}
		if p.value != UseSubdomain {
			return p.value
		}
		if len(m) < 2 {
			return ""
		}
		return acceptSubdomain(m[1], p.base, h.excluded)
	}
	return ""
}

// Resolve looks up the slug chosen by Slug.
func (h *HybridResolver) Resolve(req *http.Request) (*Tenant, error) {
	slug := h.Slug(req.Host)
	if slug == "" {
		return nil, nil
	}
	return findBySlug(req.Context(), h.registry, slug)
}

// compileHostPattern turns "*.example.com" into ^(.+)\.example\.com$.
func compileHostPattern(pattern string) *regexp.Regexp {
	expr := strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, `(.+)`)
	return regexp.MustCompile("^" + expr + "$")
}

func normalizeMapping(mapping map[string]string) map[string]string {
	out := make(map[string]string, len(mapping))
	for host, slug := range mapping {
		if h := NormalizeHost(host); h != "" {
			out[h] = strings.TrimSpace(slug)
		}
	}
	return out
}
