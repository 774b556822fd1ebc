package tenant

import (
	"net/http"
	"strings"
)

const (
	// DefaultHeaderName is read by the header strategy when no name is configured.
	DefaultHeaderName = "X-Tenant-Slug"
	// DefaultQueryParameter is read by the query strategy when no name is configured.
	DefaultQueryParameter = "tenant"
)

// PathResolver uses the first path segment as slug (/acme/dashboard -> acme).
type PathResolver struct {
	registry Registry
}

// NewPathResolver creates the path strategy over reg.
func NewPathResolver(reg Registry) *PathResolver {
	return &PathResolver{registry: reg}
}

// Resolve looks up the first path segment. A bare "/" is absent.
func (p *PathResolver) Resolve(req *http.Request) (*Tenant, error) {
	path := strings.TrimPrefix(req.URL.Path, "/")
	segment, _, _ := strings.Cut(path, "/")
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return nil, nil
	}
	return findBySlug(req.Context(), p.registry, segment)
}

// SubdomainResolver uses the left-most label under a base domain as slug
// (acme.example.com -> acme).
type SubdomainResolver struct {
	registry   Registry
	baseDomain string
	excluded   map[string]struct{}
}

// NewSubdomainResolver creates a subdomain strategy for baseDomain.
// When no excluded labels are given, DefaultExcludedSubdomains apply.
func NewSubdomainResolver(reg Registry, baseDomain string, excluded ...string) *SubdomainResolver {
	if len(excluded) == 0 {
		excluded = DefaultExcludedSubdomains
	}
	return &SubdomainResolver{
		registry:   reg,
		baseDomain: strings.TrimPrefix(NormalizeHost(baseDomain), "."),
		excluded:   excludedSet(excluded),
	}
}

// Subdomain extracts the candidate slug without consulting the registry.
// Returns empty string for the base domain, excluded labels and nested subdomains.
func (s *SubdomainResolver) Subdomain(host string) string {
	host = NormalizeHost(host)
	if s.baseDomain == "" || host == s.baseDomain {
		return ""
	}
	suffix := "." + s.baseDomain
	if !strings.HasSuffix(host, suffix) {
		return ""
	}
	return acceptSubdomain(strings.TrimSuffix(host, suffix), s.baseDomain, s.excluded)
}

// Resolve looks up the subdomain of req.Host, see Subdomain.
func (s *SubdomainResolver) Resolve(req *http.Request) (*Tenant, error) {
	slug := s.Subdomain(req.Host)
	if slug == "" {
		return nil, nil
	}
	return findBySlug(req.Context(), s.registry, slug)
}

// HeaderResolver reads the slug from a request header.
type HeaderResolver struct {
	registry Registry
	name     string
}

// NewHeaderResolver defaults to DefaultHeaderName if name is empty.
func NewHeaderResolver(reg Registry, name string) *HeaderResolver {
	if name == "" {
		name = DefaultHeaderName
	}
	return &HeaderResolver{registry: reg, name: http.CanonicalHeaderKey(name)}
}

// HeaderName implements HeaderSource.
func (h *HeaderResolver) HeaderName() string { return h.name }

// Resolve looks up the trimmed header value. Unknown slugs are absent.
func (h *HeaderResolver) Resolve(req *http.Request) (*Tenant, error) {
	value := strings.TrimSpace(req.Header.Get(h.name))
	if value == "" {
		return nil, nil
	}
	return getBySlug(req.Context(), h.registry, value)
}

// QueryResolver reads the slug from a query-string parameter.
type QueryResolver struct {
	registry  Registry
	parameter string
}

// NewQueryResolver defaults to DefaultQueryParameter if parameter is empty.
func NewQueryResolver(reg Registry, parameter string) *QueryResolver {
	if parameter == "" {
		parameter = DefaultQueryParameter
	}
	return &QueryResolver{registry: reg, parameter: parameter}
}

// Resolve looks up the trimmed parameter value. Unknown slugs are absent.
func (q *QueryResolver) Resolve(req *http.Request) (*Tenant, error) {
	if req.URL == nil {
		return nil, nil
	}
	// Only the first value counts; repeated parameters are not merged.
	value := strings.TrimSpace(req.URL.Query().Get(q.parameter))
	if value == "" {
		return nil, nil
	}
	return getBySlug(req.Context(), q.registry, value)
}
