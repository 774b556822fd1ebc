package tenant

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

// MaxSlugLength is the DNS label limit. Longer identifiers never resolve.
const MaxSlugLength = 63

// Resolver derives a tenant from an HTTP request.
//
// Three outcomes are distinguished:
//   - t, nil: the request belongs to t
//   - nil, nil: this strategy found nothing (including "slug not in registry")
//   - nil, err: the strategy failed (e.g. the registry is unreachable)
//
// Resolvers never touch the tenant Context.
type Resolver interface {
	Resolve(r *http.Request) (*Tenant, error)
}

// ResolverFunc is an adapter to allow the use of ordinary functions as Resolvers.
type ResolverFunc func(r *http.Request) (*Tenant, error)

// Resolve calls f(r).
func (f ResolverFunc) Resolve(r *http.Request) (*Tenant, error) {
	return f(r)
}

// NamedResolver tags a single strategy with its configured name.
type NamedResolver struct {
	Name string
	Resolver
}

// Names returns the strategy name, matching ChainResolver.Names.
func (n *NamedResolver) Names() []string {
	return []string{n.Name}
}

// HeaderSource is implemented by resolvers whose input is a request header.
// The chain resolver uses it to enforce the header allow-list.
type HeaderSource interface {
	HeaderName() string
}

// DefaultExcludedSubdomains are never treated as tenant slugs.
var DefaultExcludedSubdomains = []string{"www", "api", "admin", "mail", "ftp"}

// NormalizeHost lowercases and trims host, strips a trailing ":port"
// (IPv6 literals included) and a trailing root dot.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "[") {
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		} else {
			host = strings.Trim(host, "[]")
		}
	} else if strings.Count(host, ":") == 1 {
		host = host[:strings.LastIndex(host, ":")]
	}

	return strings.TrimSuffix(host, ".")
}

// findBySlug looks the slug up and folds "not found" into an absent result.
func findBySlug(ctx context.Context, reg Registry, slug string) (*Tenant, error) {
	if slug == "" || len(slug) > MaxSlugLength {
		return nil, nil
	}
	t, err := reg.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// getBySlug uses the throwing lookup and swallows ErrTenantNotFound.
func getBySlug(ctx context.Context, reg Registry, slug string) (*Tenant, error) {
	if slug == "" || len(slug) > MaxSlugLength {
		return nil, nil
	}
	t, err := reg.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func excludedSet(excluded []string) map[string]struct{} {
	set := make(map[string]struct{}, len(excluded))
	for _, s := range excluded {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

// acceptSubdomain applies the exclusion and nesting rules shared by
// the subdomain and hybrid strategies.
func acceptSubdomain(candidate, baseDomain string, excluded map[string]struct{}) string {
	if candidate == "" || candidate == baseDomain {
		return ""
	}
	if _, skip := excluded[candidate]; skip {
		return ""
	}
	// Nested subdomains (a.b.example.com) are not tenants.
	if strings.Contains(candidate, ".") {
		return ""
	}
	return candidate
}
