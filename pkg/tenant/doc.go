// Package tenant identifies the tenant of an HTTP request and carries it
// through the unit of work that serves the request.
//
// # Resolution
//
// A Resolver turns a request into one of three outcomes: a tenant, "no tenant"
// (nil, nil), or an error. Built-in strategies read the first path segment,
// the subdomain under a base domain, a header, a query parameter, an exact
// host mapping, a hybrid of host mapping and wildcard patterns, or the
// TXT record _tenant.<host>. ChainResolver runs several of them in a fixed
// order, either first-match-wins or strict (all matches must agree).
//
//	reg := tenant.NewCachedRegistry(store, tenant.NewInMemoryCache(), 5*time.Minute)
//	resolver, err := tenant.NewResolver(cfg, reg, nil)
//	if err != nil {
//		return err
//	}
//	router.Use(tenant.Middleware(resolver, tenant.WithSkipPaths([]string{"/health"})))
//
// # Context
//
// Every unit of work gets its own Context holder. The middleware creates it
// per request, and Run creates it for console commands and background tasks.
// Holders are always cleared when the unit of work ends.
//
//	t, ok := tenant.FromContext(r.Context())
//
// # Errors
//
// Strict chains report *ResolutionError (nothing matched, or a resolver failed)
// and *AmbiguousResolutionError (resolvers disagreed). Both expose Diagnostics
// and match ErrNoTenantResolved and ErrAmbiguousTenant with errors.Is.
// The default middleware error handler answers 400 and includes diagnostics
// only when a non-production environment is set on the request context.
package tenant
