package tenant

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTenantNotFound is returned when a tenant cannot be found.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrInvalidIdentifier is returned when the identifier format is invalid.
	ErrInvalidIdentifier = errors.New("invalid tenant identifier")

	// ErrNoTenantInContext is returned when no tenant is found in context.
	ErrNoTenantInContext = errors.New("no tenant in context")

	// ErrInactiveTenant is returned when trying to use an inactive tenant.
	ErrInactiveTenant = errors.New("tenant is inactive")

	// ErrNoTenantResolved matches every *ResolutionError.
	ErrNoTenantResolved = errors.New("no tenant resolved")

	// ErrAmbiguousTenant matches every *AmbiguousResolutionError.
	ErrAmbiguousTenant = errors.New("ambiguous tenant resolution")

	// ErrUnknownStrategy is returned when configuration names a strategy without a factory.
	ErrUnknownStrategy = errors.New("unknown tenant resolution strategy")

	// ErrInvalidConfig is returned when a strategy cannot be built from configuration.
	ErrInvalidConfig = errors.New("invalid tenant resolution config")
)

// ResolutionError reports that no tenant could be resolved by a strict chain,
// or that a resolver failed while the chain was strict.
type ResolutionError struct {
	// Tried lists the resolvers invoked, in order.
	Tried []string
	// Resolver names the failing resolver; empty when nothing matched.
	Resolver string
	// Cause is the resolver failure, if any.
	Cause error
}

func (e *ResolutionError) Error() string {
	if e.Resolver != "" {
		return fmt.Sprintf("tenant resolution failed in resolver %q: %v", e.Resolver, e.Cause)
	}
	if len(e.Tried) == 0 {
		return "no tenant resolved"
	}
	return "no tenant resolved by resolvers: " + strings.Join(e.Tried, ", ")
}

func (e *ResolutionError) Unwrap() error { return e.Cause }

func (e *ResolutionError) Is(target error) bool { return target == ErrNoTenantResolved }

// Diagnostics returns a JSON-friendly description of the failure.
func (e *ResolutionError) Diagnostics() map[string]any {
	d := map[string]any{
		"resolvers_tried": append([]string{}, e.Tried...),
	}
	if e.Resolver != "" {
		d["failed_resolver"] = e.Resolver
	}
	if e.Cause != nil {
		d["cause"] = e.Cause.Error()
	}
	return d
}

// Match is one non-nil resolver result collected by the chain.
type Match struct {
	Resolver string
	Tenant   *Tenant
}

// AmbiguousResolutionError reports that resolvers of a strict chain disagreed.
type AmbiguousResolutionError struct {
	Matches []Match
}

func (e *AmbiguousResolutionError) Error() string {
	parts := make([]string, 0, len(e.Matches))
	for _, m := range e.Matches {
		parts = append(parts, m.Resolver+"="+m.Tenant.Slug)
	}
	return "ambiguous tenant resolution: " + strings.Join(parts, ", ")
}

func (e *AmbiguousResolutionError) Is(target error) bool { return target == ErrAmbiguousTenant }

// Diagnostics maps each resolver name to the slug it produced.
func (e *AmbiguousResolutionError) Diagnostics() map[string]any {
	results := make(map[string]string, len(e.Matches))
	for _, m := range e.Matches {
		results[m.Resolver] = m.Tenant.Slug
	}
	return map[string]any{"results": results}
}
