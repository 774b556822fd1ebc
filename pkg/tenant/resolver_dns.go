package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	// DNSRecordPrefix is prepended to the host to form the TXT query name.
	DNSRecordPrefix = "_tenant."
	// DefaultDNSTimeout bounds every TXT lookup.
	DefaultDNSTimeout = 5 * time.Second
	// DefaultDNSCacheTTL applies when caching is enabled without an explicit TTL.
	DefaultDNSCacheTTL = 5 * time.Minute

	resolvConfPath = "/etc/resolv.conf"
)

var txtSlugPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// TXTLookup fetches TXT records. Each element is one record with its
// character-strings concatenated.
type TXTLookup interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// DNSOption configures DNSTXTResolver.
type DNSOption func(*DNSTXTResolver)

// WithDNSTimeout overrides DefaultDNSTimeout. Non-positive values are ignored.
func WithDNSTimeout(d time.Duration) DNSOption {
	return func(r *DNSTXTResolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithNameservers sets "host:port" (or bare host, port 53) servers instead of resolv.conf.
func WithNameservers(servers ...string) DNSOption {
	return func(r *DNSTXTResolver) {
		r.servers = normalizeNameservers(servers)
	}
}

// WithTXTLookup replaces the DNS client, mainly for tests.
func WithTXTLookup(lookup TXTLookup) DNSOption {
	return func(r *DNSTXTResolver) {
		if lookup != nil {
			r.lookup = lookup
		}
	}
}

// WithDNSCache caches resolved tenants per host. Zero ttl means DefaultDNSCacheTTL.
func WithDNSCache(cache Cache, ttl time.Duration) DNSOption {
	return func(r *DNSTXTResolver) {
		if ttl <= 0 {
			ttl = DefaultDNSCacheTTL
		}
		r.cache = cache
		r.cacheTTL = ttl
	}
}

// WithDNSLogger sets the logger for lookup failures (debug level).
func WithDNSLogger(logger *slog.Logger) DNSOption {
	return func(r *DNSTXTResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// DNSTXTResolver reads the slug from the TXT record _tenant.<host>.
// DNS is best effort: timeouts, missing or malformed records all yield an absent result.
type DNSTXTResolver struct {
	registry Registry
	lookup   TXTLookup
	servers  []string
	timeout  time.Duration
	cache    Cache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewDNSTXTResolver creates the strategy. Without WithNameservers or WithTXTLookup,
// nameservers are read from /etc/resolv.conf.
func NewDNSTXTResolver(reg Registry, opts ...DNSOption) *DNSTXTResolver {
	r := &DNSTXTResolver{
		registry: reg,
		timeout:  DefaultDNSTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.lookup == nil {
		if len(r.servers) == 0 {
			r.servers = systemNameservers()
		}
		r.lookup = &dnsClient{
			client:  &dns.Client{Net: "udp", Timeout: r.timeout},
			servers: r.servers,
		}
	}
	return r
}

// Resolve queries _tenant.<host>, consulting the cache first when one is set.
func (r *DNSTXTResolver) Resolve(req *http.Request) (*Tenant, error) {
	host := NormalizeHost(req.Host)
	if host == "" {
		return nil, nil
	}
	ctx := req.Context()

	cacheKey := "dns_txt:" + host
	if r.cache != nil {
		if t, ok := r.cache.Get(ctx, cacheKey); ok {
			return t, nil
		}
	}

	slug := r.querySlug(ctx, host)
	if slug == "" {
		return nil, nil
	}

	t, err := findBySlug(ctx, r.registry, slug)
	if err != nil || t == nil {
		if err != nil {
			r.logger.DebugContext(ctx, "dns txt registry lookup failed",
				slog.String("host", host), slog.String("slug", slug), slog.String("error", err.Error()))
		}
		return nil, nil
	}

	if r.cache != nil {
		r.cache.Set(ctx, cacheKey, t, r.cacheTTL)
	}
	return t, nil
}

// querySlug returns the sanitized slug from the first TXT record, or "".
func (r *DNSTXTResolver) querySlug(ctx context.Context, host string) string {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	name := DNSRecordPrefix + host
	records, err := r.lookup.LookupTXT(ctx, name)
	if err != nil {
		r.logger.DebugContext(ctx, "dns txt lookup failed",
			slog.String("name", name), slog.String("error", err.Error()))
		return ""
	}
	if len(records) == 0 {
		return ""
	}
	return SanitizeTXTSlug(records[0])
}

// SanitizeTXTSlug trims, unquotes and lowercases value.
// Returns "" unless the result consists of [a-z0-9_-] only.
func SanitizeTXTSlug(value string) string {
	value = strings.TrimSpace(value)
	value = strings.Trim(value, `"`)
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" || len(value) > MaxSlugLength || !txtSlugPattern.MatchString(value) {
		return ""
	}
	return value
}

// dnsClient is the native TXTLookup. Every exchange is bounded by the client timeout
// and the context deadline.
type dnsClient struct {
	client  *dns.Client
	servers []string
}

var errNoNameservers = errors.New("no nameservers configured")

func (c *dnsClient) LookupTXT(ctx context.Context, name string) ([]string, error) {
	if len(c.servers) == 0 {
		return nil, errNoNameservers
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range c.servers {
		resp, _, err := c.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			return nil, fmt.Errorf("dns %s: %s", name, dns.RcodeToString[resp.Rcode])
		}

		records := make([]string, 0, len(resp.Answer))
		for _, rr := range resp.Answer {
			if txt, ok := rr.(*dns.TXT); ok {
				records = append(records, strings.Join(txt.Txt, ""))
			}
		}
		return records, nil
	}
	return nil, lastErr
}

func systemNameservers() []string {
	conf, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil || conf == nil {
		return nil
	}
	servers := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		servers = append(servers, net.JoinHostPort(s, conf.Port))
	}
	return servers
}

func normalizeNameservers(servers []string) []string {
	out := make([]string, 0, len(servers))
	for _, s := range servers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(strings.Trim(s, "[]"), strconv.Itoa(53))
		}
		out = append(out, s)
	}
	return out
}
