package email

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/tenancy/pkg/tenant"
)

// SenderFactory builds a sender for a tenant's parsed mailer DSN.
type SenderFactory func(dsn DSN, cfg Config) (EmailSender, error)

// TenantSender routes each email through the mailer of the tenant in context.
// Without a tenant, or for a tenant with no MailerDSN, the fallback sender is used.
// Senders are built once per distinct DSN and reused.
type TenantSender struct {
	fallback EmailSender
	cfg      Config
	factory  SenderFactory
	logger   *slog.Logger

	mu      sync.Mutex
	senders map[string]EmailSender
}

// TenantSenderOption configures a TenantSender.
type TenantSenderOption func(*TenantSender)

// WithSenderFactory replaces the DSN-to-sender mapping.
func WithSenderFactory(f SenderFactory) TenantSenderOption {
	return func(s *TenantSender) {
		if f != nil {
			s.factory = f
		}
	}
}

func WithLogger(l *slog.Logger) TenantSenderOption {
	return func(s *TenantSender) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewTenantSender wraps fallback. cfg supplies the sender identity that tenant
// DSNs inherit.
func NewTenantSender(fallback EmailSender, cfg Config, opts ...TenantSenderOption) *TenantSender {
	s := &TenantSender{
		fallback: fallback,
		cfg:      cfg,
		factory:  NewSenderFactory(),
		logger:   slog.Default(),
		senders:  make(map[string]EmailSender),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendEmail fails with ErrInvalidDSN when the tenant's DSN is unusable rather
// than sending from the default account.
func (s *TenantSender) SendEmail(ctx context.Context, params SendEmailParams) error {
	sender, err := s.senderFor(ctx)
	if err != nil {
		return err
	}
	return sender.SendEmail(ctx, params)
}

// Forget drops the cached sender for a DSN, e.g. after a tenant rotated its token.
func (s *TenantSender) Forget(dsn string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.senders, dsn)
}

func (s *TenantSender) senderFor(ctx context.Context) (EmailSender, error) {
	t, ok := tenant.FromContext(ctx)
	if !ok || t.MailerDSN == "" {
		return s.fallback, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sender, ok := s.senders[t.MailerDSN]; ok {
		return sender, nil
	}

	dsn, err := ParseDSN(t.MailerDSN)
	if err != nil {
		s.logger.ErrorContext(ctx, "tenant mailer DSN is invalid",
			slog.String("tenant_slug", t.Slug),
			slog.String("error", err.Error()))
		return nil, err
	}
	sender, err := s.factory(dsn, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: tenant %s: %v", ErrInvalidDSN, t.Slug, err)
	}
	s.senders[t.MailerDSN] = sender
	return sender, nil
}

// NewSenderFactory maps postmark DSNs to Postmark clients built with opts,
// file DSNs to DevSender and null DSNs to a sender that drops everything.
func NewSenderFactory(opts ...PostmarkOption) SenderFactory {
	return func(dsn DSN, cfg Config) (EmailSender, error) {
		switch dsn.Scheme {
		case SchemePostmark:
			return NewPostmarkClient(dsn.apply(cfg), opts...)
		case SchemeFile:
			return NewDevSender(dsn.Dir), nil
		case SchemeNull:
			return nullSender{}, nil
		}
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidDSN, dsn.Scheme)
	}
}
