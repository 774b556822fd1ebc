// Package email sends transactional email through Postmark, with a disk-backed
// DevSender for local development.
//
// # Per-tenant mailers
//
// A tenant may carry its own mailer DSN. TenantSender reads the tenant from the
// context and routes through a sender built from that DSN, falling back to the
// default sender otherwise:
//
//	fallback := email.MustNewPostmarkClient(cfg)
//	mailer := email.NewTenantSender(fallback, cfg)
//
//	// inside a tenant-scoped request or task
//	err := mailer.SendEmail(ctx, email.SendEmailParams{
//	    SendTo:   "user@example.com",
//	    Subject:  "Welcome",
//	    BodyHTML: "<p>Hello</p>",
//	})
//
// Supported DSNs:
//
//	postmark://<server-token>@default[?from=addr&reply_to=addr]
//	file:///path/to/dir
//	null://null
//
// An unparsable tenant DSN fails the send with ErrInvalidDSN; mail is never sent
// from the default account on behalf of a misconfigured tenant.
//
// # Errors
//
// ErrInvalidParams for bad input, ErrInvalidConfig for bad sender configuration,
// ErrFailedToSendEmail for transport failures.
package email
