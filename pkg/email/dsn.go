package email

import (
	"fmt"
	"net/url"
	"strings"
)

// DSN schemes understood by ParseDSN.
const (
	SchemePostmark = "postmark"
	SchemeFile     = "file"
	SchemeNull     = "null"
)

// DSN is a parsed mailer transport string, e.g.
//
//	postmark://<server-token>@default?from=billing@acme.test&reply_to=help@acme.test
//	file:///var/tmp/emails
//	null://null
type DSN struct {
	Scheme  string
	Token   string
	Dir     string
	From    string
	ReplyTo string
}

// ParseDSN validates raw and splits it into its parts.
func ParseDSN(raw string) (DSN, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return DSN{}, fmt.Errorf("%w: %v", ErrInvalidDSN, err)
	}

	d := DSN{
		Scheme:  strings.ToLower(u.Scheme),
		From:    u.Query().Get("from"),
		ReplyTo: u.Query().Get("reply_to"),
	}
	for _, addr := range []string{d.From, d.ReplyTo} {
		if addr != "" && !emailRegex.MatchString(addr) {
			return DSN{}, fmt.Errorf("%w: invalid address %q", ErrInvalidDSN, addr)
		}
	}

	switch d.Scheme {
	case SchemePostmark:
		if u.User != nil {
			d.Token = u.User.Username()
		}
		if d.Token == "" {
			return DSN{}, fmt.Errorf("%w: postmark DSN needs a server token", ErrInvalidDSN)
		}
	case SchemeFile:
		d.Dir = u.Host + u.Path
		if d.Dir == "" {
			return DSN{}, fmt.Errorf("%w: file DSN needs a directory", ErrInvalidDSN)
		}
	case SchemeNull:
	default:
		return DSN{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidDSN, u.Scheme)
	}
	return d, nil
}

// apply returns base with the DSN's credentials and address overrides.
func (d DSN) apply(base Config) Config {
	cfg := base
	if d.Token != "" {
		cfg.PostmarkServerToken = d.Token
	}
	if d.From != "" {
		cfg.SenderEmail = d.From
	}
	if d.ReplyTo != "" {
		cfg.SupportEmail = d.ReplyTo
	}
	return cfg
}
