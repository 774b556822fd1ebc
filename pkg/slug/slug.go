package slug

import (
	"crypto/rand"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLength matches tenant.MaxSlugLength: a slug must fit in one DNS label.
const MaxLength = 63

const separator = "-"

var validPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Letters that do not decompose into a base letter plus combining marks.
var ligatures = strings.NewReplacer(
	"ß", "ss", "æ", "ae", "Æ", "ae", "œ", "oe", "Œ", "oe",
	"ø", "o", "Ø", "o", "ł", "l", "Ł", "l", "đ", "d", "Đ", "d",
)

type config struct {
	maxLength    int
	suffixLength int
}

type Option func(*config)

// WithMaxLength caps the slug below MaxLength. Values outside (0, MaxLength] are ignored.
func WithMaxLength(n int) Option {
	return func(c *config) {
		if n > 0 && n <= MaxLength {
			c.maxLength = n
		}
	}
}

// WithSuffix appends a random lowercase alphanumeric suffix of n characters,
// e.g. to retry after a slug collision.
func WithSuffix(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.suffixLength = n
		}
	}
}

// Make derives a tenant slug from a display name: diacritics are stripped,
// runs of other characters become a single "-", and the result is cut to fit.
// Make returns "" when s contains nothing usable and no suffix was requested.
func Make(s string, opts ...Option) string {
	cfg := &config{maxLength: MaxLength}
	for _, opt := range opts {
		opt(cfg)
	}

	budget := cfg.maxLength
	if cfg.suffixLength > 0 {
		budget -= min(cfg.suffixLength, cfg.maxLength) + len(separator)
	}

	var b strings.Builder
	lastWasSep := true
	for _, r := range fold(s) {
		if b.Len() >= budget {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastWasSep = false
			continue
		}
		if !lastWasSep {
			if b.Len()+len(separator) >= budget {
				break
			}
			b.WriteString(separator)
			lastWasSep = true
		}
	}
	out := strings.TrimRight(b.String(), separator)

	if cfg.suffixLength > 0 {
		suffix := randomSuffix(min(cfg.suffixLength, cfg.maxLength))
		if out == "" {
			return suffix
		}
		return out + separator + suffix
	}
	return out
}

// Valid reports whether s is acceptable as a tenant slug.
func Valid(s string) bool {
	return len(s) <= MaxLength && validPattern.MatchString(s)
}

// fold lowercases s and reduces accented letters to ASCII where possible.
func fold(s string) string {
	s = ligatures.Replace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}
	return strings.ToLower(s)
}

func randomSuffix(n int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}
