package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dmitrymomot/tenancy/pkg/environment"
)

// Format selects the slog handler.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config overrides the environment preset from LOG_* variables.
// Empty fields keep whatever the preset chose.
type Config struct {
	Level  string `env:"LOG_LEVEL"`
	Format string `env:"LOG_FORMAT"`
}

// Options turns the config into logger options. Put them after
// WithEnvironment so they win. Unknown values panic, like WithFormat.
func (c Config) Options() []Option {
	var opts []Option
	if c.Level != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.Level))); err != nil {
			panic(fmt.Errorf("invalid LOG_LEVEL %q: %w", c.Level, err))
		}
		opts = append(opts, WithLevel(lvl))
	}
	if c.Format != "" {
		opts = append(opts, WithFormat(Format(strings.ToLower(strings.TrimSpace(c.Format)))))
	}
	return opts
}

type config struct {
	level          slog.Level
	format         Format
	output         io.Writer
	attrs          []slog.Attr
	handlerOptions *slog.HandlerOptions
	extractors     []ContextExtractor
}

// Option configures New.
type Option func(*config)

// New builds a *slog.Logger. Without options it writes JSON at info level to
// stdout. Registered context extractors run on every record.
func New(opts ...Option) *slog.Logger {
	cfg := config{level: slog.LevelInfo, format: FormatJSON, output: os.Stdout}
	for _, opt := range opts {
		opt(&cfg)
	}

	ho := cfg.handlerOptions
	if ho == nil {
		ho = &slog.HandlerOptions{Level: cfg.level}
	}

	var h slog.Handler = slog.NewJSONHandler(cfg.output, ho)
	if cfg.format == FormatText {
		h = slog.NewTextHandler(cfg.output, ho)
	}
	if len(cfg.attrs) > 0 {
		h = h.WithAttrs(cfg.attrs)
	}
	return slog.New(NewLogHandlerDecorator(h, cfg.extractors...))
}

func SetAsDefault(l *slog.Logger) {
	slog.SetDefault(l)
}

// WithEnvironment applies the preset for env and tags records with env and
// service. Production and staging log JSON at info level; development and
// test log text at debug level. Unknown names fall back to development.
func WithEnvironment(env environment.Environment, service string) Option {
	return func(c *config) {
		env = environment.Parse(string(env))
		switch env {
		case environment.Production, environment.Staging:
			c.level, c.format = slog.LevelInfo, FormatJSON
		case environment.Test:
			c.level, c.format = slog.LevelDebug, FormatText
		default:
			env = environment.Development
			c.level, c.format = slog.LevelDebug, FormatText
		}
		if service != "" {
			c.attrs = append(c.attrs, slog.String("service", service))
		}
		c.attrs = append(c.attrs, slog.String("env", string(env)))
	}
}

func WithDevelopment(service string) Option {
	return WithEnvironment(environment.Development, service)
}

func WithProduction(service string) Option {
	return WithEnvironment(environment.Production, service)
}

func WithLevel(l slog.Level) Option {
	return func(c *config) { c.level = l }
}

// WithFormat panics on anything but FormatJSON and FormatText.
func WithFormat(f Format) Option {
	if f != FormatJSON && f != FormatText {
		panic(fmt.Errorf("invalid log format %q: must be %q or %q", f, FormatJSON, FormatText))
	}
	return func(c *config) { c.format = f }
}

func WithTextFormatter() Option { return WithFormat(FormatText) }

func WithJSONFormatter() Option { return WithFormat(FormatJSON) }

// WithOutput sets the destination. Nil writers are ignored.
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.output = w
		}
	}
}

// WithHandlerOptions replaces the slog handler options, level included.
func WithHandlerOptions(opts *slog.HandlerOptions) Option {
	return func(c *config) {
		if opts != nil {
			c.handlerOptions = opts
		}
	}
}

// WithAttr adds static attributes to every record.
func WithAttr(attrs ...slog.Attr) Option {
	return func(c *config) {
		c.attrs = append(c.attrs, attrs...)
	}
}

// WithContextExtractors registers functions that add attributes taken from
// the context of each record, e.g. tenant.LoggerExtractor().
func WithContextExtractors(extractors ...ContextExtractor) Option {
	return func(c *config) {
		c.extractors = append(c.extractors, extractors...)
	}
}

// WithContextValue logs ctx.Value(key) under name when present.
func WithContextValue(name string, key any) Option {
	if name == "" || key == nil {
		return func(*config) {}
	}
	return WithContextExtractors(func(ctx context.Context) (slog.Attr, bool) {
		if v := ctx.Value(key); v != nil {
			return slog.Any(name, v), true
		}
		return slog.Attr{}, false
	})
}
