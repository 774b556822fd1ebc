package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups the non-nil errors under "errors". All nil gives an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error logs err under "error". A nil err gives an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// TenantID logs a tenant identifier under "tenant_id". A nil id gives an empty Attr.
func TenantID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("tenant_id", id)
}

// TenantSlug logs a tenant slug under "tenant_slug". An empty slug gives an empty Attr.
func TenantSlug(slug string) slog.Attr {
	if slug == "" {
		return slog.Attr{}
	}
	return slog.String("tenant_slug", slug)
}

// Resolver logs the name of a tenant resolution strategy.
func Resolver(name string) slog.Attr {
	return slog.String("resolver", name)
}

// RequestID logs the request identifier under "request_id". A nil id gives an empty Attr.
func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}

// TaskID logs a queue task identifier under "task_id". A nil id gives an empty Attr.
func TaskID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("task_id", id)
}

func TaskName(name string) slog.Attr {
	return slog.String("task_name", name)
}

func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component names the subsystem emitting the record.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
