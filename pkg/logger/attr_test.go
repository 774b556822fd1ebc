package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenancy/pkg/logger"
)

func TestGroup(t *testing.T) {
	t.Parallel()

	attr := logger.Group("req", slog.String("id", "1"), slog.Int("n", 2))
	require.Equal(t, "req", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, "id", g[0].Key)
	assert.Equal(t, "n", g[1].Key)
}

func TestErrors(t *testing.T) {
	t.Parallel()

	err1 := errors.New("first")
	err2 := errors.New("second")

	attr := logger.Errors(err1, nil, err2)
	require.Equal(t, "errors", attr.Key)
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, err1, g[0].Value.Any())
	assert.Equal(t, err2, g[1].Value.Any())

	assert.True(t, logger.Errors(nil).Equal(slog.Attr{}))
}

func TestOptionalAttrs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		attr slog.Attr
		key  string
		want any
	}{
		{"error", logger.Error(errors.New("boom")), "error", "boom"},
		{"tenant id", logger.TenantID("t-1"), "tenant_id", "t-1"},
		{"tenant slug", logger.TenantSlug("acme"), "tenant_slug", "acme"},
		{"request id", logger.RequestID("r-1"), "request_id", "r-1"},
		{"task id", logger.TaskID("task-1"), "task_id", "task-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.key, tt.attr.Key)
			if err, ok := tt.attr.Value.Any().(error); ok {
				assert.Equal(t, tt.want, err.Error())
				return
			}
			assert.Equal(t, tt.want, tt.attr.Value.Any())
		})
	}

	empty := []slog.Attr{
		logger.Error(nil),
		logger.TenantID(nil),
		logger.TenantSlug(""),
		logger.RequestID(nil),
		logger.TaskID(nil),
	}
	for _, a := range empty {
		assert.True(t, a.Equal(slog.Attr{}))
	}
}

func TestValueAttrs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "resolver", logger.Resolver("chain").Key)
	assert.Equal(t, "task_name", logger.TaskName("report").Key)
	assert.Equal(t, int64(3), logger.RetryCount(3).Value.Int64())
	assert.Equal(t, time.Second, logger.Duration(time.Second).Value.Duration())
	assert.Equal(t, "queue", logger.Component("queue").Value.String())
}
