package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hanpama/mongoview/internal/reqid"
)

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		for _, level := range []string{"debug", "info", "warn", "error", "none"} {
			l, err := NewLogger(format, level)
			require.NoError(t, err, "%s/%s", format, level)
			require.NotNil(t, l)
		}
	}
	_, err := NewLogger("json", "loud")
	require.Error(t, err)
	_, err = NewLogger("xml", "info")
	require.Error(t, err)
	require.Panics(t, func() { MustNewLogger("json", "loud") })
}

func TestWithContextAddsRunID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	var l Logger = &ZapLogger{zap.New(core)}
	l = l.With(zap.String("view", "orders"))

	ctx, id := reqid.NewContext(context.Background())
	l.WarnWithContext(ctx, "relation skipped", zap.String("relation", "items"))
	l.InfoWithContext(context.Background(), "done")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	require.Equal(t, "orders", fields["view"])
	require.Equal(t, "items", fields["relation"])
	require.Equal(t, id, fields["run_id"])
	require.NotContains(t, entries[1].ContextMap(), "run_id")
}
