package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/mongoview/internal/eventbus"
	"github.com/hanpama/mongoview/internal/events"
)

func counterValue(t *testing.T, g prometheus.Gatherer, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestSubscribe(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	reg := prometheus.NewRegistry()
	m := New()
	require.NoError(t, m.Register(reg))
	unsubscribe := m.Subscribe()

	ctx := context.Background()
	eventbus.Publish(ctx, events.RunFinish{View: "orders", Mode: events.ModeMaterialize, Documents: 5, Duration: time.Second})
	eventbus.Publish(ctx, events.RunFinish{View: "orders", Mode: events.ModeRecompute, Documents: 1})
	eventbus.Publish(ctx, events.RunFinish{View: "orders", Mode: events.ModeRecompute, Err: errors.New("boom")})
	eventbus.Publish(ctx, events.QueryFinish{Collection: "Item", Op: events.OpFind, Count: 2})
	eventbus.Publish(ctx, events.HTTPFinish{Route: "/views", Status: 200})

	require.Equal(t, 1.0, counterValue(t, reg, "mongoview_runs_total", map[string]string{"mode": "materialize", "outcome": "ok"}))
	require.Equal(t, 1.0, counterValue(t, reg, "mongoview_runs_total", map[string]string{"mode": "recompute", "outcome": "error"}))
	require.Equal(t, 5.0, counterValue(t, reg, "mongoview_run_documents_total", map[string]string{"mode": "materialize"}))
	require.Equal(t, 1.0, counterValue(t, reg, "mongoview_store_queries_total", map[string]string{"collection": "Item", "op": "find"}))
	require.Equal(t, 1.0, counterValue(t, reg, "mongoview_http_requests_total", map[string]string{"status": "200"}))

	unsubscribe()
	eventbus.Publish(ctx, events.HTTPFinish{Route: "/views", Status: 200})
	require.Equal(t, 1.0, counterValue(t, reg, "mongoview_http_requests_total", map[string]string{"status": "200"}))

	require.Error(t, m.Register(reg), "collectors are registered once")
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	require.NoError(t, m.Register(reg))
	m.runs.WithLabelValues("orders", events.ModeMaterialize, "ok").Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `mongoview_runs_total{mode="materialize",outcome="ok",view="orders"} 1`)
}
