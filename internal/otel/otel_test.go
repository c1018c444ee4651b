package otel

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hanpama/mongoview/internal/eventbus"
	"github.com/hanpama/mongoview/internal/events"
	"github.com/hanpama/mongoview/internal/reqid"
)

func TestSetupWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup("", "mongoview")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSubscriberSpans(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	sub := &subscriber{tracer: tp.Tracer("test")}
	unsubscribe := sub.register()
	defer unsubscribe()

	ctx, _ := reqid.NewContext(context.Background())
	req := httptest.NewRequest("POST", "/views/orders/materialize", nil)
	eventbus.Publish(ctx, events.HTTPStart{Request: req, Route: "/views/{name}/materialize"})
	eventbus.Publish(ctx, events.RunStart{View: "orders", Mode: events.ModeMaterialize})
	eventbus.Publish(ctx, events.QueryStart{ID: 1, Collection: "Order", Op: events.OpFind})
	eventbus.Publish(ctx, events.QueryStart{ID: 2, Collection: "Item", Op: events.OpFind})
	eventbus.Publish(ctx, events.QueryFinish{ID: 2, Collection: "Item", Op: events.OpFind, Err: errors.New("boom")})
	eventbus.Publish(ctx, events.QueryFinish{ID: 1, Collection: "Order", Op: events.OpFind, Count: 3})
	eventbus.Publish(ctx, events.RunFinish{View: "orders", Mode: events.ModeMaterialize, Documents: 3})
	eventbus.Publish(ctx, events.HTTPFinish{Request: req, Route: "/views/{name}/materialize", Status: 200})

	ended := rec.Ended()
	require.Len(t, ended, 4)
	byName := map[string][]sdktrace.ReadOnlySpan{}
	for _, s := range ended {
		byName[s.Name()] = append(byName[s.Name()], s)
	}
	require.Len(t, byName["mongo.find"], 2)
	require.Len(t, byName["view.materialize"], 1)
	require.Len(t, byName["http.request"], 1)

	httpSpan := byName["http.request"][0]
	run := byName["view.materialize"][0]
	require.Equal(t, httpSpan.SpanContext().SpanID(), run.Parent().SpanID())
	for _, q := range byName["mongo.find"] {
		require.Equal(t, run.SpanContext().SpanID(), q.Parent().SpanID())
	}
	require.Equal(t, codes.Error, byName["mongo.find"][0].Status().Code)

	// finishing an unknown run is ignored
	eventbus.Publish(ctx, events.RunFinish{View: "other", Mode: events.ModeRecompute})
	require.Len(t, rec.Ended(), 4)
}
