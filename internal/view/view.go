// Package view ties a compiled relation graph to a source store and a view
// collection. A View materializes every root document of its graph, or
// recomputes the view documents an upstream change affects.
package view

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/hanpama/mongoview/internal/eventbus"
	"github.com/hanpama/mongoview/internal/events"
	"github.com/hanpama/mongoview/internal/graph"
	"github.com/hanpama/mongoview/internal/language"
	"github.com/hanpama/mongoview/internal/logger"
	"github.com/hanpama/mongoview/internal/model"
	"github.com/hanpama/mongoview/internal/reqid"
	"github.com/hanpama/mongoview/internal/resolver"
	"github.com/hanpama/mongoview/internal/store"
)

type Option func(*options)

type options struct {
	compile []graph.Option
	resolve []resolver.Option
	writes  int
	log     logger.Logger
}

func WithCompileOptions(opts ...graph.Option) Option {
	return func(o *options) { o.compile = append(o.compile, opts...) }
}

func WithResolverOptions(opts ...resolver.Option) Option {
	return func(o *options) { o.resolve = append(o.resolve, opts...) }
}

// WithWriteConcurrency bounds the view writes a recompute issues at once.
// The default is 16.
func WithWriteConcurrency(n int) Option { return func(o *options) { o.writes = n } }

func WithLogger(l logger.Logger) Option { return func(o *options) { o.log = l } }

// View is one compiled graph bound to its stores. The view collection is
// named after the view. A View is safe for concurrent use.
type View struct {
	name   string
	plan   *graph.Plan
	res    *resolver.Resolver
	dst    store.Store
	writer *Writer
	log    logger.Logger
}

// New parses and compiles source once. Source documents are read from src
// and view documents are written to dst.
func New(name, source string, reg model.Registry, src store.Reader, dst store.Store, opts ...Option) (*View, error) {
	o := &options{writes: 16, log: logger.NewNoopLogger()}
	for _, f := range opts {
		f(o)
	}
	log := o.log.With(zap.String("view", name))

	g, err := language.ParseGraph(name, source)
	if err != nil {
		return nil, fmt.Errorf("view %s: %w", name, err)
	}
	plan, err := graph.Compile(g, reg, append([]graph.Option{graph.WithLogger(log)}, o.compile...)...)
	if err != nil {
		return nil, fmt.Errorf("view %s: %w", name, err)
	}

	dst = store.Observe(dst)
	res := resolver.New(store.ObserveReader(src), append([]resolver.Option{resolver.WithLogger(log)}, o.resolve...)...)
	return &View{
		name:   name,
		plan:   plan,
		res:    res,
		dst:    dst,
		writer: NewWriter(dst, name, o.writes, log),
		log:    log,
	}, nil
}

func (v *View) Name() string { return v.name }

func (v *View) Plan() *graph.Plan { return v.plan }

// FilterFor returns the view-collection filter selecting the documents that
// embed the document of typ with the given id.
func (v *View) FilterFor(typ string, id any) (bson.M, error) {
	return v.plan.Keys.FilterFor(typ, id)
}

// MaterializeAll resolves every root document and replaces the matching view
// documents. It returns the number of documents written.
func (v *View) MaterializeAll(ctx context.Context) (n int, err error) {
	ctx, done := v.begin(ctx, events.ModeMaterialize)
	defer func() { done(n, err) }()

	ents, err := v.res.Resolve(ctx, v.plan.Root, resolver.All())
	if err != nil {
		return 0, fmt.Errorf("materialize %s: %w", v.name, err)
	}
	n, err = v.writer.Replace(ctx, ents)
	if err != nil {
		return 0, fmt.Errorf("materialize %s: %w", v.name, err)
	}
	return n, nil
}

// Recompute re-resolves the roots of the view documents matching filter and
// upserts them. View documents whose root no longer resolves are kept.
func (v *View) Recompute(ctx context.Context, filter bson.M) (n int, err error) {
	ctx, done := v.begin(ctx, events.ModeRecompute)
	defer func() { done(n, err) }()

	docs, err := v.dst.Find(ctx, v.name, store.Query{Filter: filter})
	if err != nil {
		return 0, fmt.Errorf("recompute %s: %w", v.name, err)
	}
	if len(docs) == 0 {
		return 0, nil
	}
	ids := make([]any, len(docs))
	for i, d := range docs {
		ids[i] = d["_id"]
	}
	ents, err := v.res.Resolve(ctx, v.plan.Root, resolver.ByIDs(ids))
	if err != nil {
		return 0, fmt.Errorf("recompute %s: %w", v.name, err)
	}
	n, err = v.writer.Upsert(ctx, ents)
	if err != nil {
		return 0, fmt.Errorf("recompute %s: %w", v.name, err)
	}
	return n, nil
}

// RecomputeFor recomputes the view documents that embed the document of typ
// with the given id.
func (v *View) RecomputeFor(ctx context.Context, typ string, id any) (int, error) {
	filter, err := v.FilterFor(typ, id)
	if err != nil {
		return 0, fmt.Errorf("recompute %s: %w", v.name, err)
	}
	return v.Recompute(ctx, filter)
}

func (v *View) begin(ctx context.Context, mode string) (context.Context, func(int, error)) {
	ctx, _ = reqid.Ensure(ctx)
	start := time.Now()
	eventbus.Publish(ctx, events.RunStart{View: v.name, Mode: mode})
	return ctx, func(n int, err error) {
		d := time.Since(start)
		eventbus.Publish(ctx, events.RunFinish{View: v.name, Mode: mode, Documents: n, Err: err, Duration: d})
		if err != nil {
			v.log.ErrorWithContext(ctx, "view run failed", zap.String("mode", mode), zap.Duration("duration", d), zap.Error(err))
			return
		}
		v.log.InfoWithContext(ctx, "view run finished", zap.String("mode", mode), zap.Int("documents", n), zap.Duration("duration", d))
	}
}
