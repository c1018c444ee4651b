// Package resolver walks a compiled plan against a source store and builds
// the nested entities a view stores.
//
// Each node reads from the collection named after its type. For every
// document it copies the configured fields plus _id (also exposed as id) and
// resolves each child relation:
//
//   - belongsTo: the document whose _id is the parent's foreign-key value
//   - hasMany: the documents whose foreign key equals the parent's _id
//   - referencesMany: the documents whose _id is in the parent's id list
//
// Sibling entities of one level and sibling relations of one entity are
// resolved concurrently. The fan-out of each group is bounded by
// Options.Concurrency and the number of store queries in flight across the
// whole resolution by Options.MaxInFlight.
package resolver

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hanpama/mongoview/internal/graph"
	"github.com/hanpama/mongoview/internal/model"
	"github.com/hanpama/mongoview/internal/store"
)

// Entity is one resolved document. Relation fields hold an Entity
// (belongsTo) or a []Entity (hasMany, referencesMany).
type Entity = bson.M

type Resolver struct {
	src  store.Reader
	opts *Options
	sem  *semaphore.Weighted
}

func New(src store.Reader, opts ...Option) *Resolver {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = 1
	}
	return &Resolver{src: src, opts: o, sem: semaphore.NewWeighted(o.MaxInFlight)}
}

// Resolve reads the documents of n's type picked by sel and resolves their
// relations. The result keeps the store's order and is never nil.
func (r *Resolver) Resolve(ctx context.Context, n *graph.Node, sel Selector) ([]Entity, error) {
	q := buildQuery(n.Args, sel, r.opts.Clock())
	raws, err := r.find(ctx, n.Type, q)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", nodeLabel(n), err)
	}

	out := make([]Entity, len(raws))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, raw := range raws {
		g.Go(func() error {
			e, err := r.entity(gctx, n, raw)
			if err != nil {
				return err
			}
			out[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resolver) find(ctx context.Context, collection string, q store.Query) ([]bson.M, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)
	return r.src.Find(ctx, collection, q)
}

func (r *Resolver) entity(ctx context.Context, n *graph.Node, raw bson.M) (Entity, error) {
	e := project(n.Fields, raw)
	if len(n.Children) == 0 {
		return e, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for _, c := range n.Children {
		g.Go(func() error {
			v, ok, err := r.relation(gctx, c, raw)
			if err != nil {
				if r.opts.RelationErrors == OmitField && ctx.Err() == nil {
					r.opts.Logger.WarnWithContext(ctx, "relation omitted after error",
						zap.String("path", c.Path), zap.Any("parent", raw["_id"]), zap.Error(err))
					return nil
				}
				return err
			}
			if ok {
				mu.Lock()
				e[c.Name] = v
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return e, nil
}

// relation resolves child c for the parent document raw. ok is false when
// the field is left out of the parent entity.
func (r *Resolver) relation(ctx context.Context, c *graph.Node, raw bson.M) (v any, ok bool, err error) {
	fk := c.Relation.ForeignKey
	if fk == "" {
		r.opts.Logger.WarnWithContext(ctx, "relation has no foreign key",
			zap.String("path", c.Path), zap.String("kind", string(c.Relation.Kind)))
		return nil, false, nil
	}

	switch c.Relation.Kind {
	case model.BelongsTo:
		id, present := raw[fk]
		if !present || id == nil {
			r.opts.Logger.DebugWithContext(ctx, "foreign key missing",
				zap.String("path", c.Path), zap.String("foreignKey", fk), zap.Any("parent", raw["_id"]))
			return nil, false, nil
		}
		ents, err := r.Resolve(ctx, c, ByID(id))
		if err != nil {
			return nil, false, err
		}
		if len(ents) == 0 {
			return nil, false, nil
		}
		return ents[0], true, nil

	case model.HasMany:
		ents, err := r.Resolve(ctx, c, ByFilter(bson.M{fk: raw["_id"]}))
		if err != nil {
			return nil, false, err
		}
		return ents, true, nil

	case model.ReferencesMany:
		ids, present := idList(raw[fk])
		if !present {
			r.opts.Logger.DebugWithContext(ctx, "id list missing",
				zap.String("path", c.Path), zap.String("foreignKey", fk), zap.Any("parent", raw["_id"]))
			return nil, false, nil
		}
		if len(ids) == 0 {
			return []Entity{}, true, nil
		}
		ents, err := r.Resolve(ctx, c, ByIDs(ids))
		if err != nil {
			return nil, false, err
		}
		return ents, true, nil
	}
	return nil, false, nil
}

// project copies the configured fields present in raw, plus _id and id.
func project(fields []string, raw bson.M) Entity {
	e := make(Entity, len(fields)+2)
	for _, f := range fields {
		if v, ok := raw[f]; ok {
			e[f] = v
		}
	}
	e["_id"] = raw["_id"]
	e["id"] = raw["_id"]
	return e
}

// idList reads a list of ids. Strings and byte slices are not lists.
func idList(v any) ([]any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case bson.A:
		return []any(t), true
	case []any:
		return t, true
	case string, []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func nodeLabel(n *graph.Node) string {
	if n.IsRoot {
		return n.Type
	}
	return n.Path + " (" + n.Type + ")"
}
