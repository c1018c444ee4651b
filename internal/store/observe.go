package store

import (
	"context"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/hanpama/mongoview/internal/eventbus"
	"github.com/hanpama/mongoview/internal/events"
)

var querySeq atomic.Uint64

// Observe wraps s so that every call publishes events.QueryStart and
// events.QueryFinish on the global event bus.
func Observe(s Store) Store {
	if o, ok := s.(*observed); ok {
		return o
	}
	return &observed{next: s}
}

// ObserveReader is Observe for read-only stores.
func ObserveReader(r Reader) Reader {
	if s, ok := r.(Store); ok {
		return Observe(s)
	}
	return &observedReader{next: r}
}

type observed struct {
	next Store
}

type observedReader struct {
	next Reader
}

func track(ctx context.Context, collection, op string) func(n int, err error) {
	id := querySeq.Add(1)
	start := time.Now()
	eventbus.Publish(ctx, events.QueryStart{ID: id, Collection: collection, Op: op})
	return func(n int, err error) {
		eventbus.Publish(ctx, events.QueryFinish{
			ID:         id,
			Collection: collection,
			Op:         op,
			Count:      n,
			Err:        err,
			Duration:   time.Since(start),
		})
	}
}

func find(ctx context.Context, r Reader, collection string, q Query) ([]bson.M, error) {
	done := track(ctx, collection, events.OpFind)
	docs, err := r.Find(ctx, collection, q)
	done(len(docs), err)
	return docs, err
}

func (o *observedReader) Find(ctx context.Context, collection string, q Query) ([]bson.M, error) {
	return find(ctx, o.next, collection, q)
}

func (o *observed) Find(ctx context.Context, collection string, q Query) ([]bson.M, error) {
	return find(ctx, o.next, collection, q)
}

func (o *observed) DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error) {
	done := track(ctx, collection, events.OpDeleteMany)
	n, err := o.next.DeleteMany(ctx, collection, filter)
	done(int(n), err)
	return n, err
}

func (o *observed) InsertMany(ctx context.Context, collection string, docs []bson.M) error {
	done := track(ctx, collection, events.OpInsertMany)
	err := o.next.InsertMany(ctx, collection, docs)
	n := len(docs)
	if err != nil {
		n = 0
	}
	done(n, err)
	return err
}

func (o *observed) ReplaceByID(ctx context.Context, collection string, id any, doc bson.M) error {
	done := track(ctx, collection, events.OpReplaceByID)
	err := o.next.ReplaceByID(ctx, collection, id, doc)
	n := 1
	if err != nil {
		n = 0
	}
	done(n, err)
	return err
}
