package view

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hanpama/mongoview/internal/logger"
	"github.com/hanpama/mongoview/internal/resolver"
	"github.com/hanpama/mongoview/internal/store"
)

// Writer persists resolved entities into one view collection.
type Writer struct {
	dst         store.Writer
	collection  string
	concurrency int
	log         logger.Logger
}

// NewWriter returns a Writer for collection. Upsert issues at most
// concurrency writes at a time; values below 1 mean one.
func NewWriter(dst store.Writer, collection string, concurrency int, log logger.Logger) *Writer {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Writer{dst: dst, collection: collection, concurrency: concurrency, log: log}
}

// Replace deletes the view documents whose ids are in ents and inserts ents.
// Documents outside that id set are left alone. It returns the number of
// documents inserted.
func (w *Writer) Replace(ctx context.Context, ents []resolver.Entity) (int, error) {
	if len(ents) == 0 {
		return 0, nil
	}
	ids := make(bson.A, len(ents))
	docs := make([]bson.M, len(ents))
	for i, e := range ents {
		ids[i] = e["_id"]
		docs[i] = e
	}
	deleted, err := w.dst.DeleteMany(ctx, w.collection, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("replace %s: %w", w.collection, err)
	}
	if err := w.dst.InsertMany(ctx, w.collection, docs); err != nil {
		return 0, fmt.Errorf("replace %s: %w", w.collection, err)
	}
	w.log.DebugWithContext(ctx, "view documents replaced",
		zap.String("collection", w.collection), zap.Int64("deleted", deleted), zap.Int("inserted", len(docs)))
	return len(docs), nil
}

// Upsert replaces each entity's view document by id, inserting it when
// absent. Writes are independent: all of them are attempted and the first
// error is returned after they finish.
func (w *Writer) Upsert(ctx context.Context, ents []resolver.Entity) (int, error) {
	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for _, e := range ents {
		g.Go(func() error {
			if err := w.dst.ReplaceByID(ctx, w.collection, e["_id"], e); err != nil {
				w.log.WarnWithContext(ctx, "view document upsert failed",
					zap.String("collection", w.collection), zap.Any("id", e["_id"]), zap.Error(err))
				return fmt.Errorf("upsert %s %v: %w", w.collection, e["_id"], err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(ents), nil
}
