// Package store defines the document-store surface the resolver reads from and
// the view writer writes to. Filters and documents are BSON maps so the same
// shapes reach MongoDB unchanged.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ErrDuplicateID is returned by InsertMany when a document id already exists.
var ErrDuplicateID = errors.New("store: duplicate _id")

// Query is the shape sent per find call. A zero Limit means no limit.
type Query struct {
	Filter bson.M
	Sort   bson.D
	Limit  int64
}

type Reader interface {
	Find(ctx context.Context, collection string, q Query) ([]bson.M, error)
}

type Writer interface {
	DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error)
	InsertMany(ctx context.Context, collection string, docs []bson.M) error
	// ReplaceByID replaces the document whose _id equals id, inserting it when absent.
	ReplaceByID(ctx context.Context, collection string, id any, doc bson.M) error
}

type Store interface {
	Reader
	Writer
}

// WrapID converts an id to the store's identifier type: 24-character hex
// strings become ObjectIDs, every other value is returned unchanged.
func WrapID(id any) any {
	if s, ok := id.(string); ok && len(s) == 24 {
		if oid, err := bson.ObjectIDFromHex(s); err == nil {
			return oid
		}
	}
	return id
}
