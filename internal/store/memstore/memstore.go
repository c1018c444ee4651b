// Package memstore is an in-memory store.Store. It evaluates the filter shapes
// the resolver and the reverse-key registry produce, and records every find so
// tests can assert on query shapes.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/hanpama/mongoview/internal/store"
)

// Call records one Find.
type Call struct {
	Collection string
	Query      store.Query
}

type Store struct {
	mu    sync.RWMutex
	colls map[string][]bson.M
	fail  map[string]error
	finds []Call
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{colls: make(map[string][]bson.M), fail: make(map[string]error)}
}

// FailWith makes every operation on collection return err. A nil err clears it.
func (s *Store) FailWith(collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, collection)
		return
	}
	s.fail[collection] = err
}

// Finds returns the recorded Find calls in call order.
func (s *Store) Finds() []Call {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.finds)
}

// ResetFinds clears the recorded Find calls.
func (s *Store) ResetFinds() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds = nil
}

// Docs returns copies of the documents of collection in insertion order.
func (s *Store) Docs(collection string) []bson.M {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.colls[collection]
	out := make([]bson.M, len(docs))
	for i, d := range docs {
		out[i] = normalizeDoc(d)
	}
	return out
}

func (s *Store) Find(ctx context.Context, collection string, q store.Query) ([]bson.M, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.finds = append(s.finds, Call{Collection: collection, Query: q})
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail[collection]; err != nil {
		return nil, err
	}
	filter := normalizeDoc(q.Filter)
	out := []bson.M{}
	for _, doc := range s.colls[collection] {
		ok, err := match(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, normalizeDoc(doc))
		}
	}
	if len(q.Sort) > 0 {
		if err := sortDocs(out, q.Sort); err != nil {
			return nil, err
		}
	}
	if q.Limit > 0 && int64(len(out)) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func sortDocs(docs []bson.M, keys bson.D) error {
	for _, k := range keys {
		if dir, ok := toFloat(k.Value); !ok || (dir != 1 && dir != -1) {
			return fmt.Errorf("memstore: invalid sort direction %v for %s", k.Value, k.Key)
		}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, k := range keys {
			dir, _ := toFloat(k.Value)
			c := sortCompare(first(docs[i], k.Key), first(docs[j], k.Key))
			if c == 0 {
				continue
			}
			if dir < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return nil
}

func first(doc bson.M, path string) any {
	vals := lookup(doc, strings.Split(path, "."))
	if len(vals) == 0 {
		return nil
	}
	return vals[0]
}

func (s *Store) DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[collection]; err != nil {
		return 0, err
	}
	f := normalizeDoc(filter)
	kept := s.colls[collection][:0:0]
	var n int64
	for _, doc := range s.colls[collection] {
		ok, err := match(doc, f)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
			continue
		}
		kept = append(kept, doc)
	}
	s.colls[collection] = kept
	return n, nil
}

func (s *Store) InsertMany(ctx context.Context, collection string, docs []bson.M) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[collection]; err != nil {
		return err
	}
	existing := s.colls[collection]
	batch := make([]bson.M, 0, len(docs))
	for _, d := range docs {
		doc := normalizeDoc(d)
		if _, ok := doc["_id"]; !ok {
			doc["_id"] = bson.NewObjectID()
		}
		if indexOf(existing, doc["_id"]) >= 0 || indexOf(batch, doc["_id"]) >= 0 {
			return fmt.Errorf("%w: %v in %s", store.ErrDuplicateID, doc["_id"], collection)
		}
		batch = append(batch, doc)
	}
	s.colls[collection] = append(existing, batch...)
	return nil
}

func (s *Store) ReplaceByID(ctx context.Context, collection string, id any, doc bson.M) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[collection]; err != nil {
		return err
	}
	d := normalizeDoc(doc)
	d["_id"] = normalize(id)
	docs := s.colls[collection]
	if i := indexOf(docs, d["_id"]); i >= 0 {
		docs[i] = d
		return nil
	}
	s.colls[collection] = append(docs, d)
	return nil
}

func indexOf(docs []bson.M, id any) int {
	for i, d := range docs {
		if equal(d["_id"], id) {
			return i
		}
	}
	return -1
}
