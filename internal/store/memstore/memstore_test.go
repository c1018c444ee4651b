package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/hanpama/mongoview/internal/store"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	require.NoError(t, s.InsertMany(context.Background(), "orders", []bson.M{
		{"_id": "O1", "n": 3, "items": []bson.M{
			{"_id": "I1", "product": bson.M{"_id": "P1", "name": "pen"}},
			{"_id": "I2", "product": bson.M{"_id": "P2", "name": "ink"}, "tags": []string{"a", "b"}},
		}},
		{"_id": "O2", "n": 1, "customer": bson.M{"_id": "C1", "address": bson.M{"_id": "A1"}}},
		{"_id": "O3", "n": 2, "roleIds": bson.A{"R1", "R2"}},
	}))
	return s
}

func ids(docs []bson.M) []any {
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = d["_id"]
	}
	return out
}

func TestFindFilters(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	for _, tc := range []struct {
		name   string
		filter bson.M
		want   []any
	}{
		{"all", nil, []any{"O1", "O2", "O3"}},
		{"id", bson.M{"_id": "O2"}, []any{"O2"}},
		{"in", bson.M{"_id": bson.M{"$in": []any{"O3", "O1"}}}, []any{"O1", "O3"}},
		{"dotted", bson.M{"customer.address._id": "A1"}, []any{"O2"}},
		{"dotted through array", bson.M{"items._id": "I2"}, []any{"O1"}},
		{"array contains", bson.M{"roleIds": "R2"}, []any{"O3"}},
		{"elemMatch id", bson.M{"items": bson.M{"$elemMatch": bson.M{"_id": "I1"}}}, []any{"O1"}},
		{"elemMatch nested", bson.M{"items": bson.M{"$elemMatch": bson.M{"product._id": "P2"}}}, []any{"O1"}},
		{"elemMatch miss", bson.M{"items": bson.M{"$elemMatch": bson.M{"product._id": "P9"}}}, []any{}},
		{"range", bson.M{"n": bson.M{"$gte": 2, "$lt": 3}}, []any{"O3"}},
		{"exists", bson.M{"customer": bson.M{"$exists": false}}, []any{"O1", "O3"}},
		{"or", bson.M{"$or": bson.A{bson.M{"_id": "O1"}, bson.M{"n": 1}}}, []any{"O1", "O2"}},
		{"nested array elements", bson.M{"items.tags": "b"}, []any{"O1"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			docs, err := s.Find(ctx, "orders", store.Query{Filter: tc.filter})
			require.NoError(t, err)
			require.Equal(t, tc.want, ids(docs))
		})
	}
}

func TestFindSortLimit(t *testing.T) {
	s := seeded(t)
	docs, err := s.Find(context.Background(), "orders", store.Query{Sort: bson.D{{Key: "n", Value: 1}}, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []any{"O2", "O3"}, ids(docs))

	docs, err = s.Find(context.Background(), "orders", store.Query{Sort: bson.D{{Key: "n", Value: -1}}})
	require.NoError(t, err)
	require.Equal(t, []any{"O1", "O3", "O2"}, ids(docs))

	_, err = s.Find(context.Background(), "orders", store.Query{Sort: bson.D{{Key: "n", Value: 2}}})
	require.Error(t, err)

	require.Len(t, s.Finds(), 3)
	s.ResetFinds()
	require.Empty(t, s.Finds())
}

func TestFindTimeRange(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertMany(ctx, "events", []bson.M{
		{"_id": 1, "at": base.Add(-time.Hour)},
		{"_id": 2, "at": base},
		{"_id": 3, "at": base.AddDate(0, 0, 7)},
	}))
	docs, err := s.Find(ctx, "events", store.Query{Filter: bson.M{"at": bson.M{"$gte": base, "$lt": base.AddDate(0, 0, 7)}}})
	require.NoError(t, err)
	require.Equal(t, []any{2}, ids(docs))
}

func TestUnsupportedOperator(t *testing.T) {
	s := seeded(t)
	_, err := s.Find(context.Background(), "orders", store.Query{Filter: bson.M{"n": bson.M{"$regex": "x"}}})
	require.Error(t, err)
	_, err = s.Find(context.Background(), "orders", store.Query{Filter: bson.M{"$where": "x"}})
	require.Error(t, err)
}

func TestWrites(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	err := s.InsertMany(ctx, "orders", []bson.M{{"_id": "O1"}})
	require.ErrorIs(t, err, store.ErrDuplicateID)

	n, err := s.DeleteMany(ctx, "orders", bson.M{"_id": bson.M{"$in": bson.A{"O1", "O2", "O9"}}})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	require.Equal(t, []any{"O3"}, ids(s.Docs("orders")))

	require.NoError(t, s.ReplaceByID(ctx, "orders", "O3", bson.M{"n": 9}))
	require.NoError(t, s.ReplaceByID(ctx, "orders", "O4", bson.M{"_id": "ignored", "n": 4}))
	require.Equal(t, []bson.M{{"_id": "O3", "n": 9}, {"_id": "O4", "n": 4}}, s.Docs("orders"))

	require.NoError(t, s.InsertMany(ctx, "orders", []bson.M{{"n": 5}}))
	docs := s.Docs("orders")
	require.Len(t, docs, 3)
	require.IsType(t, bson.ObjectID{}, docs[2]["_id"])
}

func TestFindReturnsCopies(t *testing.T) {
	s := seeded(t)
	docs, err := s.Find(context.Background(), "orders", store.Query{Filter: bson.M{"_id": "O2"}})
	require.NoError(t, err)
	docs[0]["customer"].(bson.M)["_id"] = "mutated"
	require.Equal(t, "C1", s.Docs("orders")[1]["customer"].(bson.M)["_id"])
}

func TestFailWith(t *testing.T) {
	s := seeded(t)
	boom := errors.New("boom")
	s.FailWith("orders", boom)
	_, err := s.Find(context.Background(), "orders", store.Query{})
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, s.InsertMany(context.Background(), "orders", nil), boom)
	s.FailWith("orders", nil)
	_, err = s.Find(context.Background(), "orders", store.Query{})
	require.NoError(t, err)
}

func TestCanceledContext(t *testing.T) {
	s := seeded(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Find(ctx, "orders", store.Query{})
	require.ErrorIs(t, err, context.Canceled)
}
