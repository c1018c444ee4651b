package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/hanpama/mongoview/internal/eventbus"
	"github.com/hanpama/mongoview/internal/events"
	"github.com/hanpama/mongoview/internal/store"
	"github.com/hanpama/mongoview/internal/store/memstore"
)

func TestWrapID(t *testing.T) {
	hex := "65a1f0c2e4b0a1b2c3d4e5f6"
	oid, err := bson.ObjectIDFromHex(hex)
	require.NoError(t, err)

	require.Equal(t, oid, store.WrapID(hex))
	require.Equal(t, oid, store.WrapID(oid))
	require.Equal(t, "P1", store.WrapID("P1"))
	require.Equal(t, "zzzzzzzzzzzzzzzzzzzzzzzz", store.WrapID("zzzzzzzzzzzzzzzzzzzzzzzz"))
	require.Equal(t, 42, store.WrapID(42))
}

func TestObservePublishesQueryEvents(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	var mu sync.Mutex
	var starts []events.QueryStart
	var finishes []events.QueryFinish
	defer eventbus.Subscribe(func(_ context.Context, e events.QueryStart) {
		mu.Lock()
		defer mu.Unlock()
		starts = append(starts, e)
	})()
	defer eventbus.Subscribe(func(_ context.Context, e events.QueryFinish) {
		mu.Lock()
		defer mu.Unlock()
		finishes = append(finishes, e)
	})()

	mem := memstore.New()
	s := store.Observe(mem)
	require.Same(t, s, store.Observe(s))
	ctx := context.Background()

	require.NoError(t, s.InsertMany(ctx, "orders", []bson.M{{"_id": 1}, {"_id": 2}}))
	docs, err := s.Find(ctx, "orders", store.Query{})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.NoError(t, s.ReplaceByID(ctx, "orders", 1, bson.M{"x": 1}))
	n, err := s.DeleteMany(ctx, "orders", bson.M{})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	boom := errors.New("boom")
	mem.FailWith("orders", boom)
	_, err = store.ObserveReader(mem).Find(ctx, "orders", store.Query{})
	require.ErrorIs(t, err, boom)

	require.Len(t, starts, 5)
	require.Len(t, finishes, 5)
	ops := []string{events.OpInsertMany, events.OpFind, events.OpReplaceByID, events.OpDeleteMany, events.OpFind}
	counts := []int{2, 2, 1, 2, 0}
	for i, f := range finishes {
		require.Equal(t, starts[i].ID, f.ID)
		require.Equal(t, ops[i], f.Op)
		require.Equal(t, "orders", f.Collection)
		require.Equal(t, counts[i], f.Count)
	}
	require.ErrorIs(t, finishes[4].Err, boom)
}
