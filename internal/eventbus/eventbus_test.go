package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ n int }
type pong struct{}

func TestPublishDispatchesByType(t *testing.T) {
	Use(New())
	t.Cleanup(func() { Use(nil) })

	var a, b []int
	unsubA := Subscribe(func(_ context.Context, e ping) { a = append(a, e.n) })
	unsubB := Subscribe(func(_ context.Context, e ping) { b = append(b, e.n) })
	pongs := 0
	defer Subscribe(func(context.Context, pong) { pongs++ })()

	Publish(context.Background(), ping{1})
	Publish(context.Background(), pong{})

	unsubA()
	unsubA()
	Publish(context.Background(), ping{2})
	unsubB()
	Publish(context.Background(), ping{3})

	require.Equal(t, []int{1}, a)
	require.Equal(t, []int{1, 2}, b)
	require.Equal(t, 1, pongs)
}

func TestNoBus(t *testing.T) {
	Use(nil)
	called := false
	unsub := Subscribe(func(context.Context, ping) { called = true })
	Publish(context.Background(), ping{})
	unsub()
	require.False(t, called)

	var nilBus *Bus
	nilBus.emit(context.Background(), ping{})
}
