package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ N int }
type pong struct{ S string }

func TestPublishDispatchesByType(t *testing.T) {
	Use(New())
	defer Use(nil)

	var pings []int
	var pongs []string
	unsub := Subscribe(func(_ context.Context, e ping) { pings = append(pings, e.N) })
	Subscribe(func(_ context.Context, e pong) { pongs = append(pongs, e.S) })

	Publish(context.Background(), ping{N: 1})
	Publish(context.Background(), pong{S: "a"})
	unsub()
	Publish(context.Background(), ping{N: 2})

	require.Equal(t, []int{1}, pings)
	require.Equal(t, []string{"a"}, pongs)
}

func TestUnsubscribeRemovesOnlyOwnHandler(t *testing.T) {
	Use(New())
	defer Use(nil)

	var got []string
	h := func(tag string) Handler[ping] {
		return func(_ context.Context, _ ping) { got = append(got, tag) }
	}
	unsubA := Subscribe(h("a"))
	Subscribe(h("b"))
	unsubA()
	Publish(context.Background(), ping{})

	require.Equal(t, []string{"b"}, got)
}

func TestPublishWithoutBus(t *testing.T) {
	Use(nil)
	unsub := Subscribe(func(context.Context, ping) { t.Fatal("handler called without bus") })
	Publish(context.Background(), ping{})
	unsub()
}
