package studio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerFansOut(t *testing.T) {
	b := NewBroker[string](4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	one, two := b.Subscribe(ctx), b.Subscribe(ctx)

	b.Publish(EventAssetsChanged, "a1")
	for _, ch := range []<-chan Event[string]{one, two} {
		ev := <-ch
		assert.Equal(t, EventAssetsChanged, ev.Type)
		assert.Equal(t, "a1", ev.Payload)
	}
}

func TestBrokerPublishNeverBlocks(t *testing.T) {
	b := NewBroker[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := b.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			b.Publish(EventAssetsChanged, i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.EqualValues(t, 2, b.Dropped())
	assert.Equal(t, 0, (<-ch).Payload)
}

func TestBrokerUnsubscribesOnCancel(t *testing.T) {
	b := NewBroker[int](0)
	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx)
	require.Equal(t, 1, b.Subscribers())

	cancel()
	require.Eventually(t, func() bool { return b.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-ch
	assert.False(t, open)

	b.Publish(EventAssetsChanged, 1)
	assert.Zero(t, b.Dropped())
}
