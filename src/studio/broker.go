package studio

import (
	"context"
	"sync"
	"sync/atomic"
)

type EventType string

const EventAssetsChanged EventType = "assets_changed"

// Event is one broker delivery.
type Event[T any] struct {
	Type    EventType
	Payload T
}

// AssetChange is the payload of EventAssetsChanged. Asset is nil when the
// asset was deleted.
type AssetChange struct {
	AssetID string
	Asset   *Asset
	Deleted bool
}

// Broker fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Broker[T any] struct {
	mu      sync.Mutex
	subs    map[chan Event[T]]struct{}
	buffer  int
	dropped atomic.Uint64
}

func NewBroker[T any](buffer int) *Broker[T] {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broker[T]{subs: make(map[chan Event[T]]struct{}), buffer: buffer}
}

// Subscribe returns a channel that receives events until ctx is done, at
// which point it is closed.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	ch := make(chan Event[T], b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch
}

func (b *Broker[T]) Publish(typ EventType, payload T) {
	ev := Event[T]{Type: typ, Payload: payload}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers is the number of live subscriptions.
func (b *Broker[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped counts deliveries skipped because a subscriber was full.
func (b *Broker[T]) Dropped() uint64 {
	return b.dropped.Load()
}
