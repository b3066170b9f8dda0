package notify

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Publisher sends a payload to every subscribing process. Publish is
// fire-and-forget: there is no per-consumer acknowledgment and no redelivery.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Subscriber attaches to the broadcast channel. The returned channel closes
// when the subscription ends (context cancellation or connection loss);
// callers that need resilience wrap Subscribe in a retry loop.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan []byte, error)
}

// Bus is both sides of the broadcast channel.
type Bus interface {
	Publisher
	Subscriber
}

// RedisBus broadcasts over one Redis pub/sub channel shared by all
// processes.
type RedisBus struct {
	rdb     *redis.Client
	channel string
}

// NewRedisBus wraps an existing client; channel names the pub/sub channel
// every peer process must share.
func NewRedisBus(rdb *redis.Client, channel string) *RedisBus {
	return &RedisBus{rdb: rdb, channel: channel}
}

func (b *RedisBus) Publish(ctx context.Context, payload []byte) error {
	return b.rdb.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context) (<-chan []byte, error) {
	ps := b.rdb.Subscribe(ctx, b.channel)
	// Force the subscription onto the wire before reporting success, so the
	// caller's retry loop sees connection failures here rather than as a
	// silently idle channel.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan []byte, 32)
	go func() {
		defer close(out)
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				out <- []byte(msg.Payload)
			}
		}
	}()
	return out, nil
}

// MemoryBus is an in-process Bus with the same fan-out semantics, used in
// tests and single-node runs. Slow subscribers lose messages rather than
// blocking the publisher, mirroring pub/sub.
type MemoryBus struct {
	mu   sync.Mutex
	subs []chan []byte

	// Published retains every payload for test assertions.
	Published [][]byte
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) Publish(_ context.Context, payload []byte) error {
	stored := make([]byte, len(payload))
	copy(stored, payload)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.Published = append(b.Published, stored)
	for _, sub := range b.subs {
		select {
		case sub <- stored:
		default:
			// Subscriber is not keeping up; drop, as pub/sub would.
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context) (<-chan []byte, error) {
	sub := make(chan []byte, 32)

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	out := make(chan []byte, 32)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				b.remove(sub)
				return
			case p, ok := <-sub:
				if !ok {
					return
				}
				out <- p
			}
		}
	}()
	return out, nil
}

func (b *MemoryBus) remove(sub chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}
