package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/pulsechat/pulse/api/metrics"
)

// RedisBus fans out over Redis pub/sub. Each instance holds two broker
// connections: pub carries every Publish, sub owns a single PubSub whose
// topic set tracks the local registry.
type RedisBus struct {
	pub     *redis.Client
	sub     *redis.Client
	pubsub  *redis.PubSub
	handler Handler

	loopCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRedis connects both broker clients. The receive loop does not run until
// Start binds a handler, so the consumer can be constructed after the bus.
func NewRedis(ctx context.Context, url string) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	pub := redis.NewClient(opts)
	if err := pub.Ping(ctx).Err(); err != nil {
		pub.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	sub := redis.NewClient(opts)

	// An empty subscribe opens the connection; topics are added later as
	// local sessions show interest.
	pubsub := sub.Subscribe(ctx)

	loopCtx, cancel := context.WithCancel(context.Background())
	return &RedisBus{pub: pub, sub: sub, pubsub: pubsub, loopCtx: loopCtx, cancel: cancel}, nil
}

// Start binds the delivery handler and begins the receive loop. It must be
// called once, before the first Subscribe. handler runs on the receive
// goroutine; it must hand frames off to the per-session send queues rather
// than write sockets inline.
func (b *RedisBus) Start(handler Handler) {
	b.handler = handler
	b.wg.Add(1)
	go b.receive(b.loopCtx)
}

func (b *RedisBus) receive(ctx context.Context) {
	defer b.wg.Done()
	ch := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			metrics.BusReceived.Inc()
			b.handler(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.pub.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("bus publish %s: %w", topic, err)
	}
	metrics.BusPublished.Inc()
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	if err := b.pubsub.Subscribe(ctx, topics...); err != nil {
		return fmt.Errorf("bus subscribe: %w", err)
	}
	return nil
}

func (b *RedisBus) Unsubscribe(ctx context.Context, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	if err := b.pubsub.Unsubscribe(ctx, topics...); err != nil {
		return fmt.Errorf("bus unsubscribe: %w", err)
	}
	return nil
}

// Close drains the receive loop and both broker connections.
func (b *RedisBus) Close() error {
	b.cancel()
	if err := b.pubsub.Close(); err != nil {
		slog.Warn("bus: pubsub close error", "error", err)
	}
	b.wg.Wait()
	if err := b.sub.Close(); err != nil {
		slog.Warn("bus: subscriber close error", "error", err)
	}
	return b.pub.Close()
}
