package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/redis/go-redis/v9"
)

// Follower mirrors a Hub running in another process via its Redis relay.
type Follower[T any] struct {
	updates chan T
	cancel  context.CancelFunc
	done    chan struct{}
}

// Follow subscribes to channel, then reads the stored latest value, so no
// value published in between is lost. newer rejects duplicates and values
// that arrive out of order.
func Follow[T any](ctx context.Context, client *redis.Client, channel string, newer func(next, last T) bool) (T, *Follower[T], error) {
	var last T
	ctx, cancel := context.WithCancel(ctx)

	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return last, nil, err
	}

	raw, err := client.Get(ctx, LatestKey(channel)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		cancel()
		_ = pubsub.Close()
		return last, nil, err
	default:
		if err := json.Unmarshal(raw, &last); err != nil {
			cancel()
			_ = pubsub.Close()
			return last, nil, err
		}
	}

	f := &Follower[T]{
		updates: make(chan T, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go f.run(ctx, pubsub, last, newer)
	return last, f, nil
}

func (f *Follower[T]) Updates() <-chan T {
	return f.updates
}

// Close stops following and waits for the reader goroutine. Idempotent.
func (f *Follower[T]) Close() {
	f.cancel()
	<-f.done
}

func (f *Follower[T]) run(ctx context.Context, pubsub *redis.PubSub, last T, newer func(next, last T) bool) {
	defer close(f.done)
	defer close(f.updates)
	defer pubsub.Close()

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var v T
			if err := json.Unmarshal([]byte(msg.Payload), &v); err != nil {
				log.Printf("stream: dropping malformed message on %s: %v", msg.Channel, err)
				continue
			}
			if newer != nil && !newer(v, last) {
				continue
			}
			last = v
			offer(f.updates, v)
		}
	}
}
