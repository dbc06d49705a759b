package location

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// Source is a push-based provider of raw fixes. The returned channel is
// closed when ctx is cancelled or the provider gives up.
type Source interface {
	Subscribe(ctx context.Context) (<-chan RawFix, error)
}

// ChannelSource adapts an in-process channel, e.g. a device driver or a test.
type ChannelSource struct {
	fixes <-chan RawFix
}

func NewChannelSource(fixes <-chan RawFix) *ChannelSource {
	return &ChannelSource{fixes: fixes}
}

func (s *ChannelSource) Subscribe(ctx context.Context) (<-chan RawFix, error) {
	out := make(chan RawFix)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case fix, ok := <-s.fixes:
				if !ok {
					return
				}
				select {
				case out <- fix:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// RedisSource receives JSON encoded fixes from a Redis pub/sub channel fed by
// the device bridge.
type RedisSource struct {
	client  *redis.Client
	channel string
}

func NewRedisSource(client *redis.Client, channel string) *RedisSource {
	return &RedisSource{client: client, channel: channel}
}

func (s *RedisSource) Subscribe(ctx context.Context) (<-chan RawFix, error) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan RawFix, 16)
	go func() {
		defer close(out)
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
				var fix RawFix
				if err := json.Unmarshal([]byte(msg.Payload), &fix); err != nil {
					log.Printf("location: dropping malformed fix on %s: %v", s.channel, err)
					continue
				}
				select {
				case out <- fix:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Publish is the bridge side of RedisSource.
func (s *RedisSource) Publish(ctx context.Context, fix RawFix) error {
	payload, err := json.Marshal(fix)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, payload).Err()
}
