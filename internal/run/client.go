package run

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/jakubwesta/mobile-orienteering-sub001/internal/stream"
)

// Client observes an Engine from the same process. Attaching and detaching
// never affects the engine; Start and Stop are plain pass-throughs.
type Client struct {
	engine *Engine

	mu  sync.Mutex
	sub *stream.Client[State]
}

func (e *Engine) NewClient() *Client {
	return &Client{engine: e}
}

// Attach returns the current snapshot and a channel of later snapshots.
// Attaching again replaces (and closes) the previous channel.
func (c *Client) Attach() (State, <-chan State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		c.sub.Close()
	}
	initial, sub := c.engine.hub.Subscribe()
	c.sub = sub
	return initial, sub.Updates()
}

func (c *Client) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		c.sub.Close()
		c.sub = nil
	}
}

func (c *Client) Start(ctx context.Context, course Course) (State, error) {
	return c.engine.Start(ctx, course)
}

func (c *Client) Stop(ctx context.Context) (State, error) {
	return c.engine.Stop(ctx)
}

func (c *Client) IsActive() bool {
	return c.engine.IsActive()
}

// RemoteClient observes an engine running in another process through the
// Redis mirror enabled by WithRedis.
type RemoteClient struct {
	redis   *redis.Client
	channel string

	mu       sync.Mutex
	follower *stream.Follower[State]
}

func NewRemoteClient(client *redis.Client, channel string) *RemoteClient {
	return &RemoteClient{redis: client, channel: channel}
}

func (c *RemoteClient) Attach(ctx context.Context) (State, <-chan State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.follower != nil {
		c.follower.Close()
		c.follower = nil
	}

	initial, follower, err := stream.Follow(ctx, c.redis, c.channel, newer)
	if err != nil {
		return State{}, nil, err
	}
	c.follower = follower
	return initial, follower.Updates(), nil
}

func (c *RemoteClient) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.follower != nil {
		c.follower.Close()
		c.follower = nil
	}
}

// IsActive reads the mirrored snapshot, for reconnecting after a restart.
func (c *RemoteClient) IsActive(ctx context.Context) (bool, error) {
	raw, err := c.redis.Get(ctx, stream.LatestKey(c.channel)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return false, err
	}
	return st.Active(), nil
}
