package stream

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Hub fans a stream of values out to any number of subscribers. It always
// retains the latest value: a new subscriber gets it immediately, and each
// subscriber's mailbox holds one pending value that newer values replace, so
// publishing never blocks on a slow reader.
//
// With a Redis client the hub also mirrors every value (JSON encoded) to
// <channel> and stores it under <channel>:latest for out-of-process readers.
type Hub[T any] struct {
	mu      sync.Mutex
	latest  T
	clients map[*Client[T]]struct{}
	closed  bool

	redis   *redis.Client
	channel string
	relay   chan []byte
	stop    chan struct{}
	stopped chan struct{}
}

type Client[T any] struct {
	hub  *Hub[T]
	send chan T
	once sync.Once
}

func NewHub[T any](initial T, redisClient *redis.Client, channel string) *Hub[T] {
	h := &Hub[T]{
		latest:  initial,
		clients: map[*Client[T]]struct{}{},
		redis:   redisClient,
		channel: channel,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	if redisClient != nil {
		h.relay = make(chan []byte, 1)
		go h.publishRedis()
	} else {
		close(h.stopped)
	}
	return h
}

// Subscribe registers a client and returns the value current at that moment.
// On a closed hub the returned client's channel is already closed.
func (h *Hub[T]) Subscribe() (T, *Client[T]) {
	client := &Client[T]{hub: h, send: make(chan T, 1)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(client.send)
		return h.latest, client
	}
	h.clients[client] = struct{}{}
	return h.latest, client
}

// Publish replaces the latest value and offers it to every subscriber. The
// Redis payload is encoded before the hub lock is taken, so large values do
// not hold up subscribers or readers of Latest.
func (h *Hub[T]) Publish(v T) {
	var payload []byte
	if h.relay != nil {
		var err error
		if payload, err = json.Marshal(v); err != nil {
			log.Printf("stream: encode for redis: %v", err)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.latest = v

	for client := range h.clients {
		offer(client.send, v)
	}
	if payload != nil {
		offer(h.relay, payload)
	}
}

func (h *Hub[T]) Latest() T {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close detaches every client and stops the Redis relay after it flushed the
// pending value.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		<-h.stopped
		return
	}
	h.closed = true
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()

	if h.relay != nil {
		close(h.stop)
	}
	<-h.stopped
}

func (h *Hub[T]) unregister(client *Client[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// Updates yields values published after Subscribe, oldest first. It is
// closed by Close or when the hub shuts down.
func (c *Client[T]) Updates() <-chan T {
	return c.send
}

// Close is idempotent.
func (c *Client[T]) Close() {
	c.once.Do(func() { c.hub.unregister(c) })
}

func (h *Hub[T]) publishRedis() {
	defer close(h.stopped)
	for {
		select {
		case payload := <-h.relay:
			h.writeRedis(payload)
		case <-h.stop:
			select {
			case payload := <-h.relay:
				h.writeRedis(payload)
			default:
			}
			return
		}
	}
}

func (h *Hub[T]) writeRedis(payload []byte) {
	ctx := context.Background()
	_, err := h.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, LatestKey(h.channel), payload, 0)
		pipe.Publish(ctx, h.channel, payload)
		return nil
	})
	if err != nil {
		log.Printf("redis publish error: %v", err)
	}
}

func LatestKey(channel string) string {
	return channel + ":latest"
}

// offer puts v into a one-slot mailbox, replacing a value nobody read yet.
// Callers serialize offers to the same mailbox.
func offer[V any](ch chan V, v V) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
