// ABOUTME: Redis pub/sub relay keeping multiple server processes in sync
// ABOUTME: Publishes event envelopes to a namespaced channel and streams received ones

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/2389/corkboard/internal/protocol"
)

// Client publishes and subscribes event envelopes on a shared Redis
// channel. All channels are namespaced so multiple deployments can share
// one Redis. The client is safe for concurrent use; reconnecting after a
// Redis outage is go-redis's responsibility.
type Client struct {
	rdb       *redis.Client
	namespace string
}

// NewClient creates a relay client. The namespace must not be empty; it
// isolates this deployment's traffic from others on the same Redis.
func NewClient(redisOpts *redis.Options, namespace string) (*Client, error) {
	if namespace == "" {
		return nil, fmt.Errorf("relay namespace cannot be empty")
	}
	return &Client{
		rdb:       redis.NewClient(redisOpts),
		namespace: namespace,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Channel returns the pub/sub channel name for this namespace.
func (c *Client) Channel() string {
	return "corkboard:" + c.namespace + ":events"
}

// Publish sends an envelope to every subscribed process, including this
// one (subscribers filter their own origin). Delivery is at-least-once to
// locally connected subscribers and best-effort overall; dropped events
// are acceptable on the preview stream and peers converge on the next
// commit they do receive.
func (c *Client) Publish(ctx context.Context, env *protocol.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}
	if err := c.rdb.Publish(ctx, c.Channel(), payload).Err(); err != nil {
		return fmt.Errorf("publishing envelope: %w", err)
	}
	return nil
}

// Subscription is an active subscription to the relay channel. Callers
// must Close it when done. Envelopes arrive on Events(); unmarshal
// failures surface on Errors() and the subscription keeps going.
type Subscription struct {
	events <-chan *protocol.Envelope
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of received envelopes. Closed when the
// subscription is closed or its context is cancelled.
func (s *Subscription) Events() <-chan *protocol.Envelope {
	return s.events
}

// Errors returns the channel of non-fatal subscription errors.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Implements io.Closer; safe to call more
// than once.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe starts listening for envelopes published by any process in
// this namespace. Events are delivered on a buffered channel; Redis
// pub/sub gives at-most-once delivery to slow subscribers, which the
// protocol tolerates.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, c.Channel())

	// Force the SUBSCRIBE round trip so a dead Redis fails here rather
	// than silently delivering nothing.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribing to relay channel: %w", err)
	}

	eventsChan := make(chan *protocol.Envelope, 16)
	errorsChan := make(chan error, 16)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var env protocol.Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					select {
					case errorsChan <- fmt.Errorf("unmarshaling envelope: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &env:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
