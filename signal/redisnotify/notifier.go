// Package redisnotify carries kill signals over Redis Pub/Sub. It pairs
// with any store: the store keeps the durable signal record, the Notifier
// pushes it to the addressed worker without waiting for the next poll.
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	n := redisnotify.New(client)
//	channel := signal.NewChannel(jobs, signals, tokens, self, logger, signal.WithPublisher(n))
//	listener := signal.NewListener(signals, channel, self, logger, signal.WithSubscriber(n))
package redisnotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/signal"
)

// Compile-time interface checks.
var (
	_ signal.Publisher  = (*Notifier)(nil)
	_ signal.Subscriber = (*Notifier)(nil)
)

const defaultPrefix = "cadence:"

// Option configures the Notifier.
type Option func(*Notifier)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// WithPrefix sets the prefix of the Pub/Sub channel names.
func WithPrefix(prefix string) Option {
	return func(n *Notifier) { n.prefix = prefix }
}

// Notifier publishes signals on a per-worker channel and subscribes to the
// channel of the local worker.
type Notifier struct {
	client goredis.UniversalClient
	prefix string
	logger *slog.Logger
}

// New creates a Notifier. The caller owns the Redis client lifecycle.
func New(client goredis.UniversalClient, opts ...Option) *Notifier {
	n := &Notifier{client: client, prefix: defaultPrefix, logger: slog.Default()}
	for _, o := range opts {
		o(n)
	}
	return n
}

// channelKey returns the Pub/Sub channel of a worker: cadence:signals:{id}
func (n *Notifier) channelKey(workerID id.WorkerID) string {
	return n.prefix + "signals:" + workerID.String()
}

// PublishSignal announces sig on the channel of its addressee.
func (n *Notifier) PublishSignal(ctx context.Context, sig *signal.Signal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("cadence/redisnotify: encode signal: %w", err)
	}
	if err := n.client.Publish(ctx, n.channelKey(sig.WorkerID), payload).Err(); err != nil {
		return fmt.Errorf("cadence/redisnotify: publish: %w", err)
	}
	return nil
}

// SubscriptionSupported reports whether Redis answers.
func (n *Notifier) SubscriptionSupported(ctx context.Context) (bool, error) {
	if err := n.client.Ping(ctx).Err(); err != nil {
		return false, fmt.Errorf("cadence/redisnotify: ping: %w", err)
	}
	return true, nil
}

// SubscribeSignals delivers the signals published for workerID until ctx
// is done or the subscription drops.
func (n *Notifier) SubscribeSignals(ctx context.Context, workerID id.WorkerID, ready func(), handle signal.Handler) error {
	sub := n.client.Subscribe(ctx, n.channelKey(workerID))
	defer sub.Close()

	// Wait for the subscription confirmation before reporting ready.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("cadence/redisnotify: subscribe: %w", err)
	}
	if ready != nil {
		ready()
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return errors.New("cadence/redisnotify: subscription closed")
			}
			var sig signal.Signal
			if err := json.Unmarshal([]byte(msg.Payload), &sig); err != nil {
				n.logger.Warn("malformed signal message",
					slog.String("channel", msg.Channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			if sig.WorkerID != workerID {
				continue
			}
			handle(ctx, &sig)
		}
	}
}
