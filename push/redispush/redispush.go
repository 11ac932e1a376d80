// Package redispush implements the push channel over Redis pub/sub.
//
// The backend publishes one JSON document per progress update to the channel
// task:{taskID}. Malformed payloads are logged and dropped; a bad event must
// not tear down the subscription.
package redispush

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/filegeek/filegeek-go/log"
	"github.com/filegeek/filegeek-go/metrics"
	"github.com/filegeek/filegeek-go/push"
	"github.com/filegeek/filegeek-go/types"
)

// DefaultChannelPrefix is the pub/sub channel prefix for task events.
const DefaultChannelPrefix = "task:"

// DefaultSubscribeTimeout bounds the initial subscription handshake.
const DefaultSubscribeTimeout = 3 * time.Second

// eventBuffer is the per-subscription channel capacity. Progress events are
// small and sparse; the buffer only absorbs a slow consumer between polls.
const eventBuffer = 16

// Config configures the Redis push subscriber.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// ChannelPrefix is prepended to the task ID to form the channel name
	// (default: task:).
	ChannelPrefix string
	// SubscribeTimeout bounds the subscription handshake (default 3s).
	SubscribeTimeout time.Duration
	// Logger receives dropped-payload diagnostics. Defaults to no-op.
	Logger *log.Logger
	// Collector counts delivered push events. Nil is allowed.
	Collector *metrics.Collector
}

// Subscriber delivers task events via Redis SUBSCRIBE.
type Subscriber struct {
	config Config
	client *goredis.Client
}

// New creates a Redis push subscriber from the given config.
// Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Subscriber, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis push requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis push: invalid URL: %w", err)
	}

	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = DefaultChannelPrefix
	}
	if cfg.SubscribeTimeout <= 0 {
		cfg.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}

	return &Subscriber{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Subscribe opens the per-task event stream on channel {prefix}{taskID}.
// The subscription handshake is confirmed before returning so that a dead
// Redis surfaces as an immediate error instead of a silent channel.
func (s *Subscriber) Subscribe(ctx context.Context, taskID string) (<-chan types.TaskEvent, func(), error) {
	if taskID == "" {
		return nil, nil, errors.New("redis push: empty task ID")
	}

	channel := s.config.ChannelPrefix + taskID
	pubsub := s.client.Subscribe(ctx, channel)

	// Receive forces the SUBSCRIBE round-trip. Without it a connection
	// failure would only show up as a channel that never delivers.
	receiveCtx, cancel := context.WithTimeout(ctx, s.config.SubscribeTimeout)
	_, err := pubsub.Receive(receiveCtx)
	cancel()
	if err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("redis push: subscribe %s: %w", channel, err)
	}

	events := make(chan types.TaskEvent, eventBuffer)
	go s.pump(ctx, channel, pubsub, events)

	stop := func() { _ = pubsub.Close() }
	return events, stop, nil
}

// pump decodes pub/sub messages into task events until the subscription
// closes. Closing the pubsub ends the message channel, which ends the pump.
func (s *Subscriber) pump(ctx context.Context, channel string, pubsub *goredis.PubSub, events chan<- types.TaskEvent) {
	defer close(events)

	for msg := range pubsub.Channel() {
		var ev types.TaskEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			s.config.Logger.Warn("dropping malformed push event", map[string]any{
				"channel": channel,
				"error":   err.Error(),
			})
			continue
		}

		s.config.Collector.IncPushEvents()

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// Close releases the Redis connection. In-flight subscriptions end with a
// closed event channel.
func (s *Subscriber) Close() error {
	return s.client.Close()
}

// Verify Subscriber implements the push interface.
var _ push.Subscriber = (*Subscriber)(nil)
