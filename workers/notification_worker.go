package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"prompt-guess-game/logger"
	"prompt-guess-game/notify"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultChannel is the Redis pub/sub channel game events are published on.
const DefaultChannel = "game:events"

const publishTimeout = 5 * time.Second

// Publisher delivers an encoded event to subscribers.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects to url (redis://...) and checks the connection.
func NewRedisPublisher(ctx context.Context, url string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return &RedisPublisher{client: client}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// LogPublisher only logs events; used when no Redis is configured.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{log: logger.Component("events")}
}

func (p *LogPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.log.Info().Str("channel", channel).RawJSON("event", payload).Msg("event")
	return nil
}

// NotificationWorker drains the event queue into a Publisher and, when set,
// a Hub serving live streams.
type NotificationWorker struct {
	queue     *notify.Queue
	publisher Publisher
	hub       *notify.Hub
	channel   string
	log       zerolog.Logger
}

func NewNotificationWorker(queue *notify.Queue, publisher Publisher, hub *notify.Hub, channel string) *NotificationWorker {
	if channel == "" {
		channel = DefaultChannel
	}
	return &NotificationWorker{
		queue:     queue,
		publisher: publisher,
		hub:       hub,
		channel:   channel,
		log:       logger.Component("notifications"),
	}
}

// Start blocks until ctx is done or the queue is closed. Publish failures are
// logged and the event is dropped.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.log.Info().Str("channel", w.channel).Msg("📣 notification worker started")
	events := w.queue.Events()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("notification worker stopped")
			return
		case ev, ok := <-events:
			if !ok {
				w.log.Info().Msg("event queue closed, notification worker stopped")
				return
			}
			w.publish(ctx, ev)
		}
	}
}

func (w *NotificationWorker) publish(ctx context.Context, ev notify.Event) {
	if w.hub != nil {
		w.hub.Broadcast(ev)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		w.log.Error().Err(err).Str("type", string(ev.Type)).Msg("failed to encode event")
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := w.publisher.Publish(pubCtx, w.channel, payload); err != nil {
		w.log.Warn().Err(err).Str("type", string(ev.Type)).Str("round_id", ev.RoundID).Msg("❌ failed to publish event")
	}
}
