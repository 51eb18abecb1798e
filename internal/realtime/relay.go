package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/events"
)

const (
	relayPublishTimeout = 2 * time.Second
	relayOutboxSize     = 256
)

// ErrRelayClosed is returned by Run when Redis drops the subscription.
var ErrRelayClosed = errors.New("relay subscription closed")

type relayMessage struct {
	Origin string          `json:"origin"`
	Rooms  []events.Room   `json:"rooms"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisRelay mirrors publishes across instances over a Redis channel. Local subscribers are
// served directly; the copy that comes back from Redis is recognised by origin and skipped.
type RedisRelay struct {
	hub     *Hub
	client  *redis.Client
	channel string
	origin  string
	logger  *zap.Logger
	outbox  chan relayMessage
}

// NewRedisRelay builds a relay in front of hub.
func NewRedisRelay(hub *Hub, client *redis.Client, channel string, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{
		hub:     hub,
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger.With(zap.String("component", "relay")),
		outbox:  make(chan relayMessage, relayOutboxSize),
	}
}

// Publish implements events.Publisher.
func (r *RedisRelay) Publish(rooms []events.Room, name events.EventName, payload any) {
	frame, err := events.Encode(name, payload)
	if err != nil {
		r.logger.Error("encode event", zap.String("event", string(name)), zap.Error(err))
		return
	}
	r.hub.metrics.EventPublished(string(name))
	r.hub.Deliver(rooms, frame)

	select {
	case r.outbox <- relayMessage{Origin: r.origin, Rooms: rooms, Frame: frame}:
	default:
		r.hub.metrics.DeliveryDropped("relay")
		r.logger.Warn("relay outbox full, dropping remote copy", zap.String("event", string(name)))
	}
}

// Forward drains queued publishes to Redis one at a time until ctx is cancelled. Run it beside
// Run; while it lags, Publish drops remote copies instead of queueing without bound.
func (r *RedisRelay) Forward(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-r.outbox:
			r.forward(ctx, msg)
		}
	}
}

func (r *RedisRelay) forward(ctx context.Context, msg relayMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, relayPublishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.hub.metrics.DeliveryDropped("relay")
		r.logger.Warn("relay publish failed", zap.Error(err))
	}
}

// Run delivers remote publishes to local subscribers until ctx is cancelled or the
// subscription breaks.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info("relay subscribed", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return ErrRelayClosed
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *RedisRelay) handle(payload string) int {
	var msg relayMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		r.logger.Warn("malformed relay message", zap.Error(err))
		return 0
	}
	if msg.Origin == r.origin {
		return 0
	}
	return r.hub.Deliver(msg.Rooms, msg.Frame)
}
