package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/kendall-kelly/portfolio-chat-api/logging"
	"github.com/redis/go-redis/v9"
)

// DefaultRelayChannel is the pub/sub channel shared by every API instance
const DefaultRelayChannel = "portfolio-chat:rooms"

// DeliverFunc hands a frame published by another instance to the local rooms
type DeliverFunc func(conversationID, event string, data json.RawMessage)

// Relay carries room broadcasts between API instances. Each instance
// delivers to its own sockets directly and publishes for the others.
type Relay interface {
	Publish(ctx context.Context, conversationID, event string, payload any) error
	Start(ctx context.Context, deliver DeliverFunc) error
}

type relayFrame struct {
	Origin         string          `json:"origin"`
	ConversationID string          `json:"conversationId"`
	Event          string          `json:"event"`
	Data           json.RawMessage `json:"data"`
}

// RedisRelay fans room broadcasts out over Redis pub/sub
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	origin  string
	log     *slog.Logger

	wg sync.WaitGroup
}

var _ Relay = (*RedisRelay)(nil)

// NewRedisRelay creates a relay on channel, or DefaultRelayChannel when empty
func NewRedisRelay(rdb *redis.Client, channel string, log *slog.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if log == nil {
		log = slog.Default()
	}
	origin := uuid.NewString()
	return &RedisRelay{
		rdb:     rdb,
		channel: channel,
		origin:  origin,
		log:     log.With(slog.String("relay_origin", origin)),
	}
}

// Publish sends the broadcast to every other instance
func (r *RedisRelay) Publish(ctx context.Context, conversationID, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	frame, err := json.Marshal(relayFrame{
		Origin:         r.origin,
		ConversationID: conversationID,
		Event:          event,
		Data:           data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode relay frame: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, frame).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event, err)
	}
	return nil
}

// Start subscribes to the channel and returns once the subscription is
// live. Frames from other instances are delivered until ctx is done.
func (r *RedisRelay) Start(ctx context.Context, deliver DeliverFunc) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	r.log.Info("relay subscribed", slog.String("channel", r.channel))
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := sub.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
				r.log.Warn("failed to close relay subscription", logging.Err(err))
			}
		}()
		r.consume(ctx, sub.Channel(), deliver)
	}()
	return nil
}

// Wait blocks until the subscription goroutine has exited
func (r *RedisRelay) Wait() {
	r.wg.Wait()
}

func (r *RedisRelay) consume(ctx context.Context, messages <-chan *redis.Message, deliver DeliverFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			frame, ok := r.decode(msg.Payload)
			if !ok {
				continue
			}
			deliver(frame.ConversationID, frame.Event, frame.Data)
		}
	}
}

// decode parses a relay frame and drops the instance's own publications
func (r *RedisRelay) decode(payload string) (relayFrame, bool) {
	var frame relayFrame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		r.log.Warn("dropping malformed relay frame", logging.Err(err))
		return frame, false
	}
	if frame.Origin == r.origin {
		return frame, false
	}
	if frame.ConversationID == "" || frame.Event == "" {
		r.log.Warn("dropping incomplete relay frame", logging.Event(frame.Event))
		return frame, false
	}
	return frame, true
}
