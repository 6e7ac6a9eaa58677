package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix    = "edumirror:session:"
	publishTimeout   = 5 * time.Second
	subscribeTimeout = 5 * time.Second
)

// relayPayload is the message published to Redis for cross-instance delivery.
type relayPayload struct {
	Data json.RawMessage `json:"data"`
	At   int64           `json:"at"`
}

// RedisRelay implements Relay using Redis pub/sub, one channel per session.
type RedisRelay struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisRelay creates a Redis pub/sub bridge for session messages.
func NewRedisRelay(client *redis.Client, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{client: client, logger: logger}
}

// Channel returns the Redis channel name for sessionID.
func Channel(sessionID string) string {
	return channelPrefix + sessionID
}

// Publish sends payload to every instance subscribed to sessionID.
func (r *RedisRelay) Publish(ctx context.Context, sessionID string, payload []byte) error {
	body, err := json.Marshal(relayPayload{Data: payload, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, Channel(sessionID), body).Err()
}

// Subscribe listens on the session channel and calls handler for each message.
// The returned cancel stops the subscription.
func (r *RedisRelay) Subscribe(sessionID string, handler func(payload []byte)) (func(), error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, Channel(sessionID))
	confirmCtx, cancelConfirm := context.WithTimeout(ctx, subscribeTimeout)
	_, err := pubsub.Receive(confirmCtx)
	cancelConfirm()
	if err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p relayPayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					r.logger.Warn("invalid relay payload", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				handler(p.Data)
			}
		}
	}()
	return cancelCtx, nil
}
