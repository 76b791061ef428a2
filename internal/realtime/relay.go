package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

const relayChannel = "farm-market:push"

type relayMessage struct {
	UID   string          `json:"uid"`
	Frame json.RawMessage `json:"frame"`
}

// RedisRelay fans pushes out through redis pub/sub so a user connected to any
// instance receives them.
type RedisRelay struct {
	client  *redis.Client
	hub     *Hub
	channel string
	logger  *slog.Logger
	// subscribed is set while Run holds a live subscription for this instance.
	subscribed atomic.Bool
}

func NewRedisRelay(client *redis.Client, hub *Hub, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{client: client, hub: hub, channel: relayChannel, logger: logger}
}

// PushTo publishes the frame for every instance. While this instance has no
// live subscription, or when redis is unreachable, the frame is also delivered
// to local connections directly.
func (r *RedisRelay) PushTo(uid string, v any) {
	frame, err := EncodeFrame("notification", v)
	if err != nil {
		r.logger.Error("encode push frame failed", "user_uid", uid, "err", err)
		return
	}
	msg, err := json.Marshal(relayMessage{UID: uid, Frame: frame})
	if err != nil {
		r.logger.Error("encode relay message failed", "user_uid", uid, "err", err)
		return
	}
	if err := r.client.Publish(context.Background(), r.channel, msg).Err(); err != nil {
		r.logger.Warn("redis publish failed, delivering locally", "user_uid", uid, "err", err)
		r.hub.Deliver(uid, frame)
		return
	}
	if !r.subscribed.Load() {
		r.logger.Debug("relay not subscribed, delivering locally", "user_uid", uid)
		r.hub.Deliver(uid, frame)
	}
}

// Subscribed reports whether Run currently holds a subscription.
func (r *RedisRelay) Subscribed() bool {
	return r.subscribed.Load()
}

// Run delivers relayed frames to the local hub until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.subscribed.Store(true)
	defer r.subscribed.Store(false)
	r.logger.Info("redis relay subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg relayMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				r.logger.Warn("bad relay message", "err", err)
				continue
			}
			r.hub.Deliver(msg.UID, msg.Frame)
		}
	}
}
