package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes JSON notifications on a per-user channel.
// The chat frontend subscribes to Channel(userID) for each connected user.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func Channel(userID uint64) string {
	return fmt.Sprintf("notify:user:%d", userID)
}

func (r *RedisNotifier) Notify(ctx context.Context, userID uint64, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return r.client.Publish(ctx, Channel(userID), payload).Err()
}

// Subscribe streams decoded notifications for userID until ctx is done.
func (r *RedisNotifier) Subscribe(ctx context.Context, userID uint64) (<-chan Notification, error) {
	sub := r.client.Subscribe(ctx, Channel(userID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan Notification)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var n Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					continue
				}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
