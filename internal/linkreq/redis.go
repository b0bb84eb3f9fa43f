package linkreq

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "link_requests:"

// RedisNotifier fans out link-request changes over redis pub/sub so watchers
// on other processes (kiosk vs registration page backend) see them too.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier creates a redis-backed notifier.
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Publish broadcasts the request on its token channel.
func (n *RedisNotifier) Publish(ctx context.Context, req Request) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, channelPrefix+req.Token, raw).Err()
}

// Subscribe watches the token channel until stop is called or ctx ends.
func (n *RedisNotifier) Subscribe(ctx context.Context, token string) (<-chan Request, func(), error) {
	sub := n.client.Subscribe(ctx, channelPrefix+token)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan Request, 8)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var req Request
			if err := json.Unmarshal([]byte(msg.Payload), &req); err != nil {
				continue
			}
			select {
			case out <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	stop := func() { _ = sub.Close() }
	return out, stop, nil
}
