// Package queue carries tap events from the API to the worker, which uses
// them to warm the monthly aggregate cache for the tapped date's month.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// TapEvent is the unit of work: one recorded tap, reduced to what the
// worker needs to know which month to recompute.
type TapEvent struct {
	DateKey  string    `json:"date_key"` // YYYY-MM-DD partition of the log
	TappedAt time.Time `json:"tapped_at"`
}

// TapQueue is the transport abstraction; backends differ between dev and
// production.
type TapQueue interface {
	Publish(ctx context.Context, ev TapEvent) error
	Consume(ctx context.Context) (<-chan TapEvent, error)
}

// Memory is a channel-backed queue for dev and tests, single process only.
type Memory struct {
	ch chan TapEvent
}

// NewMemory creates a bounded in-process queue.
func NewMemory(size int) *Memory {
	return &Memory{ch: make(chan TapEvent, size)}
}

// Publish enqueues an event, blocking when the buffer is full.
func (q *Memory) Publish(ctx context.Context, ev TapEvent) error {
	select {
	case q.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume streams events until the context ends. Both the receive and the
// forward honor cancellation so the goroutine never outlives a consumer
// that stopped reading.
func (q *Memory) Consume(ctx context.Context) (<-chan TapEvent, error) {
	out := make(chan TapEvent)
	go func() {
		defer close(out)
		for {
			select {
			case ev := <-q.ch:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

const defaultRedisKey = "kiosk:taps"

// Redis is a Redis list-backed queue, LPUSH on publish and BRPOP on consume,
// so events survive an API restart and fan out to one worker.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis builds the Redis-backed queue.
func NewRedis(client *redis.Client, key string) *Redis {
	if key == "" {
		key = defaultRedisKey
	}
	return &Redis{client: client, key: key}
}

// Publish enqueues an event as JSON.
func (q *Redis) Publish(ctx context.Context, ev TapEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, payload).Err()
}

// Consume streams events. Malformed payloads are skipped; the poll loop
// keeps a short block timeout so context cancellation is noticed.
func (q *Redis) Consume(ctx context.Context) (<-chan TapEvent, error) {
	out := make(chan TapEvent)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			var ev TapEvent
			if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
				continue
			}
			out <- ev
		}
	}()
	return out, nil
}
