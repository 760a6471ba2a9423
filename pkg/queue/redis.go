package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue publishes messages onto a capped Redis list. Consumers pop
// from the tail, so the list is FIFO.
type RedisQueue struct {
	client    redis.Cmdable
	name      string
	keyPrefix string
	maxLen    int64
	seq       atomic.Uint64
	now       func() time.Time
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		r.keyPrefix = prefix
	}
}

// WithMaxLen trims the list to the newest n messages after each push.
func WithMaxLen(n int64) RedisQueueOption {
	return func(r *RedisQueue) {
		r.maxLen = n
	}
}

// NewRedisPublisher creates a publisher-only queue named name.
func NewRedisPublisher(client redis.Cmdable, name string, opts ...RedisQueueOption) *RedisQueue {
	rq := &RedisQueue{
		client:    client,
		name:      name,
		keyPrefix: "signalboard:queue",
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(rq)
	}

	return rq
}

// Close releases the client when it owns a connection pool.
func (r *RedisQueue) Close() error {
	if c, ok := r.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Key is the Redis list holding pending messages.
func (r *RedisQueue) Key() string {
	if r.keyPrefix == "" {
		return r.name
	}
	return r.keyPrefix + ":" + r.name
}

// Enqueue adds a message to the queue.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	return r.EnqueueBatch(ctx, []Message{{Type: msgType, Payload: payload}})
}

// PublishMessage publishes a message (implements QueueService).
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

// EnqueueBatch pushes all messages in one round trip. Missing IDs and
// timestamps are filled in.
func (r *RedisQueue) EnqueueBatch(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(msgs))
	for i := range msgs {
		msg := r.stamp(msgs[i])
		b, err := encodeMessage(msg)
		if err != nil {
			return err
		}
		values = append(values, b)
	}

	key := r.Key()
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, values...)
		if r.maxLen > 0 {
			p.LTrim(ctx, key, 0, r.maxLen-1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("lpush %s: %w", key, err)
	}
	return nil
}

// Len reports the number of pending messages.
func (r *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := r.client.LLen(ctx, r.Key()).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", r.Key(), err)
	}
	return n, nil
}

func (r *RedisQueue) stamp(msg Message) Message {
	now := r.now()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	if msg.ID == "" {
		msg.ID = strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatUint(r.seq.Add(1), 10)
	}
	return msg
}
