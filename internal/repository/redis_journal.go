package repository

import (
	"context"

	"SignalBoard/internal/domain/models"
	domrepo "SignalBoard/internal/domain/repository"
	"SignalBoard/pkg/queue"
)

type listPublisher interface {
	EnqueueBatch(ctx context.Context, msgs []queue.Message) error
}

// RedisJournal pushes entries onto a Redis list for downstream workers.
type RedisJournal struct {
	q listPublisher
}

func NewRedisJournal(q *queue.RedisQueue) domrepo.JournalSink {
	return &RedisJournal{q: q}
}

func (r *RedisJournal) Init(context.Context) error { return nil }

func (r *RedisJournal) WriteBatch(ctx context.Context, entries []*models.JournalEntry) error {
	msgs := make([]queue.Message, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		msgs = append(msgs, queue.Message{
			Type:      e.Channel + "." + e.Kind,
			Payload:   e,
			Timestamp: e.Received,
		})
	}
	return r.q.EnqueueBatch(ctx, msgs)
}

// Close is a no-op; the Redis client is closed by its owner.
func (r *RedisJournal) Close() error { return nil }
