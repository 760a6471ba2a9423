package repository

import (
	"context"

	"SignalBoard/internal/domain/models"
	domrepo "SignalBoard/internal/domain/repository"
	pkgkafka "SignalBoard/pkg/kafka"
)

type batchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
}

// KafkaJournal mirrors entries to a topic, keyed by channel so that each
// channel's events stay ordered within a partition.
type KafkaJournal struct {
	producer batchPublisher
	topic    string
}

func NewKafkaJournal(producer *pkgkafka.Producer, topic string) domrepo.JournalSink {
	return &KafkaJournal{producer: producer, topic: topic}
}

func (p *KafkaJournal) Init(context.Context) error { return nil }

func (p *KafkaJournal) WriteBatch(ctx context.Context, entries []*models.JournalEntry) error {
	msgs := make([]pkgkafka.Message, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{
			Key:   []byte(e.Channel),
			Value: e,
			Time:  e.Received,
		})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

// Close is a no-op; the producer is shared with the log digest and closed by
// its owner.
func (p *KafkaJournal) Close() error { return nil }

// NopJournal discards everything.
type NopJournal struct{}

func (NopJournal) Init(context.Context) error { return nil }
func (NopJournal) WriteBatch(context.Context, []*models.JournalEntry) error { return nil }
func (NopJournal) Close() error { return nil }
