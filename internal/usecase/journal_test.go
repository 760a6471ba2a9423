package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"SignalBoard/internal/domain/models"
	"SignalBoard/internal/feed"
	"SignalBoard/internal/stream"
)

type memSink struct {
	mu      sync.Mutex
	batches [][]*models.JournalEntry
	inited  bool
	closed  bool
}

func (m *memSink) Init(context.Context) error {
	m.inited = true
	return nil
}

func (m *memSink) WriteBatch(_ context.Context, entries []*models.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]*models.JournalEntry(nil), entries...))
	return nil
}

func (m *memSink) Close() error {
	m.closed = true
	return nil
}

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func TestJournalFlushesOnBatchSize(t *testing.T) {
	sink := &memSink{}
	j := NewJournal(sink, nil, nil, WithJournalBatch(2, time.Hour))
	if err := j.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	j.Observe(stream.ChannelAccount, feed.Event{Kind: feed.KindBalance, Raw: json.RawMessage(`{"type":"balance"}`)})
	j.Observe(stream.ChannelSignal, feed.Event{Kind: feed.KindSignals, Raw: json.RawMessage(`[]`)})

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.count() != 2 {
		t.Fatalf("expected 2 entries flushed, got %d", sink.count())
	}
	j.Stop()

	e := sink.batches[0][0]
	if e.Channel != "account" || e.Kind != "balance" || string(e.Payload) != `{"type":"balance"}` {
		t.Fatalf("unexpected entry %+v", e)
	}
	if !sink.inited || !sink.closed {
		t.Fatalf("sink lifecycle not driven")
	}
}

func TestJournalStopFlushesPartialBatch(t *testing.T) {
	sink := &memSink{}
	j := NewJournal(sink, nil, nil, WithJournalBatch(100, time.Hour))
	if err := j.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	j.Observe(stream.ChannelAccount, feed.Event{Kind: feed.KindPositions, Raw: json.RawMessage(`{}`)})
	j.Observe(stream.ChannelAccount, feed.Event{Kind: feed.KindUnknown, Raw: json.RawMessage(`{}`)})
	j.Stop()
	j.Stop()

	if sink.count() != 1 {
		t.Fatalf("expected the queued entry to be flushed on stop, got %d", sink.count())
	}
}

func TestJournalDropsWhenFull(t *testing.T) {
	j := NewJournal(&memSink{}, nil, nil, WithJournalBuffer(1))
	if !j.Enqueue(&models.JournalEntry{}) {
		t.Fatalf("first entry should fit")
	}
	if j.Enqueue(&models.JournalEntry{}) {
		t.Fatalf("second entry should be dropped")
	}
}

func TestJournalOutlivesStartContext(t *testing.T) {
	sink := &memSink{}
	j := NewJournal(sink, nil, nil, WithJournalBatch(100, time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	if err := j.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
	time.Sleep(20 * time.Millisecond)

	j.Observe(stream.ChannelSignal, feed.Event{Kind: feed.KindSignals, Raw: json.RawMessage(`[]`)})
	j.Stop()

	if sink.count() != 1 {
		t.Fatalf("expected the late entry to be flushed on stop, got %d", sink.count())
	}
}
