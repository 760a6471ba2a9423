package usecase

import (
	"context"
	"sync"
	"time"

	"SignalBoard/internal/domain/models"
	drepo "SignalBoard/internal/domain/repository"
	"SignalBoard/internal/feed"
	"SignalBoard/internal/stream"
	applogger "SignalBoard/pkg/logger"
)

// JournalOption configures Journal.
type JournalOption func(*Journal)

// WithJournalBuffer sets the queue depth. Entries arriving while the queue is
// full are dropped.
func WithJournalBuffer(n int) JournalOption {
	return func(j *Journal) {
		if n > 0 {
			j.bufSize = n
		}
	}
}

// WithJournalBatch sets the flush size and the max age of a partial batch.
func WithJournalBatch(size int, timeout time.Duration) JournalOption {
	return func(j *Journal) {
		if size > 0 {
			j.batchSize = size
		}
		if timeout > 0 {
			j.batchTimeout = timeout
		}
	}
}

// Journal mirrors classified events to a JournalSink off the reader
// goroutines. Observe never blocks.
type Journal struct {
	sink         drepo.JournalSink
	metrics      drepo.Metrics
	logger       *applogger.Logger
	bufSize      int
	batchSize    int
	batchTimeout time.Duration

	queue   chan *models.JournalEntry
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	started bool
	stopped bool
}

func NewJournal(sink drepo.JournalSink, metrics drepo.Metrics, logger *applogger.Logger, opts ...JournalOption) *Journal {
	j := &Journal{
		sink:         sink,
		metrics:      metrics,
		logger:       logger,
		bufSize:      1024,
		batchSize:    100,
		batchTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.logger == nil {
		j.logger = applogger.NewNop()
	}
	j.queue = make(chan *models.JournalEntry, j.bufSize)
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	return j
}

// Observe matches stream.WithObserver.
func (j *Journal) Observe(ch stream.Channel, ev feed.Event) {
	if ev.Kind == feed.KindUnknown {
		return
	}
	j.Enqueue(&models.JournalEntry{
		Channel:  string(ch),
		Kind:     ev.Kind.String(),
		Received: time.Now().UTC(),
		Payload:  ev.Raw,
	})
}

// Enqueue reports whether e was accepted.
func (j *Journal) Enqueue(e *models.JournalEntry) bool {
	select {
	case j.queue <- e:
		return true
	default:
		j.recordError("journal_buffer_full")
		return false
	}
}

// Start initializes the sink and launches the flush loop. ctx bounds the sink
// initialization only; the loop runs until Stop.
func (j *Journal) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.started {
		j.mu.Unlock()
		return nil
	}
	j.started = true
	j.mu.Unlock()

	if err := j.sink.Init(ctx); err != nil {
		return err
	}
	go j.loop()
	return nil
}

// Stop flushes what is queued and closes the sink.
func (j *Journal) Stop() {
	j.mu.Lock()
	if !j.started || j.stopped {
		j.mu.Unlock()
		return
	}
	j.stopped = true
	j.mu.Unlock()

	close(j.stopCh)
	<-j.doneCh
	if err := j.sink.Close(); err != nil {
		j.logger.Warn("journal sink close failed", applogger.Error(err))
	}
}

func (j *Journal) loop() {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.batchTimeout)
	defer ticker.Stop()

	batch := make([]*models.JournalEntry, 0, j.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := j.sink.WriteBatch(context.Background(), batch); err != nil {
			j.recordError("journal_write")
			j.logger.Error("journal write failed", applogger.Int("entries", len(batch)), applogger.Error(err))
		} else if j.metrics != nil {
			j.metrics.RecordLatency("journal_write", time.Since(start).Seconds())
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-j.queue:
			batch = append(batch, e)
			if len(batch) >= j.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-j.stopCh:
			j.drain(&batch)
			flush()
			return
		}
	}
}

func (j *Journal) drain(batch *[]*models.JournalEntry) {
	for {
		select {
		case e := <-j.queue:
			*batch = append(*batch, e)
		default:
			return
		}
	}
}

func (j *Journal) recordError(kind string) {
	if j.metrics != nil {
		j.metrics.RecordError(kind)
	}
}
