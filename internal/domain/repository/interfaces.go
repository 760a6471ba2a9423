package repository

import (
	"context"

	"SignalBoard/internal/domain/models"
)

// TokenSource yields the current bearer token. It is consulted on every
// connection attempt and never cached by callers.
type TokenSource interface {
	Token() (string, bool)
}

// ChartQuery selects one candle dataset.
type ChartQuery struct {
	Symbol   string
	Interval Interval
	Debug    bool
	// NoCache disables the last-good-copy fallback when the fetch fails.
	NoCache  bool
}

// CandleSource fetches candle datasets from the bot backend.
type CandleSource interface {
	FetchChart(ctx context.Context, q ChartQuery) (*models.ChartData, error)
}

// SymbolConfig reads and extends the tracked-symbol list.
type SymbolConfig interface {
	Symbols(ctx context.Context) ([]string, error)
	AddSymbol(ctx context.Context, symbol string) ([]string, error)
}

// JournalSink persists mirrored events.
type JournalSink interface {
	Init(ctx context.Context) error
	WriteBatch(ctx context.Context, entries []*models.JournalEntry) error
	Close() error
}

type Metrics interface {
	RecordFrame(channel string)
	RecordEvent(channel, kind string)
	RecordError(kind string)
	RecordReconnect(channel string)
	RecordConnState(channel string, state int)
	RecordLatency(op string, seconds float64)
}
