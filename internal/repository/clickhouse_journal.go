package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SignalBoard/internal/domain/models"
	domrepo "SignalBoard/internal/domain/repository"
	applogger "SignalBoard/pkg/logger"
)

const insertChunk = 500

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ClickHouseJournal appends journal entries to a MergeTree table.
type ClickHouseJournal struct {
	db    execer
	table string
	l     *applogger.Logger
}

func NewClickHouseJournal(db *sql.DB, database, table string, l *applogger.Logger) domrepo.JournalSink {
	return newClickHouseJournal(db, database, table, l)
}

func newClickHouseJournal(db execer, database, table string, l *applogger.Logger) *ClickHouseJournal {
	if database != "" {
		table = database + "." + table
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &ClickHouseJournal{db: db, table: table, l: l}
}

func (s *ClickHouseJournal) Init(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
        received DateTime64(3),
        channel LowCardinality(String),
        kind LowCardinality(String),
        payload String
    ) ENGINE = MergeTree
    ORDER BY (channel, kind, received)`, s.table)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create journal table: %w", err)
	}
	return nil
}

// WriteBatch inserts entries using multi-row VALUES, chunked.
func (s *ClickHouseJournal) WriteBatch(ctx context.Context, entries []*models.JournalEntry) error {
	start := time.Now()
	written := 0
	for from := 0; from < len(entries); from += insertChunk {
		to := from + insertChunk
		if to > len(entries) {
			to = len(entries)
		}

		values := make([]string, 0, to-from)
		args := make([]interface{}, 0, (to-from)*4)
		for _, e := range entries[from:to] {
			if e == nil {
				continue
			}
			values = append(values, "(?, ?, ?, ?)")
			args = append(args, e.Received, e.Channel, e.Kind, string(e.Payload))
		}
		if len(values) == 0 {
			continue
		}

		q := fmt.Sprintf("INSERT INTO %s (received, channel, kind, payload) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse journal insert error",
				applogger.String("table", s.table),
				applogger.Int("rows", len(values)),
				applogger.Error(err),
			)
			return fmt.Errorf("insert journal: %w", err)
		}
		written += len(values)
	}
	s.l.Debug("clickhouse journal batch written",
		applogger.String("table", s.table),
		applogger.Int("rows", written),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

// Close is a no-op; the pool belongs to pkg/clickhouse.
func (s *ClickHouseJournal) Close() error {
	return nil
}
