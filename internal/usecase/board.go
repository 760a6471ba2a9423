package usecase

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"SignalBoard/internal/domain/models"
	"SignalBoard/internal/feed"
	applogger "SignalBoard/pkg/logger"
	"SignalBoard/pkg/util"
)

// AccountSnapshot is the latest state pushed on the account channel.
type AccountSnapshot struct {
	Connected     bool              `json:"connected"`
	Balance       json.RawMessage   `json:"balance"`
	Positions     []json.RawMessage `json:"positions"`
	IncomeHistory []json.RawMessage `json:"income_history"`
	SpotOrders    []json.RawMessage `json:"spot_orders"`
	Status        *models.BotStatus `json:"bot_status"`
	LastError     string            `json:"last_error,omitempty"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type SignalQuery struct {
	Sort   string // score (default), symbol, time, adx
	Order  string // desc (default), asc
	Group  string // "", trend, state
	Search string
}

type SignalGroup struct {
	Key     string              `json:"key"`
	Signals []models.ScanSignal `json:"signals"`
}

type SignalView struct {
	Connected bool          `json:"connected"`
	Total     int           `json:"total"`
	Matched   int           `json:"matched"`
	UpdatedAt time.Time     `json:"updated_at"`
	LastError string        `json:"last_error,omitempty"`
	Groups    []SignalGroup `json:"groups"`
}

// Board keeps what the two channels have pushed so far.
type Board struct {
	mu      sync.RWMutex
	account AccountSnapshot
	signals []models.ScanSignal
	sigAt   time.Time
	sigConn bool
	sigErr  string
	logger  *applogger.Logger
	now     func() time.Time
}

func NewBoard(logger *applogger.Logger) *Board {
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &Board{
		account: AccountSnapshot{
			Positions:     []json.RawMessage{},
			IncomeHistory: []json.RawMessage{},
			SpotOrders:    []json.RawMessage{},
		},
		logger: logger,
		now:    time.Now,
	}
}

// AccountCallbacks is registered on the account channel.
func (b *Board) AccountCallbacks() feed.Callbacks {
	return feed.Callbacks{
		OnConnect: func() {
			b.updateAccount(func(a *AccountSnapshot) {
				a.Connected = true
				a.LastError = ""
			})
		},
		OnDisconnect: func() {
			b.updateAccount(func(a *AccountSnapshot) { a.Connected = false })
		},
		OnError: func(msg string) {
			b.logger.Warn("account channel error", applogger.String("error", msg))
			b.updateAccount(func(a *AccountSnapshot) { a.LastError = msg })
		},
		OnStatus: func(st models.BotStatus) {
			b.updateAccount(func(a *AccountSnapshot) { a.Status = &st })
		},
		OnBalance: func(bal json.RawMessage) {
			b.updateAccount(func(a *AccountSnapshot) { a.Balance = bal })
		},
		OnPositions: func(items []json.RawMessage) {
			b.updateAccount(func(a *AccountSnapshot) { a.Positions = items })
		},
		OnIncomeHistory: func(items []json.RawMessage) {
			b.updateAccount(func(a *AccountSnapshot) { a.IncomeHistory = items })
		},
		OnSpotOrders: func(items []json.RawMessage) {
			b.updateAccount(func(a *AccountSnapshot) { a.SpotOrders = items })
		},
	}
}

// SignalCallbacks is registered on the signal channel. Each batch replaces the
// previous snapshot.
func (b *Board) SignalCallbacks() feed.Callbacks {
	return feed.Callbacks{
		OnConnect: func() {
			b.mu.Lock()
			b.sigConn = true
			b.sigErr = ""
			b.mu.Unlock()
		},
		OnDisconnect: func() {
			b.mu.Lock()
			b.sigConn = false
			b.mu.Unlock()
		},
		OnError: func(msg string) {
			b.logger.Warn("signal channel error", applogger.String("error", msg))
			b.mu.Lock()
			b.sigErr = msg
			b.mu.Unlock()
		},
		OnStatus: func(st models.BotStatus) {
			b.updateAccount(func(a *AccountSnapshot) { a.Status = &st })
		},
		OnSignals: func(sigs []models.ScanSignal) {
			b.mu.Lock()
			b.signals = append([]models.ScanSignal(nil), sigs...)
			b.sigAt = b.now()
			b.mu.Unlock()
		},
	}
}

func (b *Board) updateAccount(fn func(*AccountSnapshot)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.account)
	b.account.UpdatedAt = b.now()
}

// Account returns a copy of the account snapshot.
func (b *Board) Account() AccountSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a := b.account
	a.Positions = append([]json.RawMessage{}, a.Positions...)
	a.IncomeHistory = append([]json.RawMessage{}, a.IncomeHistory...)
	a.SpotOrders = append([]json.RawMessage{}, a.SpotOrders...)
	if a.Status != nil {
		st := *a.Status
		a.Status = &st
	}
	return a
}

// Signals filters, sorts and groups the current snapshot.
func (b *Board) Signals(q SignalQuery) SignalView {
	b.mu.RLock()
	all := append([]models.ScanSignal(nil), b.signals...)
	view := SignalView{
		Connected: b.sigConn,
		Total:     len(b.signals),
		UpdatedAt: b.sigAt,
		LastError: b.sigErr,
	}
	b.mu.RUnlock()

	matched := all[:0]
	for _, s := range all {
		if q.Search == "" || util.ContainsFold(s.Symbol, q.Search) || util.ContainsFold(s.State, q.Search) {
			matched = append(matched, s)
		}
	}
	sortSignals(matched, q.Sort, strings.EqualFold(q.Order, "asc"))
	view.Matched = len(matched)
	view.Groups = groupSignals(matched, q.Group)
	return view
}

func sortSignals(sigs []models.ScanSignal, by string, asc bool) {
	less := func(a, b models.ScanSignal) bool { return a.Score < b.Score }
	switch strings.ToLower(by) {
	case "symbol":
		less = func(a, b models.ScanSignal) bool { return a.Symbol < b.Symbol }
	case "time":
		less = func(a, b models.ScanSignal) bool { return a.Time < b.Time }
	case "adx":
		less = func(a, b models.ScanSignal) bool { return a.ADX < b.ADX }
	}
	sort.SliceStable(sigs, func(i, j int) bool {
		if asc {
			return less(sigs[i], sigs[j])
		}
		return less(sigs[j], sigs[i])
	})
}

var trendOrder = []models.Trend{models.TrendBullish, models.TrendBearish, models.TrendNeutral}

func groupSignals(sigs []models.ScanSignal, by string) []SignalGroup {
	switch strings.ToLower(by) {
	case "trend":
		buckets := map[models.Trend][]models.ScanSignal{}
		for _, s := range sigs {
			t := s.EffectiveTrend()
			buckets[t] = append(buckets[t], s)
		}
		out := make([]SignalGroup, 0, len(buckets))
		for _, t := range trendOrder {
			if len(buckets[t]) > 0 {
				out = append(out, SignalGroup{Key: string(t), Signals: buckets[t]})
				delete(buckets, t)
			}
		}
		rest := make([]string, 0, len(buckets))
		for t := range buckets {
			rest = append(rest, string(t))
		}
		sort.Strings(rest)
		for _, t := range rest {
			out = append(out, SignalGroup{Key: t, Signals: buckets[models.Trend(t)]})
		}
		return out
	case "state":
		buckets := map[string][]models.ScanSignal{}
		keys := []string{}
		for _, s := range sigs {
			k := s.State
			if k == "" {
				k = "unknown"
			}
			if _, ok := buckets[k]; !ok {
				keys = append(keys, k)
			}
			buckets[k] = append(buckets[k], s)
		}
		sort.Strings(keys)
		out := make([]SignalGroup, 0, len(keys))
		for _, k := range keys {
			out = append(out, SignalGroup{Key: k, Signals: buckets[k]})
		}
		return out
	default:
		return []SignalGroup{{Key: "all", Signals: append([]models.ScanSignal{}, sigs...)}}
	}
}
