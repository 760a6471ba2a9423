package usecase

import (
	"encoding/json"
	"testing"

	"SignalBoard/internal/domain/models"
)

func trend(t models.Trend) *models.Trend { return &t }

func sampleSignals() []models.ScanSignal {
	return []models.ScanSignal{
		{Symbol: "BTCUSDT", Time: 3, Trend: trend(models.TrendBullish), State: "LONG", Score: 0.4, ADX: 30},
		{Symbol: "ETHUSDT", Time: 1, Trend: nil, State: "WATCH", Score: 0.9, ADX: 10, EMAFast: 1, EMASlow: 2, EMA50: 1},
		{Symbol: "SOLUSDT", Time: 2, Trend: trend(models.TrendNeutral), State: "LONG", Score: 0.1, ADX: 20},
	}
}

func symbolsOf(g SignalGroup) []string {
	out := make([]string, len(g.Signals))
	for i, s := range g.Signals {
		out[i] = s.Symbol
	}
	return out
}

func TestBoardSignalsSortAndSearch(t *testing.T) {
	b := NewBoard(nil)
	cb := b.SignalCallbacks()
	cb.OnSignals(sampleSignals())

	v := b.Signals(SignalQuery{})
	if v.Total != 3 || len(v.Groups) != 1 {
		t.Fatalf("unexpected view %+v", v)
	}
	if got := symbolsOf(v.Groups[0]); got[0] != "ETHUSDT" || got[2] != "SOLUSDT" {
		t.Fatalf("default sort is score desc, got %v", got)
	}

	v = b.Signals(SignalQuery{Sort: "time", Order: "asc"})
	if got := symbolsOf(v.Groups[0]); got[0] != "ETHUSDT" || got[1] != "SOLUSDT" || got[2] != "BTCUSDT" {
		t.Fatalf("unexpected time order %v", got)
	}

	v = b.Signals(SignalQuery{Search: "long", Sort: "adx"})
	if v.Matched != 2 || symbolsOf(v.Groups[0])[0] != "BTCUSDT" {
		t.Fatalf("unexpected search result %+v", v)
	}

	cb.OnSignals(sampleSignals()[:1])
	if v = b.Signals(SignalQuery{}); v.Total != 1 {
		t.Fatalf("a new batch must replace the snapshot, got %d", v.Total)
	}
}

func TestBoardSignalsGroupByTrend(t *testing.T) {
	b := NewBoard(nil)
	b.SignalCallbacks().OnSignals(sampleSignals())

	v := b.Signals(SignalQuery{Group: "trend"})
	if len(v.Groups) != 2 {
		t.Fatalf("expected 2 trend groups, got %+v", v.Groups)
	}
	if v.Groups[0].Key != "Bullish" || v.Groups[1].Key != "Neutral" || len(v.Groups[1].Signals) != 2 {
		t.Fatalf("unexpected groups %+v", v.Groups)
	}

	v = b.Signals(SignalQuery{Group: "state"})
	if v.Groups[0].Key != "LONG" || v.Groups[1].Key != "WATCH" {
		t.Fatalf("unexpected state groups %+v", v.Groups)
	}
}

func TestBoardGroupingKeepsEverySignal(t *testing.T) {
	b := NewBoard(nil)
	b.SignalCallbacks().OnSignals([]models.ScanSignal{
		{Symbol: "BTCUSDT", Trend: trend("BULLISH")},
		{Symbol: "ETHUSDT", Trend: nil},
		{Symbol: "XRPUSDT", Trend: trend("Sideways")},
		{Symbol: "SOLUSDT", Trend: trend(" bearish ")},
	})

	for _, by := range []string{"trend", "state", ""} {
		v := b.Signals(SignalQuery{Group: by})
		grouped := 0
		for _, g := range v.Groups {
			grouped += len(g.Signals)
		}
		if grouped != v.Matched {
			t.Fatalf("group=%q: matched=%d grouped=%d", by, v.Matched, grouped)
		}
	}

	v := b.Signals(SignalQuery{Group: "trend"})
	keys := make([]string, len(v.Groups))
	for i, g := range v.Groups {
		keys[i] = g.Key
	}
	want := []string{"Bullish", "Bearish", "Neutral", "Sideways"}
	if len(keys) != len(want) {
		t.Fatalf("unexpected groups %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("unexpected group order %v", keys)
		}
	}
}

func TestBoardAccountSnapshot(t *testing.T) {
	b := NewBoard(nil)
	cb := b.AccountCallbacks()

	cb.OnConnect()
	cb.OnBalance(json.RawMessage(`{"total":10}`))
	cb.OnPositions([]json.RawMessage{json.RawMessage(`{"symbol":"BTCUSDT"}`)})
	cb.OnStatus(models.BotStatus{Running: true})
	cb.OnError("max reconnect attempts reached")

	a := b.Account()
	if !a.Connected || string(a.Balance) != `{"total":10}` || len(a.Positions) != 1 {
		t.Fatalf("unexpected snapshot %+v", a)
	}
	if a.Status == nil || !a.Status.Running || a.LastError == "" {
		t.Fatalf("unexpected status %+v", a)
	}
	if a.IncomeHistory == nil || len(a.SpotOrders) != 0 {
		t.Fatalf("lists must default to empty")
	}

	a.Status.Running = false
	if !b.Account().Status.Running {
		t.Fatalf("snapshot must be a copy")
	}

	cb.OnDisconnect()
	if b.Account().Connected {
		t.Fatalf("disconnect not recorded")
	}
}
