package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"SignalBoard/internal/chart"
	"SignalBoard/internal/domain/models"
	drepo "SignalBoard/internal/domain/repository"
	"SignalBoard/internal/service/botapi"
	"SignalBoard/internal/service/ratelimit"
	"SignalBoard/internal/stream"
	"SignalBoard/internal/usecase"

	"github.com/labstack/echo/v4"
)

type fakeChannel struct {
	status stream.Status
	sent   [][]byte
	err    error
}

func (f *fakeChannel) Send(msg interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg.([]byte))
	return nil
}

func (f *fakeChannel) Status() stream.Status { return f.status }

type fakeSource struct{}

func (fakeSource) FetchChart(_ context.Context, q drepo.ChartQuery) (*models.ChartData, error) {
	return &models.ChartData{
		Symbol:    q.Symbol,
		Open:      []float64{1, 2, 3},
		High:      []float64{2, 3, 4},
		Low:       []float64{0.5, 1, 2},
		Close:     []float64{1.5, 2.5, 3.5},
		Timestamp: []int64{1700000000000, 1700000900000, 1700001800000},
	}, nil
}

type fakeConfig struct {
	symbols []string
	err     error
}

func (f *fakeConfig) Symbols(context.Context) ([]string, error) { return f.symbols, nil }

func (f *fakeConfig) AddSymbol(_ context.Context, sym string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.symbols = append(f.symbols, sym)
	return f.symbols, nil
}

type fixture struct {
	e       *echo.Echo
	board   *usecase.Board
	account *fakeChannel
	config  *fakeConfig
}

func newFixture(t *testing.T, rl *ratelimit.Limiter) *fixture {
	t.Helper()
	board := usecase.NewBoard(nil)
	cfg := &fakeConfig{symbols: []string{"BTCUSDT", "ETHUSDT"}}
	session := usecase.NewChartSession(chart.NewController(1280, 1440, "15m", false), chart.NewRenderer(), fakeSource{}, cfg, nil)
	if err := session.RefreshSymbols(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	account := &fakeChannel{status: stream.Status{Channel: stream.ChannelAccount, State: stream.StateOpen}}
	signal := &fakeChannel{status: stream.Status{Channel: stream.ChannelSignal, State: stream.StateClosed, AuthFailed: true}}

	h := NewDashboardHandler(nil, board, session, account, signal, rl, RateLimitConfig{Burst: 1, PerSecond: 0.001})
	e := echo.New()
	h.RegisterRoutes(e)
	return &fixture{e: e, board: board, account: account, config: cfg}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	var env struct {
		Status int             `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		t.Fatalf("decode data: %v (%s)", err, env.Data)
	}
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.board.AccountCallbacks().OnStatus(models.BotStatus{Running: true})

	rec := f.do(http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var got struct {
		Account   stream.Status     `json:"account"`
		Signal    stream.Status     `json:"signal"`
		BotStatus *models.BotStatus `json:"bot_status"`
		Chart     chart.State       `json:"chart"`
	}
	decodeData(t, rec, &got)
	if got.Account.State != stream.StateOpen || !got.Signal.AuthFailed {
		t.Fatalf("unexpected channel status %+v", got)
	}
	if got.BotStatus == nil || !got.BotStatus.Running || got.Chart.Symbol != "BTCUSDT" {
		t.Fatalf("unexpected status body %+v", got)
	}
}

func TestSignalsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.board.SignalCallbacks().OnSignals([]models.ScanSignal{
		{Symbol: "BTCUSDT", Score: 1},
		{Symbol: "ETHUSDT", Score: 2},
	})

	rec := f.do(http.MethodGet, "/api/signals?sort=symbol&order=asc", "")
	var view usecase.SignalView
	decodeData(t, rec, &view)
	if view.Total != 2 || view.Groups[0].Signals[0].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected view %+v", view)
	}

	if rec := f.do(http.MethodGet, "/api/signals?sort=volume", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid sort must be rejected, got %d", rec.Code)
	}
}

func TestSendEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	if rec := f.do(http.MethodPost, "/api/account/send", `{"action":"refresh"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if len(f.account.sent) != 1 || string(f.account.sent[0]) != `{"action":"refresh"}` {
		t.Fatalf("unexpected sent %q", f.account.sent)
	}
	if rec := f.do(http.MethodPost, "/api/account/send", `{nope`); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid json must be rejected, got %d", rec.Code)
	}

	f.account.err = stream.ErrNotConnected
	if rec := f.do(http.MethodPost, "/api/account/send", `{}`); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when not connected, got %d", rec.Code)
	}
}

func TestChartInteraction(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/chart/key", `{"key":"ArrowDown"}`)
	var st chart.State
	decodeData(t, rec, &st)
	if st.Symbol != "ETHUSDT" || st.Candles != 3 {
		t.Fatalf("unexpected state after key %+v", st)
	}

	if rec := f.do(http.MethodPost, "/api/chart/key", `{"key":"Enter"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown key must be rejected, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/chart/interval", `{"interval":"2m"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown interval must be rejected, got %d", rec.Code)
	}

	rec = f.do(http.MethodPost, "/api/chart/resize", `{"container_width":600}`)
	decodeData(t, rec, &st)
	if st.Width != 576 {
		t.Fatalf("unexpected width %v", st.Width)
	}

	rec = f.do(http.MethodGet, "/api/chart.png", "")
	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderContentType) != "image/png" {
		t.Fatalf("unexpected png response %d %s", rec.Code, rec.Header().Get(echo.HeaderContentType))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatalf("body is not a png")
	}
}

func TestAddSymbolEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	if rec := f.do(http.MethodPost, "/api/symbols", `{"symbol":"BTC/USDT"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid symbol must be rejected, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/symbols", `{"symbol":"SOLUSDT"}`); rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	f.config.err = botapi.ErrUnauthorized
	if rec := f.do(http.MethodPost, "/api/symbols", `{"symbol":"XRPUSDT"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, ratelimit.New())

	if rec := f.do(http.MethodPost, "/api/chart/ma", ""); rec.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/chart/ma", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be limited, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/status", ""); rec.Code != http.StatusOK {
		t.Fatalf("reads are not limited, got %d", rec.Code)
	}
}
