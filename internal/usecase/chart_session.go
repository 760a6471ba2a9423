package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"SignalBoard/internal/chart"
	drepo "SignalBoard/internal/domain/repository"
	applogger "SignalBoard/pkg/logger"
	"SignalBoard/pkg/util"
)

var ErrUnknownInterval = errors.New("unsupported interval")

// ChartSession drives one chart: navigation through Controller, candle
// fetches through CandleSource, and rendering. Fetches run on the caller's
// goroutine; responses for a symbol no longer on screen are dropped by the
// controller.
type ChartSession struct {
	ctrl     *chart.Controller
	renderer *chart.Renderer
	source   drepo.CandleSource
	config   drepo.SymbolConfig
	metrics  drepo.Metrics
	logger   *applogger.Logger
	debug    bool
	timeout  time.Duration
}

type ChartSessionOption func(*ChartSession)

// WithDebugFetch sets the debug flag sent with every chart fetch.
func WithDebugFetch(debug bool) ChartSessionOption {
	return func(s *ChartSession) { s.debug = debug }
}

func WithFetchTimeout(d time.Duration) ChartSessionOption {
	return func(s *ChartSession) { s.timeout = d }
}

func WithSessionMetrics(m drepo.Metrics) ChartSessionOption {
	return func(s *ChartSession) { s.metrics = m }
}

func NewChartSession(
	ctrl *chart.Controller,
	renderer *chart.Renderer,
	source drepo.CandleSource,
	config drepo.SymbolConfig,
	logger *applogger.Logger,
	opts ...ChartSessionOption,
) *ChartSession {
	s := &ChartSession{
		ctrl:     ctrl,
		renderer: renderer,
		source:   source,
		config:   config,
		logger:   logger,
		timeout:  15 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = applogger.NewNop()
	}
	return s
}

// RefreshSymbols reloads the tracked list. When the current symbol is unset or
// no longer tracked, the first one is selected and loaded.
func (s *ChartSession) RefreshSymbols(ctx context.Context) error {
	list, err := s.config.Symbols(ctx)
	if err != nil {
		return fmt.Errorf("load symbols: %w", err)
	}
	s.ctrl.SetSymbols(list)

	cur := s.ctrl.Symbol()
	for _, sym := range list {
		if sym == cur {
			return nil
		}
	}
	if len(list) == 0 {
		return nil
	}
	if s.ctrl.SelectSymbol(list[0]) {
		s.load(ctx, false)
	}
	return nil
}

// AddSymbol appends sym to the tracked list and refreshes navigation.
func (s *ChartSession) AddSymbol(ctx context.Context, sym string) ([]string, error) {
	list, err := s.config.AddSymbol(ctx, sym)
	if err != nil {
		return nil, err
	}
	s.ctrl.SetSymbols(list)
	if s.ctrl.Symbol() == "" && s.ctrl.SelectSymbol(util.NormalizeSymbol(sym)) {
		s.load(ctx, false)
	}
	return list, nil
}

func (s *ChartSession) SelectSymbol(ctx context.Context, sym string) chart.State {
	if s.ctrl.SelectSymbol(util.NormalizeSymbol(sym)) {
		s.load(ctx, false)
	}
	return s.ctrl.State()
}

func (s *ChartSession) SetInterval(ctx context.Context, iv string) (chart.State, error) {
	if !drepo.IsValidInterval(drepo.Interval(iv)) {
		return s.ctrl.State(), fmt.Errorf("%w: %q", ErrUnknownInterval, iv)
	}
	if s.ctrl.SetInterval(iv) {
		s.load(ctx, false)
	}
	return s.ctrl.State(), nil
}

func (s *ChartSession) Key(ctx context.Context, k chart.Key) chart.State {
	if s.ctrl.Key(k) {
		s.load(ctx, false)
	}
	return s.ctrl.State()
}

func (s *ChartSession) Swipe(ctx context.Context, dx, dy float64, onSurface bool) chart.State {
	if s.ctrl.Swipe(dx, dy, onSurface) {
		s.load(ctx, false)
	}
	return s.ctrl.State()
}

func (s *ChartSession) Click(x float64) chart.State {
	s.ctrl.Click(x)
	return s.ctrl.State()
}

func (s *ChartSession) Resize(containerWidth, viewportWidth float64) chart.State {
	s.ctrl.Resize(containerWidth, viewportWidth)
	return s.ctrl.State()
}

func (s *ChartSession) ToggleMA() chart.State {
	s.ctrl.ToggleMA()
	return s.ctrl.State()
}

// Retry refetches the current symbol, bypassing the candle cache.
func (s *ChartSession) Retry(ctx context.Context) chart.State {
	s.load(ctx, true)
	return s.ctrl.State()
}

func (s *ChartSession) State() chart.State {
	return s.ctrl.State()
}

// RenderPNG draws the current frame.
func (s *ChartSession) RenderPNG(w io.Writer) error {
	start := time.Now()
	err := s.renderer.RenderPNG(w, s.ctrl.Frame())
	if s.metrics != nil {
		s.metrics.RecordLatency("chart_render", time.Since(start).Seconds())
	}
	return err
}

func (s *ChartSession) load(ctx context.Context, noCache bool) {
	req, ok := s.ctrl.BeginLoad()
	if !ok {
		return
	}

	fctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	data, err := s.source.FetchChart(fctx, drepo.ChartQuery{
		Symbol:   req.Symbol,
		Interval: drepo.Interval(req.Interval),
		Debug:    s.debug,
		NoCache:  noCache,
	})
	if err != nil {
		s.logger.Warn("chart fetch failed",
			applogger.String("symbol", req.Symbol),
			applogger.String("interval", req.Interval),
			applogger.Error(err),
		)
		if s.metrics != nil {
			s.metrics.RecordError("chart_fetch")
		}
	}
	if !s.ctrl.Finish(req, data, err) {
		s.logger.Debug("stale chart response dropped", applogger.String("symbol", req.Symbol))
	}
}
