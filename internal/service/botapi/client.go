package botapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"SignalBoard/internal/domain/models"
	drepo "SignalBoard/internal/domain/repository"
	"SignalBoard/pkg/cache"
	apphttp "SignalBoard/pkg/http"
	applogger "SignalBoard/pkg/logger"
	"SignalBoard/pkg/util"

	"github.com/tidwall/gjson"
)

const (
	chartPath  = "/api/v1/futures/chart"
	configPath = "/api/v1/futures/config"
)

var (
	ErrNoToken      = errors.New("authentication token missing")
	ErrUnauthorized = errors.New("bot api rejected the token")
)

// Option configures Client.
type Option func(*Client)

// WithCache serves repeated chart fetches from c for ttl.
func WithCache(c cache.BytesCache, ttl time.Duration) Option {
	return func(cl *Client) {
		cl.cache = c
		cl.ttl = ttl
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

func WithMetrics(m drepo.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// Client talks to the bot's REST API. It implements CandleSource and SymbolConfig.
type Client struct {
	http    *apphttp.Client
	baseURL string
	tokens  drepo.TokenSource
	cache   cache.BytesCache
	ttl     time.Duration
	logger  *applogger.Logger
	metrics drepo.Metrics
}

func New(httpClient *apphttp.Client, baseURL string, tokens drepo.TokenSource, opts ...Option) *Client {
	c := &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = applogger.NewNop()
	}
	return c
}

// FetchChart always asks the bot for a fresh dataset. The last good copy is
// kept in the cache and served only when the upstream call fails for a
// reason other than authentication, unless q.NoCache.
func (c *Client) FetchChart(ctx context.Context, q drepo.ChartQuery) (*models.ChartData, error) {
	key := cache.GenerateKeyWithParams("chart", q.Symbol, q.Interval, q.Debug)

	start := time.Now()
	var body []byte
	err := c.do(ctx, &apphttp.RequestOptions{
		Method: apphttp.MethodGet,
		URL:    c.baseURL + chartPath,
		QueryParams: map[string][]string{
			"symbol":   {q.Symbol},
			"interval": {string(q.Interval)},
			"debug":    {strconv.FormatBool(q.Debug)},
		},
	}, &body)
	if c.metrics != nil {
		c.metrics.RecordLatency("chart_fetch", time.Since(start).Seconds())
	}
	if err != nil {
		err = fmt.Errorf("fetch chart %s %s: %w", q.Symbol, q.Interval, err)
		if data, ok := c.fallback(ctx, key, q, err); ok {
			return data, nil
		}
		return nil, err
	}

	data, err := decodeChart(body, q)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.SetBytes(ctx, key, body, c.ttl); err != nil {
			c.logger.Warn("chart cache write failed", applogger.Error(err))
		}
	}
	return data, nil
}

func (c *Client) fallback(ctx context.Context, key string, q drepo.ChartQuery, cause error) (*models.ChartData, bool) {
	if c.cache == nil || q.NoCache || errors.Is(cause, ErrNoToken) || errors.Is(cause, ErrUnauthorized) {
		return nil, false
	}
	b, ok, err := c.cache.GetBytes(ctx, key)
	if err != nil {
		c.logger.Warn("chart cache read failed", applogger.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	data, err := decodeChart(b, q)
	if err != nil {
		return nil, false
	}
	c.logger.Warn("serving cached chart", applogger.String("symbol", q.Symbol), applogger.Error(cause))
	return data, true
}

func decodeChart(b []byte, q drepo.ChartQuery) (*models.ChartData, error) {
	var data models.ChartData
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("decode chart %s: %w", q.Symbol, err)
	}
	if data.Symbol == "" {
		data.Symbol = q.Symbol
	}
	if data.Interval == "" {
		data.Interval = string(q.Interval)
	}
	return &data, nil
}

// Symbols returns the tracked-symbol list from the bot config.
func (c *Client) Symbols(ctx context.Context) ([]string, error) {
	cfg, err := c.config(ctx)
	if err != nil {
		return nil, err
	}
	return symbolsOf(cfg), nil
}

// AddSymbol appends symbol to the tracked list and writes the config back.
// Other config keys are sent back untouched.
func (c *Client) AddSymbol(ctx context.Context, symbol string) ([]string, error) {
	symbol = util.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, errors.New("symbol is empty")
	}

	cfg, err := c.config(ctx)
	if err != nil {
		return nil, err
	}
	symbols := symbolsOf(cfg)
	for _, s := range symbols {
		if s == symbol {
			return symbols, nil
		}
	}
	symbols = append(symbols, symbol)

	raw, err := json.Marshal(symbols)
	if err != nil {
		return nil, fmt.Errorf("encode symbols: %w", err)
	}
	cfg["symbols"] = raw

	if err := c.do(ctx, &apphttp.RequestOptions{
		Method: apphttp.MethodPut,
		URL:    c.baseURL + configPath,
		Body:   cfg,
	}, nil); err != nil {
		return nil, fmt.Errorf("update config: %w", err)
	}
	c.logger.Info("symbol added", applogger.String("symbol", symbol), applogger.Int("tracked", len(symbols)))
	return symbols, nil
}

func (c *Client) config(ctx context.Context) (map[string]json.RawMessage, error) {
	cfg := map[string]json.RawMessage{}
	if err := c.do(ctx, &apphttp.RequestOptions{
		Method: apphttp.MethodGet,
		URL:    c.baseURL + configPath,
	}, &cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return cfg, nil
}

func symbolsOf(cfg map[string]json.RawMessage) []string {
	raw, ok := cfg["symbols"]
	if !ok {
		return []string{}
	}
	res := gjson.ParseBytes(raw)
	if !res.IsArray() {
		return []string{}
	}
	out := make([]string, 0, len(res.Array()))
	for _, v := range res.Array() {
		if s := util.NormalizeSymbol(v.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// do attaches the bearer token, read fresh for every request.
func (c *Client) do(ctx context.Context, opts *apphttp.RequestOptions, dest interface{}) error {
	tok, ok := c.tokens.Token()
	if !ok || tok == "" {
		return ErrNoToken
	}
	if opts.Headers == nil {
		opts.Headers = map[string]string{}
	}
	opts.Headers["Authorization"] = "Bearer " + tok
	opts.Headers["Accept"] = "application/json"

	err := c.http.SendAndParse(ctx, opts, dest)
	if apphttp.IsStatus(err, http.StatusUnauthorized) || apphttp.IsStatus(err, http.StatusForbidden) {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return err
}
