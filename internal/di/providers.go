package di

import (
	"context"
	"fmt"
	"io"
	"time"

	"SignalBoard/internal/chart"
	"SignalBoard/internal/domain/repository"
	"SignalBoard/internal/handler/api"
	internalrepo "SignalBoard/internal/repository"
	"SignalBoard/internal/service/botapi"
	"SignalBoard/internal/service/ratelimit"
	"SignalBoard/internal/service/token"
	"SignalBoard/internal/stream"
	"SignalBoard/internal/usecase"
	"SignalBoard/pkg/cache"
	pkgch "SignalBoard/pkg/clickhouse"
	"SignalBoard/pkg/config"
	xhttp "SignalBoard/pkg/http"
	pkgkafka "SignalBoard/pkg/kafka"
	applogger "SignalBoard/pkg/logger"
	"SignalBoard/pkg/metrics"
	"SignalBoard/pkg/queue"
	"SignalBoard/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New(nil)
}

// ProvideTokenSource reads the bearer token from the token file, then the env.
func ProvideTokenSource(cfg *config.Config) repository.TokenSource {
	return token.NewFileStore(cfg.Token.File, cfg.Token.Env)
}

// ProvideBytesCache picks the chart cache backend. "none" yields nil.
func ProvideBytesCache(cfg *config.Config) (cache.BytesCache, error) {
	switch cfg.Cache.Backend {
	case "redis", "layered":
		rc, err := cache.NewRedisCache(
			cache.WithRedisAddr(cfg.Cache.Redis.Addr),
			cache.WithRedisPassword(cfg.Cache.Redis.Password),
			cache.WithRedisDB(cfg.Cache.Redis.DB),
			cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
			cache.WithRedisPool(cfg.Cache.Redis.PoolSize, cfg.Cache.Redis.MinIdleConns, cfg.Cache.Redis.PoolTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("chart cache: %w", err)
		}
		if cfg.Cache.Backend == "redis" {
			return rc, nil
		}
		return cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize)), nil
	case "none":
		return nil, nil
	default:
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize)), nil
	}
}

// ProvideBotClient creates the REST client for charts and the symbol config.
func ProvideBotClient(
	cfg *config.Config,
	tokens repository.TokenSource,
	c cache.BytesCache,
	m repository.Metrics,
	l *applogger.Logger,
) *botapi.Client {
	opts := []botapi.Option{
		botapi.WithLogger(l.With(applogger.String("component", "botapi"))),
		botapi.WithMetrics(m),
	}
	if c != nil {
		opts = append(opts, botapi.WithCache(c, cfg.Cache.TTL))
	}
	return botapi.New(xhttp.NewClient(xhttp.WithTimeout(cfg.API.Timeout)), cfg.API.BaseURL, tokens, opts...)
}

// ProvideKafkaProducer creates a Kafka producer when the journal or the log
// digest needs one; otherwise it returns nil.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Journal.Backend != "kafka" && !cfg.LogDigest.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithTopic(cfg.Kafka.Topic),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithBatch(cfg.Journal.BatchSize, cfg.Kafka.BatchTimeout),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideClickHouseClient connects only for the clickhouse journal.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Journal.Backend != "clickhouse" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if err := client.InitSchema(ctx, []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", cfg.ClickHouse.Database),
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideRedisQueue builds the list publisher for the redis journal; nil
// otherwise. It shares the cache's Redis address but owns its client.
func ProvideRedisQueue(cfg *config.Config) (*queue.RedisQueue, error) {
	if cfg.Journal.Backend != "redis" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis journal: %w", err)
	}
	return queue.NewRedisPublisher(client, cfg.Journal.RedisList,
		queue.WithKeyPrefix(cfg.Cache.Redis.Prefix+":queue"),
		queue.WithMaxLen(cfg.Journal.RedisMaxLen),
	), nil
}

// ProvideJournalSink selects where mirrored events go.
func ProvideJournalSink(
	cfg *config.Config,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	rq *queue.RedisQueue,
	l *applogger.Logger,
) repository.JournalSink {
	switch cfg.Journal.Backend {
	case "kafka":
		return internalrepo.NewKafkaJournal(producer, cfg.Kafka.Topic)
	case "clickhouse":
		return internalrepo.NewClickHouseJournal(ch.DB(), ch.Database(), cfg.ClickHouse.Table, l)
	case "redis":
		return internalrepo.NewRedisJournal(rq)
	default:
		return internalrepo.NopJournal{}
	}
}

func ProvideJournal(cfg *config.Config, sink repository.JournalSink, m repository.Metrics, l *applogger.Logger) *usecase.Journal {
	return usecase.NewJournal(sink, m, l.With(applogger.String("component", "journal")),
		usecase.WithJournalBuffer(cfg.Journal.BufferSize),
		usecase.WithJournalBatch(cfg.Journal.BatchSize, cfg.Journal.BatchTimeout),
	)
}

func ProvideBoard(l *applogger.Logger) *usecase.Board {
	return usecase.NewBoard(l)
}

// ProvideChannels builds the account and signal connections. Events are
// mirrored to the journal unless it is disabled.
func ProvideChannels(
	cfg *config.Config,
	tokens repository.TokenSource,
	journal *usecase.Journal,
	m repository.Metrics,
	l *applogger.Logger,
) server.Channels {
	dialer := stream.WebsocketDialer{
		HandshakeTimeout: cfg.Stream.HandshakeTimeout,
		ReadLimit:        cfg.Stream.ReadLimit,
	}
	build := func(ch stream.Channel) *stream.Connection {
		opts := []stream.Option{
			stream.WithDialer(dialer),
			stream.WithLogger(l.With(applogger.String("component", "stream"))),
			stream.WithMetrics(m),
			stream.WithMaxReconnectAttempts(cfg.Stream.MaxReconnectAttempts),
			stream.WithReconnectDelay(cfg.Stream.ReconnectDelay),
			stream.WithPingInterval(cfg.Stream.PingInterval),
		}
		if cfg.Journal.Backend != "none" {
			opts = append(opts, stream.WithObserver(journal.Observe))
		}
		return stream.New(ch, cfg.API.BaseURL, tokens, opts...)
	}
	return server.Channels{
		Account: build(stream.ChannelAccount),
		Signal:  build(stream.ChannelSignal),
	}
}

func ProvideChartSession(cfg *config.Config, bot *botapi.Client, m repository.Metrics, l *applogger.Logger) *usecase.ChartSession {
	ctrl := chart.NewController(cfg.Chart.ContainerWidth, cfg.Chart.ViewportWidth,
		string(repository.NormalizeInterval(cfg.Chart.Interval)), !cfg.Chart.HideMA)
	renderer := chart.NewRenderer(chart.WithLocation(cfg.Location()))
	return usecase.NewChartSession(ctrl, renderer, bot, bot, l.With(applogger.String("component", "chart")),
		usecase.WithDebugFetch(cfg.API.Debug),
		usecase.WithFetchTimeout(cfg.API.Timeout),
		usecase.WithSessionMetrics(m),
	)
}

func ProvideDashboardHandler(
	cfg *config.Config,
	l *applogger.Logger,
	board *usecase.Board,
	session *usecase.ChartSession,
	channels server.Channels,
) *api.DashboardHandler {
	return api.NewDashboardHandler(l, board, session, channels.Account, channels.Signal, ratelimit.New(),
		api.RateLimitConfig{Burst: cfg.RateLimit.Burst, PerSecond: cfg.RateLimit.PerSecond})
}

func ProvideHTTPServer(cfg *config.Config, h *api.DashboardHandler, l *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(h, l,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithCORS(cfg.Server.CORS),
	)
}

// ProvideClosers lists infrastructure released after the journal stops.
func ProvideClosers(producer *pkgkafka.Producer, ch *pkgch.Client, rq *queue.RedisQueue, c cache.BytesCache) server.Closers {
	var out server.Closers
	if producer != nil {
		out = append(out, producer)
	}
	if ch != nil {
		out = append(out, ch)
	}
	if rq != nil {
		out = append(out, rq)
	}
	if cl, ok := c.(io.Closer); ok {
		out = append(out, cl)
	}
	return out
}

// ProvideApp creates the application and attaches the error-log digest.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	channels server.Channels,
	board *usecase.Board,
	session *usecase.ChartSession,
	journal *usecase.Journal,
	srv *xhttp.Server,
	producer *pkgkafka.Producer,
	closers server.Closers,
) *server.App {
	if cfg.LogDigest.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.LogDigest.Interval,
			CountThreshold: cfg.LogDigest.Threshold,
			Topic:          cfg.LogDigest.Topic,
			Publisher:      producer,
		})
	}
	return server.New(cfg, l, channels, board, session, journal, srv, closers)
}
