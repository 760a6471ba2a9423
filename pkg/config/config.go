package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8090"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORS            bool          `yaml:"cors" default:"true"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	API struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout" default:"10s"`
		Debug   bool          `yaml:"debug"`
	} `yaml:"api"`
	Stream struct {
		MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" default:"5"`
		ReconnectDelay       time.Duration `yaml:"reconnect_delay" default:"3s"`
		PingInterval         time.Duration `yaml:"ping_interval" default:"30s"`
		HandshakeTimeout     time.Duration `yaml:"handshake_timeout" default:"10s"`
		ReadLimit            int64         `yaml:"read_limit" default:"4194304"`
	} `yaml:"stream"`
	Token struct {
		File string `yaml:"file" default:".signalboard/token"`
		Env  string `yaml:"env" default:"SIGNALBOARD_TOKEN"`
	} `yaml:"token"`
	Chart struct {
		Interval       string  `yaml:"interval" default:"15m"`
		ContainerWidth float64 `yaml:"container_width" default:"1280"`
		ViewportWidth  float64 `yaml:"viewport_width" default:"1440"`
		HideMA         bool    `yaml:"hide_ma"`
		Timezone       string  `yaml:"timezone" default:"Local"`
	} `yaml:"chart"`
	Cache struct {
		Backend       string        `yaml:"backend" default:"memory"`
		TTL           time.Duration `yaml:"ttl" default:"15s"`
		MemoryMaxSize int           `yaml:"memory_max_size" default:"256"`
		Redis         struct {
			Addr         string        `yaml:"addr" default:"localhost:6379"`
			Password     string        `yaml:"password"`
			DB           int           `yaml:"db"`
			Prefix       string        `yaml:"prefix" default:"signalboard"`
			PoolSize     int           `yaml:"pool_size" default:"10"`
			MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
			PoolTimeout  time.Duration `yaml:"pool_timeout" default:"30s"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Journal struct {
		Backend      string        `yaml:"backend" default:"none"`
		BufferSize   int           `yaml:"buffer_size" default:"1024"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
		RedisList    string        `yaml:"redis_list" default:"journal"`
		RedisMaxLen  int64         `yaml:"redis_max_len" default:"100000"`
	} `yaml:"journal"`
	Kafka struct {
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic" default:"signalboard.events"`
		RequiredAcks int           `yaml:"required_acks" default:"-1"`
		Compression  string        `yaml:"compression" default:"gzip"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"signalboard"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		Table        string        `yaml:"table" default:"events"`
		UseHTTP      bool          `yaml:"use_http"`
		AsyncInsert  bool          `yaml:"async_insert" default:"true"`
		WaitForAsync bool          `yaml:"wait_for_async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"clickhouse"`
	LogDigest struct {
		Enabled   bool          `yaml:"enabled"`
		Topic     string        `yaml:"topic" default:"signalboard.log_digest"`
		Interval  time.Duration `yaml:"interval" default:"30s"`
		Threshold int           `yaml:"threshold" default:"100"`
	} `yaml:"log_digest"`
	RateLimit struct {
		Burst     float64 `yaml:"burst" default:"20"`
		PerSecond float64 `yaml:"per_second" default:"10"`
	} `yaml:"rate_limit"`
}

func load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes and fills defaults. It does not validate.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SIGNALBOARD_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("SIGNALBOARD_TOKEN_FILE"); v != "" {
		c.Token.File = v
	}
	if v := os.Getenv("SIGNALBOARD_JOURNAL"); v != "" {
		c.Journal.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url must be http or https, got '%s'", u.Scheme)
	}
	if c.Stream.MaxReconnectAttempts < 0 {
		return fmt.Errorf("stream.max_reconnect_attempts cannot be negative")
	}
	switch c.Cache.Backend {
	case "memory", "redis", "layered", "none":
	default:
		return fmt.Errorf("cache.backend must be one of memory, redis, layered, none; got '%s'", c.Cache.Backend)
	}
	switch c.Journal.Backend {
	case "none":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required for the kafka journal")
		}
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for the clickhouse journal")
		}
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis journal")
		}
	default:
		return fmt.Errorf("journal.backend must be one of none, kafka, clickhouse, redis; got '%s'", c.Journal.Backend)
	}
	if c.LogDigest.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("log_digest requires kafka.brokers")
	}
	if c.Chart.ContainerWidth <= 0 {
		return fmt.Errorf("chart.container_width must be positive")
	}
	return nil
}

// Location resolves the chart timezone; time labels are wall-clock HH:MM in it.
func (c *Config) Location() *time.Location {
	if c.Chart.Timezone == "" || c.Chart.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Chart.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
