package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	c, err := Parse([]byte("api:\n  base_url: http://bot:8000\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.Stream.MaxReconnectAttempts != 5 || c.Stream.ReconnectDelay != 3*time.Second {
		t.Fatalf("unexpected stream defaults %+v", c.Stream)
	}
	if c.Chart.Interval != "15m" || c.Chart.HideMA {
		t.Fatalf("unexpected chart defaults %+v", c.Chart)
	}
	if c.Cache.Backend != "memory" || c.Journal.Backend != "none" {
		t.Fatalf("unexpected backends %q %q", c.Cache.Backend, c.Journal.Backend)
	}
	if !c.Server.CORS {
		t.Fatalf("cors should default on")
	}
	r := c.Cache.Redis
	if r.PoolSize != 10 || r.MinIdleConns != 2 || r.PoolTimeout != 30*time.Second {
		t.Fatalf("unexpected redis pool defaults %+v", r)
	}
}

func TestParseKeepsExplicitValues(t *testing.T) {
	c, err := Parse([]byte(`
api:
  base_url: https://bot.example
stream:
  max_reconnect_attempts: 2
chart:
  hide_ma: true
  timezone: UTC
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Stream.MaxReconnectAttempts != 2 || !c.Chart.HideMA {
		t.Fatalf("explicit values overwritten: %+v %+v", c.Stream, c.Chart)
	}
	if c.Location() != time.UTC {
		t.Fatalf("expected UTC, got %v", c.Location())
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		yaml string
		want string
	}{
		"missing base url": {"server:\n  port: 1\n", "api.base_url is required"},
		"bad scheme":       {"api:\n  base_url: ws://bot\n", "must be http or https"},
		"kafka no brokers": {"api:\n  base_url: http://bot\njournal:\n  backend: kafka\n", "kafka.brokers"},
		"unknown journal":  {"api:\n  base_url: http://bot\njournal:\n  backend: s3\n", "journal.backend"},
		"unknown cache":    {"api:\n  base_url: http://bot\ncache:\n  backend: disk\n", "cache.backend"},
		"digest no kafka":  {"api:\n  base_url: http://bot\nlog_digest:\n  enabled: true\n", "log_digest"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c, err := Parse([]byte(tc.yaml))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			err = c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := t.TempDir() + "/config.yaml"
	if err := os.WriteFile(path, []byte("api:\n  base_url: http://bot\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SIGNALBOARD_API_URL", "https://other")
	t.Setenv("SIGNALBOARD_JOURNAL", "kafka")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")

	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.API.BaseURL != "https://other" || c.Journal.Backend != "kafka" || len(c.Kafka.Brokers) != 2 {
		t.Fatalf("env not applied: %+v %+v %+v", c.API, c.Journal, c.Kafka.Brokers)
	}
}
