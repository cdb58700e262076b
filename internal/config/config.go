// Package config defines the relay configuration and how it is loaded.
package config

import (
	"time"
)

// Config contains process configuration.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":3001".
	Addr string `koanf:"addr"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat is "json" or "console".
	LogFormat string `koanf:"log_format"`

	// CORSOrigins lists the browser origins allowed on HTTP and websocket routes.
	CORSOrigins []string `koanf:"cors_origins"`

	// StoreDriver selects the match repository: memory, postgres or sqlite.
	StoreDriver string `koanf:"store_driver"`
	DatabaseURL string `koanf:"database_url"`

	// RedisURL enables the update feed when set.
	RedisURL          string `koanf:"redis_url"`
	RedisStreamMaxLen int64  `koanf:"redis_stream_maxlen"`

	// NATSURL enables the gesture feed when set.
	NATSURL              string  `koanf:"nats_url"`
	GestureSubject       string  `koanf:"gesture_subject"`
	GestureMinConfidence float64 `koanf:"gesture_min_confidence"`

	// AutoCreateOnJoin lets join-match create a default match for unknown ids.
	AutoCreateOnJoin bool `koanf:"auto_create_on_join"`

	RoomIdleTTL     time.Duration `koanf:"room_idle_ttl"`
	OutboxSize      int           `koanf:"outbox_size"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	PingInterval    time.Duration `koanf:"ping_interval"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// TimeZone is the IANA location used for server-filled event time labels.
	TimeZone string `koanf:"time_zone"`

	MetricsNamespace   string    `koanf:"metrics_namespace"`
	MetricsSubsystem   string    `koanf:"metrics_subsystem"`
	HTTPLatencyBuckets []float64 `koanf:"http_latency_buckets"` // seconds; empty uses the Prometheus defaults
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		Addr:                 ":3001",
		LogLevel:             "info",
		LogFormat:            "json",
		CORSOrigins:          []string{"http://localhost:3000"},
		StoreDriver:          "memory",
		RedisStreamMaxLen:    10_000,
		GestureSubject:       "scoreboard.gestures.>",
		GestureMinConfidence: 0.7,
		AutoCreateOnJoin:     true,
		RoomIdleTTL:          5 * time.Minute,
		OutboxSize:           64,
		WriteTimeout:         3 * time.Second,
		ReadTimeout:          0,
		PingInterval:         30 * time.Second,
		ShutdownTimeout:      10 * time.Second,
		TimeZone:             "Local",
		MetricsNamespace:     "scoreboard",
		MetricsSubsystem:     "relay",
	}
}
