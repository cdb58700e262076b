package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix  = "SCOREBOARD_"
	EnvConfig  = "SCOREBOARD_CONFIG"
	dotEnvFile = ".env"
)

var ErrInvalid = errors.New("invalid config")

// Load builds a Config by layering, low to high precedence:
//  1. defaults (New)
//  2. a YAML file if SCOREBOARD_CONFIG is set
//  3. env (prefix SCOREBOARD_), after loading .env when present
func Load() (*Config, error) {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", dotEnvFile, err)
	}

	k := koanf.New(".")

	if path := os.Getenv(EnvConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	// SCOREBOARD_ROOM_IDLE_TTL -> room_idle_ttl
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalid)
	}
	if !slices.Contains([]string{"memory", "postgres", "sqlite"}, c.StoreDriver) {
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalid, c.StoreDriver)
	}
	if c.StoreDriver != "memory" && c.DatabaseURL == "" {
		return fmt.Errorf("%w: database_url is required for store_driver %s", ErrInvalid, c.StoreDriver)
	}
	if c.OutboxSize <= 0 {
		return fmt.Errorf("%w: outbox_size must be positive", ErrInvalid)
	}
	if c.GestureMinConfidence < 0 || c.GestureMinConfidence > 1 {
		return fmt.Errorf("%w: gesture_min_confidence must be within [0,1]", ErrInvalid)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: time_zone: %w", ErrInvalid, err)
	}
	return nil
}

// Location resolves TimeZone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.TimeZone)
}
