// Package gesture consumes referee gesture labels published on NATS by an
// external classifier and routes them into match rooms.
package gesture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/scoreboard-relay/internal/hub"
	"github.com/DoyleJ11/scoreboard-relay/internal/room"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NoGesture is what the classifier reports when nothing was recognised.
const NoGesture = "No gesture detected"

var ErrInvalidPayload = errors.New("invalid gesture payload")

// Payload is one classifier reading.
type Payload struct {
	MatchID    string  `json:"matchId"`
	Gesture    string  `json:"gesture"`
	Confidence float64 `json:"confidence"`
}

// Router delivers an accepted gesture to its match.
type Router interface {
	Gesture(ctx context.Context, matchID, label string) error
}

type Counter interface {
	Gesture(outcome string)
}

// HubRouter routes gestures through the room of each match. Gestures from
// the feed may score when the match has auto-scoring enabled.
type HubRouter struct {
	Hub *hub.Hub
}

func (r HubRouter) Gesture(ctx context.Context, matchID, label string) error {
	return r.Hub.Do(ctx, matchID, func(rm *room.Room) error {
		_, err := rm.Gesture(ctx, label, true, nil)
		return err
	})
}

type Config struct {
	URL           string
	Subject       string
	MinConfidence float64
	// Timeout bounds the handling of one message.
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Subject:       "scoreboard.gestures.>",
		MinConfidence: 0.7,
		Timeout:       5 * time.Second,
	}
}

type Consumer struct {
	router  Router
	cfg     Config
	counter Counter
	log     *zap.Logger
}

func NewConsumer(router Router, cfg Config, counter Counter, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	if counter == nil {
		counter = nopCounter{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Consumer{router: router, cfg: cfg, counter: counter, log: log.Named("gesture")}
}

// HandleMessage decodes one reading and routes it when it is usable. It
// reports whether the reading was routed.
func (c *Consumer) HandleMessage(ctx context.Context, data []byte) (bool, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		c.counter.Gesture("invalid")
		return false, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if p.MatchID == "" || p.Gesture == "" {
		c.counter.Gesture("invalid")
		return false, fmt.Errorf("%w: matchId and gesture are required", ErrInvalidPayload)
	}
	if p.Gesture == NoGesture || p.Confidence < c.cfg.MinConfidence {
		c.counter.Gesture("ignored")
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	if err := c.router.Gesture(ctx, p.MatchID, p.Gesture); err != nil {
		c.counter.Gesture("failed")
		return false, fmt.Errorf("route gesture to %s: %w", p.MatchID, err)
	}
	c.counter.Gesture("routed")
	return true, nil
}

// Connect dials cfg.URL with reconnect handling that logs through log.
func Connect(cfg Config, log *zap.Logger) (*nats.Conn, error) {
	if log == nil {
		log = zap.NewNop()
	}
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	opts := []nats.Option{
		nats.Name("scoreboard-relay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error("NATS error", zap.Error(err))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// Run subscribes to the configured subject and handles messages until ctx is
// done, then drains the subscription.
func (c *Consumer) Run(ctx context.Context, nc *nats.Conn) error {
	msgs := make(chan *nats.Msg, 256)
	sub, err := nc.ChanSubscribe(c.cfg.Subject, msgs)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.cfg.Subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()
	c.log.Info("consuming gestures", zap.String("subject", c.cfg.Subject), zap.Float64("min_confidence", c.cfg.MinConfidence))

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-msgs:
			if _, err := c.HandleMessage(ctx, m.Data); err != nil {
				c.log.Warn("gesture not routed", zap.String("subject", m.Subject), zap.Error(err))
			}
		}
	}
}

type nopCounter struct{}

func (nopCounter) Gesture(string) {}
