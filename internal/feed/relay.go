package feed

import (
	"context"
	"time"

	"github.com/DoyleJ11/scoreboard-relay/pkg/types"
	"go.uber.org/zap"
)

// Sink is where queued broadcasts end up.
type Sink interface {
	Publish(ctx context.Context, matchID string, msg types.ServerMessage) error
}

// Counter is told what happened to each message.
type Counter interface {
	FeedMessage(outcome string)
}

type item struct {
	matchID string
	msg     types.ServerMessage
}

// Relay decouples rooms from the sink: Publish never blocks a room, and a
// single goroutine (Run) writes to the sink in broadcast order.
type Relay struct {
	sink    Sink
	queue   chan item
	timeout time.Duration
	counter Counter
	log     *zap.Logger
}

type RelayOption func(*Relay)

func WithCounter(c Counter) RelayOption {
	return func(r *Relay) { r.counter = c }
}

func WithLogger(l *zap.Logger) RelayOption {
	return func(r *Relay) { r.log = l.Named("feed") }
}

// WithTimeout bounds a single sink write.
func WithTimeout(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func NewRelay(sink Sink, size int, opts ...RelayOption) *Relay {
	if size <= 0 {
		size = 1024
	}
	r := &Relay{
		sink:    sink,
		queue:   make(chan item, size),
		timeout: 2 * time.Second,
		counter: nopCounter{},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Publish enqueues msg. When the queue is full the message is dropped.
func (r *Relay) Publish(matchID string, msg types.ServerMessage) {
	select {
	case r.queue <- item{matchID: matchID, msg: msg}:
	default:
		r.counter.FeedMessage("dropped")
		r.log.Warn("feed queue full, dropping message", zap.String("match_id", matchID), zap.String("event", msg.Event))
	}
}

// Run drains the queue until ctx is done. Sink failures are logged and the
// message skipped.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case it := <-r.queue:
			wctx, cancel := context.WithTimeout(ctx, r.timeout)
			err := r.sink.Publish(wctx, it.matchID, it.msg)
			cancel()
			if err != nil {
				r.counter.FeedMessage("failed")
				r.log.Error("publish failed", zap.String("match_id", it.matchID), zap.String("event", it.msg.Event), zap.Error(err))
				continue
			}
			r.counter.FeedMessage("published")
		}
	}
}

type nopCounter struct{}

func (nopCounter) FeedMessage(string) {}
