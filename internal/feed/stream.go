// Package feed mirrors every room broadcast onto Redis Streams so consumers
// outside the websocket fan-out (overlays, archivers) can follow matches.
package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DoyleJ11/scoreboard-relay/pkg/types"
	"github.com/redis/go-redis/v9"
)

// StreamPrefix is prepended to the match id to form the stream key.
const StreamPrefix = "scoreboard.matches."

// XAdder is the slice of the redis client the publisher needs.
type XAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// StreamPublisher publishes room broadcasts to Redis Streams.
type StreamPublisher struct {
	client XAdder
	maxLen int64
}

// NewStreamPublisher creates a stream publisher. maxLen > 0 trims each stream
// approximately to that many entries.
func NewStreamPublisher(client XAdder, maxLen int64) *StreamPublisher {
	return &StreamPublisher{client: client, maxLen: maxLen}
}

// Open connects to the Redis server at url and checks it answers.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func StreamKey(matchID string) string { return StreamPrefix + matchID }

// Publish appends msg to the match's stream.
// Stream key format: scoreboard.matches.{matchId}
func (p *StreamPublisher) Publish(ctx context.Context, matchID string, msg types.ServerMessage) error {
	data, err := json.Marshal(msg.Data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Event, err)
	}

	args := &redis.XAddArgs{
		Stream: StreamKey(matchID),
		Values: map[string]interface{}{
			"event": msg.Event,
			"data":  string(data),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish to stream %s: %w", args.Stream, err)
	}
	return nil
}
