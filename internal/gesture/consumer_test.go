package gesture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DoyleJ11/scoreboard-relay/internal/engine"
	"github.com/DoyleJ11/scoreboard-relay/internal/hub"
	"github.com/DoyleJ11/scoreboard-relay/internal/room"
	"github.com/DoyleJ11/scoreboard-relay/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routed struct{ matchID, label string }

type fakeRouter struct {
	got []routed
	err error
}

func (f *fakeRouter) Gesture(_ context.Context, matchID, label string) error {
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, routed{matchID, label})
	return nil
}

func TestConsumer_HandleMessage(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		routed  bool
		wantErr error
	}{
		{"scoring call", `{"matchId":"m1","gesture":"Point Left","confidence":0.93}`, true, nil},
		{"non-scoring call", `{"matchId":"m1","gesture":"Timeout","confidence":0.8}`, true, nil},
		{"low confidence", `{"matchId":"m1","gesture":"Point Left","confidence":0.4}`, false, nil},
		{"nothing detected", `{"matchId":"m1","gesture":"No gesture detected","confidence":0.99}`, false, nil},
		{"missing match", `{"gesture":"Point Left","confidence":0.9}`, false, ErrInvalidPayload},
		{"not json", `Point Left`, false, ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRouter{}
			c := NewConsumer(r, DefaultConfig(), nil, nil)

			ok, err := c.HandleMessage(context.Background(), []byte(tt.payload))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.routed, ok)
			assert.Equal(t, tt.routed, len(r.got) == 1)
		})
	}
}

func TestConsumer_RouterFailure(t *testing.T) {
	c := NewConsumer(&fakeRouter{err: engine.ErrMatchNotFound}, DefaultConfig(), nil, nil)

	ok, err := c.HandleMessage(context.Background(), []byte(`{"matchId":"gone","gesture":"Point Right","confidence":1}`))
	assert.False(t, ok)
	require.ErrorIs(t, err, engine.ErrMatchNotFound)
}

func TestHubRouter_AutoScores(t *testing.T) {
	s := store.New(store.NewMemoryRepository())
	h := hub.NewHub(context.Background(), hub.Config{Room: room.Config{Store: s}})
	t.Cleanup(h.Shutdown)
	ctx := context.Background()

	m, err := s.CreateDefault(ctx, engine.MatchInit{TeamA: "Brazil", TeamB: "Italy"})
	require.NoError(t, err)

	c := NewConsumer(HubRouter{Hub: h}, DefaultConfig(), nil, nil)
	ok, err := c.HandleMessage(ctx, []byte(`{"matchId":"`+m.MatchID+`","gesture":"Point Right","confidence":0.9}`))
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.Get(ctx, m.MatchID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ScoreB)
	require.Len(t, got.EventLog, 1)
	assert.Equal(t, "Italy", got.EventLog[0].WhoScored)

	// with auto-scoring off the label is only relayed
	_, err = s.ApplyUpdate(ctx, m.MatchID, engine.MatchPatch{AutoScoringEnabled: new(bool)})
	require.NoError(t, err)
	_, err = c.HandleMessage(ctx, []byte(`{"matchId":"`+m.MatchID+`","gesture":"Point Right","confidence":0.9}`))
	require.NoError(t, err)

	got, err = s.Get(ctx, m.MatchID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ScoreB)
}

func TestHubRouter_UnknownMatch(t *testing.T) {
	h := hub.NewHub(context.Background(), hub.Config{Room: room.Config{Store: store.New(store.NewMemoryRepository())}})
	t.Cleanup(h.Shutdown)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := HubRouter{Hub: h}.Gesture(ctx, "nope", "Point Left")
	require.True(t, errors.Is(err, engine.ErrMatchNotFound))

	require.Eventually(t, func() bool {
		stats, err := h.Stats(context.Background())
		return err == nil && stats.Rooms == 0
	}, time.Second, 10*time.Millisecond)
}

func TestConnect_UsesConfiguredURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "nats://127.0.0.1:1"

	_, err := Connect(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats://127.0.0.1:1")
}
