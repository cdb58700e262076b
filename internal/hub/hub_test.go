package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/scoreboard-relay/internal/engine"
	"github.com/DoyleJ11/scoreboard-relay/internal/room"
	"github.com/DoyleJ11/scoreboard-relay/internal/store"
	"github.com/DoyleJ11/scoreboard-relay/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gauge struct {
	mu sync.Mutex
	n  int
}

func (g *gauge) SetRooms(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = n
}

func (g *gauge) get() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

type member struct {
	id  string
	out chan types.ServerMessage
}

func (m *member) ID() string { return m.id }

func (m *member) Send(msg types.ServerMessage) bool {
	m.out <- msg
	return true
}

func (m *member) Close() {}

func newTestHub(t *testing.T, cfg Config) *Hub {
	t.Helper()
	if cfg.Room.Store == nil {
		cfg.Room.Store = store.New(store.NewMemoryRepository())
	}
	h := NewHub(context.Background(), cfg)
	t.Cleanup(h.Shutdown)
	return h
}

func TestHub_Ensure_Get_SamePointer(t *testing.T) {
	h := newTestHub(t, Config{})
	reply := make(chan *room.Room, 1)

	h.Inbox() <- EnsureRoom{MatchID: "court-1", Reply: reply}
	rm1 := <-reply

	h.Inbox() <- GetRoom{MatchID: "court-1", Reply: reply}
	rm2 := <-reply

	if rm1 == nil || rm2 == nil || rm1 != rm2 {
		t.Fatalf("expected same room pointer")
	}

	h.Inbox() <- GetRoom{MatchID: "court-2", Reply: reply}
	if rm := <-reply; rm != nil {
		t.Fatalf("expected no room for unknown match")
	}
}

func TestHub_MoveMember_LastJoinWins(t *testing.T) {
	g := &gauge{}
	h := newTestHub(t, Config{Gauge: g})
	ctx := context.Background()

	first, err := h.Move(ctx, "conn-1", "a")
	require.NoError(t, err)
	assert.Nil(t, first.Prev)
	require.NotNil(t, first.Next)

	again, err := h.Move(ctx, "conn-1", "a")
	require.NoError(t, err)
	assert.Nil(t, again.Prev)
	assert.Same(t, first.Next, again.Next)

	second, err := h.Move(ctx, "conn-1", "b")
	require.NoError(t, err)
	assert.Same(t, first.Next, second.Prev)
	assert.Equal(t, "b", second.Next.MatchID())

	stats, err := h.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Rooms: 2, Members: 1}, stats)
	assert.Equal(t, 2, g.get())

	prev, err := h.Forget(ctx, "conn-1")
	require.NoError(t, err)
	assert.Same(t, second.Next, prev)

	prev, err = h.Forget(ctx, "conn-1")
	require.NoError(t, err)
	assert.Nil(t, prev)
}

func TestHub_IdleRoomIsRemovedAndReplaced(t *testing.T) {
	h := newTestHub(t, Config{Room: room.Config{IdleTTL: 20 * time.Millisecond}})
	ctx := context.Background()

	rm, err := h.Room(ctx, "court-1")
	require.NoError(t, err)

	select {
	case <-rm.Done():
	case <-time.After(time.Second):
		t.Fatalf("idle room did not stop")
	}

	require.Eventually(t, func() bool {
		got, err := h.Lookup(ctx, "court-1")
		return err == nil && got == nil
	}, time.Second, 10*time.Millisecond)

	fresh, err := h.Room(ctx, "court-1")
	require.NoError(t, err)
	assert.NotSame(t, rm, fresh)
}

func TestHub_DoRetriesClosedRoom(t *testing.T) {
	h := newTestHub(t, Config{})
	ctx := context.Background()

	stale, err := h.Room(ctx, "court-1")
	require.NoError(t, err)
	stale.Inbox() <- room.Shutdown{}
	<-stale.Done()

	m := &member{id: "c1", out: make(chan types.ServerMessage, 4)}
	var used *room.Room
	err = h.Do(ctx, "court-1", func(rm *room.Room) error {
		used = rm
		_, err := rm.Join(ctx, m, true)
		return err
	})
	require.NoError(t, err)
	assert.NotSame(t, stale, used)

	msg := <-m.out
	assert.Equal(t, types.EvtMatchData, msg.Event)
	assert.Equal(t, "court-1", msg.Data.(engine.Match).MatchID)
}

func TestHub_ShutdownStopsRooms(t *testing.T) {
	h := NewHub(context.Background(), Config{Room: room.Config{Store: store.New(store.NewMemoryRepository())}})
	ctx := context.Background()

	rm, err := h.Room(ctx, "court-1")
	require.NoError(t, err)

	h.Shutdown()

	select {
	case <-rm.Done():
	case <-time.After(time.Second):
		t.Fatalf("room still running after hub shutdown")
	}

	_, err = h.Room(ctx, "court-1")
	require.ErrorIs(t, err, room.ErrRoomClosed)
}
