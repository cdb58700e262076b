package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/scoreboard-relay/internal/hub"
	"github.com/DoyleJ11/scoreboard-relay/internal/room"
	"github.com/DoyleJ11/scoreboard-relay/internal/store"
	"github.com/DoyleJ11/scoreboard-relay/pkg/types"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type connGauge struct{ opened, closed chan struct{} }

func (g *connGauge) ConnOpened() { g.opened <- struct{}{} }
func (g *connGauge) ConnClosed() { g.closed <- struct{}{} }

func newServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	h := hub.NewHub(context.Background(), hub.Config{Room: room.Config{Store: store.New(store.NewMemoryRepository())}})
	t.Cleanup(h.Shutdown)
	srv := httptest.NewServer(Handler(h, opts))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"event": event, "data": data})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, raw))
}

func recv(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestHandler_JoinAndBroadcast(t *testing.T) {
	srv := newServer(t, Options{AutoCreate: true})

	a, b := dial(t, srv), dial(t, srv)
	send(t, a, types.EvtJoinMatch, "court-9")
	send(t, b, types.EvtJoinMatch, map[string]string{"matchId": "court-9"})
	assert.Equal(t, types.EvtMatchData, recv(t, a).Event)
	assert.Equal(t, types.EvtMatchData, recv(t, b).Event)

	send(t, a, types.EvtAddEvent, map[string]any{
		"matchId": "court-9",
		"event":   map[string]any{"whoScored": "Brazil", "refCall": "Point Left", "scoreA": 1, "scoreB": 0},
	})

	fa, fb := recv(t, a), recv(t, b)
	assert.Equal(t, types.EvtEventAdded, fa.Event)
	assert.JSONEq(t, string(fa.Data), string(fb.Data))

	var added struct {
		UpdatedMatch struct {
			ScoreA int `json:"scoreA"`
		} `json:"updatedMatch"`
	}
	require.NoError(t, json.Unmarshal(fa.Data, &added))
	assert.Equal(t, 1, added.UpdatedMatch.ScoreA)
}

func TestHandler_ErrorsGoToSenderOnly(t *testing.T) {
	srv := newServer(t, Options{AutoCreate: true})
	ctx := context.Background()

	a := dial(t, srv)
	send(t, a, types.EvtUndoEvent, map[string]string{})
	f := recv(t, a)
	assert.Equal(t, types.EvtError, f.Event)
	assert.JSONEq(t, `{"message":"join a match first"}`, string(f.Data))

	require.NoError(t, a.Write(ctx, websocket.MessageText, []byte("not json")))
	f = recv(t, a)
	assert.Equal(t, types.EvtError, f.Event)

	// connection survives both errors
	send(t, a, types.EvtJoinMatch, "court-1")
	assert.Equal(t, types.EvtMatchData, recv(t, a).Event)
}

func TestHandler_TracksConnections(t *testing.T) {
	g := &connGauge{opened: make(chan struct{}, 1), closed: make(chan struct{}, 1)}
	srv := newServer(t, Options{Conns: g})

	conn := dial(t, srv)
	select {
	case <-g.opened:
	case <-time.After(time.Second):
		t.Fatalf("connection not counted")
	}

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "done"))
	select {
	case <-g.closed:
	case <-time.After(time.Second):
		t.Fatalf("disconnect not counted")
	}
}

func TestHandler_UnansweredPingClosesConnection(t *testing.T) {
	g := &connGauge{opened: make(chan struct{}, 1), closed: make(chan struct{}, 1)}
	srv := newServer(t, Options{
		AutoCreate:   true,
		Conns:        g,
		PingInterval: 20 * time.Millisecond,
		WriteTimeout: 50 * time.Millisecond,
	})

	// never reads, so pongs are never sent back
	conn := dial(t, srv)
	send(t, conn, types.EvtJoinMatch, "court-3")
	<-g.opened

	select {
	case <-g.closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("half-open connection was not closed")
	}
}
