package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinMatch_Unmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare string", `"court-1"`, "court-1"},
		{"object", `{"matchId":"court-2"}`, "court-2"},
		{"padded string", ` "court-3"`, "court-3"},
		{"empty object", `{}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var j JoinMatch
			require.NoError(t, json.Unmarshal([]byte(tt.in), &j))
			assert.Equal(t, tt.want, j.MatchID)
		})
	}

	var j JoinMatch
	require.Error(t, json.Unmarshal([]byte(`42`), &j))
}

func TestServerMessage_Envelope(t *testing.T) {
	b, err := json.Marshal(Error("No events to undo"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"error","data":{"message":"No events to undo"}}`, string(b))

	var cm ClientMessage
	require.NoError(t, json.Unmarshal([]byte(`{"event":"undo-event","data":{"matchId":"m"}}`), &cm))
	assert.Equal(t, EvtUndoEvent, cm.Event)
	assert.JSONEq(t, `{"matchId":"m"}`, string(cm.Data))
}

func TestAddEvent_DecodesWithPublicTypes(t *testing.T) {
	var p AddEvent
	require.NoError(t, json.Unmarshal([]byte(`{"matchId":"m","event":{"whoScored":"Brazil","refCall":"Point Left","scoreA":1}}`), &p))

	want := AddEvent{MatchID: "m", Event: EventInput{WhoScored: "Brazil", RefCall: RefPointLeft, ScoreA: 1}}
	assert.Equal(t, want, p)

	b, err := json.Marshal(ServerMessage{Event: EvtEventAdded, Data: EventAdded{
		Event:        Event{WhoScored: "Brazil", RefCall: RefPointLeft, ScoreA: 1},
		UpdatedMatch: Match{MatchID: "m", ScoreA: 1},
	}})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"updatedMatch":{"matchId":"m"`)
}
