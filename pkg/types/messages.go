// Package types holds the JSON wire protocol spoken over /ws.
//
// Every frame is an envelope {"event": <name>, "data": <payload>}.
//
// Client -> Server
//
//	join-match:          "<matchId>" or {matchId}
//	leave-match:         {}
//	update-scores:       {matchId, scoreA, scoreB}
//	add-event:           {matchId, event: {time, whoScored, refCall, scoreA, scoreB}}
//	undo-event:          {matchId}
//	reset-match:         {matchId}
//	toggle-auto-scoring: {matchId, enabled}
//	gesture-detected:    {matchId, gesture}
//
// Server -> Client
//
//	match-data:           Match (on join, and after administrative updates)
//	scores-updated:       {scoreA, scoreB}
//	event-added:          {event, updatedMatch}
//	event-removed:        {removedEvent, updatedMatch}
//	match-reset:          Match
//	auto-scoring-toggled: {enabled}
//	gesture-update:       {gesture}
//	error:                {message}
package types

import (
	"encoding/json"
	"strings"

	"github.com/DoyleJ11/scoreboard-relay/internal/engine"
)

const (
	EvtJoinMatch         = "join-match"
	EvtLeaveMatch        = "leave-match"
	EvtUpdateScores      = "update-scores"
	EvtAddEvent          = "add-event"
	EvtUndoEvent         = "undo-event"
	EvtResetMatch        = "reset-match"
	EvtToggleAutoScoring = "toggle-auto-scoring"
	EvtGestureDetected   = "gesture-detected"
)

const (
	EvtMatchData          = "match-data"
	EvtScoresUpdated      = "scores-updated"
	EvtEventAdded         = "event-added"
	EvtEventRemoved       = "event-removed"
	EvtMatchReset         = "match-reset"
	EvtAutoScoringToggled = "auto-scoring-toggled"
	EvtGestureUpdate      = "gesture-update"
	EvtError              = "error"
)

// Payload types carried by the envelopes, aliased so clients outside this
// module can name them.
type (
	Match      = engine.Match
	Event      = engine.Event
	EventInput = engine.EventInput
	RefCall    = engine.RefCall
)

const (
	RefPointLeft    = engine.RefPointLeft
	RefPointRight   = engine.RefPointRight
	RefBallOut      = engine.RefBallOut
	RefTimeout      = engine.RefTimeout
	RefSubstitution = engine.RefSubstitution
	RefNetTouch     = engine.RefNetTouch
	RefOther        = engine.RefOther
	RefTest         = engine.RefTest
)

type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ServerMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// JoinMatch accepts either a bare string or an object.
type JoinMatch struct {
	MatchID string `json:"matchId"`
}

func (j *JoinMatch) UnmarshalJSON(b []byte) error {
	if s := strings.TrimSpace(string(b)); strings.HasPrefix(s, `"`) {
		return json.Unmarshal(b, &j.MatchID)
	}
	type plain JoinMatch
	return json.Unmarshal(b, (*plain)(j))
}

type MatchRef struct {
	MatchID string `json:"matchId"`
}

type UpdateScores struct {
	MatchID string `json:"matchId"`
	ScoreA  int    `json:"scoreA"`
	ScoreB  int    `json:"scoreB"`
}

type AddEvent struct {
	MatchID string     `json:"matchId"`
	Event   EventInput `json:"event"`
}

type ToggleAutoScoring struct {
	MatchID string `json:"matchId"`
	Enabled bool   `json:"enabled"`
}

type GestureDetected struct {
	MatchID string `json:"matchId"`
	Gesture string `json:"gesture"`
}

type ScoresUpdated struct {
	ScoreA int `json:"scoreA"`
	ScoreB int `json:"scoreB"`
}

type EventAdded struct {
	Event        Event `json:"event"`
	UpdatedMatch Match `json:"updatedMatch"`
}

type EventRemoved struct {
	RemovedEvent Event `json:"removedEvent"`
	UpdatedMatch Match `json:"updatedMatch"`
}

type AutoScoringToggled struct {
	Enabled bool `json:"enabled"`
}

type GestureUpdate struct {
	Gesture string `json:"gesture"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

func Error(message string) ServerMessage {
	return ServerMessage{Event: EvtError, Data: ErrorMessage{Message: message}}
}
