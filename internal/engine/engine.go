package engine

import (
	"errors"
	"fmt"
	"time"
)

var ErrMatchNotFound = errors.New("match not found")
var ErrEmptyLog = errors.New("no events to undo")
var ErrValidation = errors.New("validation failed")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Match struct {
	MatchID            string    `json:"matchId"`
	Title              string    `json:"title"`
	VideoID            string    `json:"videoId"`
	TeamA              string    `json:"teamA"`
	TeamB              string    `json:"teamB"`
	ScoreA             int       `json:"scoreA"`
	ScoreB             int       `json:"scoreB"`
	SetNumber          int       `json:"setNumber"`
	IsLive             bool      `json:"isLive"`
	AutoScoringEnabled bool      `json:"autoScoringEnabled"`
	EventLog           []Event   `json:"eventLog"`
	LastUpdated        time.Time `json:"lastUpdated"`
	CreatedBy          string    `json:"createdBy"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Event is one logged referee call. ScoreA/ScoreB are the values the caller
// reported as current once the call was made.
type Event struct {
	Time      string    `json:"time"`
	WhoScored string    `json:"whoScored"`
	RefCall   RefCall   `json:"refCall"`
	ScoreA    int       `json:"scoreA"`
	ScoreB    int       `json:"scoreB"`
	CreatedBy string    `json:"createdBy"`
	Timestamp time.Time `json:"timestamp"`
}

type EventInput struct {
	Time      string  `json:"time"`
	WhoScored string  `json:"whoScored"`
	RefCall   RefCall `json:"refCall"`
	ScoreA    int     `json:"scoreA"`
	ScoreB    int     `json:"scoreB"`
	CreatedBy string  `json:"createdBy,omitempty"`
}

// MatchPatch carries the fields of an administrative update. Nil fields are
// left untouched.
type MatchPatch struct {
	Title              *string `json:"title,omitempty"`
	VideoID            *string `json:"videoId,omitempty"`
	TeamA              *string `json:"teamA,omitempty"`
	TeamB              *string `json:"teamB,omitempty"`
	ScoreA             *int    `json:"scoreA,omitempty"`
	ScoreB             *int    `json:"scoreB,omitempty"`
	SetNumber          *int    `json:"setNumber,omitempty"`
	IsLive             *bool   `json:"isLive,omitempty"`
	AutoScoringEnabled *bool   `json:"autoScoringEnabled,omitempty"`
}

type CommandType string

const (
	CmdUpdateScores      CommandType = "UpdateScores"
	CmdAddEvent          CommandType = "AddEvent"
	CmdUndoEvent         CommandType = "UndoEvent"
	CmdResetMatch        CommandType = "ResetMatch"
	CmdToggleAutoScoring CommandType = "ToggleAutoScoring"
	CmdPatchMatch        CommandType = "PatchMatch"
)

/*
	CmdUpdateScores      -> ChangeScoresUpdated      (scores-updated)
	CmdAddEvent          -> ChangeEventAdded         (event-added)
	CmdUndoEvent         -> ChangeEventRemoved       (event-removed)
	CmdResetMatch        -> ChangeMatchReset         (match-reset)
	CmdToggleAutoScoring -> ChangeAutoScoringToggled (auto-scoring-toggled)
	CmdPatchMatch        -> ChangeMatchUpdated       (match-data)
*/

type Command struct {
	Type    CommandType
	ScoreA  int
	ScoreB  int
	Event   EventInput
	Enabled bool
	Patch   MatchPatch
}

type ChangeType string

const (
	ChangeScoresUpdated      ChangeType = "ScoresUpdated"
	ChangeEventAdded         ChangeType = "EventAdded"
	ChangeEventRemoved       ChangeType = "EventRemoved"
	ChangeMatchReset         ChangeType = "MatchReset"
	ChangeAutoScoringToggled ChangeType = "AutoScoringToggled"
	ChangeMatchUpdated       ChangeType = "MatchUpdated"
)

// Change describes what an accepted command did to the match.
type Change struct {
	Type    ChangeType
	Event   *Event // added or removed event
	Enabled bool
}

// Apply validates cmd against m and returns the resulting match. On error the
// returned match is m, unchanged. Apply never mutates m's event log in place.
func Apply(m Match, cmd Command, now time.Time) (Change, Match, error) {
	next := m

	switch cmd.Type {
	case CmdUpdateScores:
		if err := checkScores(cmd.ScoreA, cmd.ScoreB); err != nil {
			return Change{}, m, err
		}
		next.ScoreA = cmd.ScoreA
		next.ScoreB = cmd.ScoreB
		touch(&next, now)
		return Change{Type: ChangeScoresUpdated}, next, nil

	case CmdAddEvent:
		in := cmd.Event
		if err := validateEventInput(in); err != nil {
			return Change{}, m, err
		}

		ev := Event{
			Time:      in.Time,
			WhoScored: in.WhoScored,
			RefCall:   in.RefCall,
			ScoreA:    in.ScoreA,
			ScoreB:    in.ScoreB,
			CreatedBy: in.CreatedBy,
			Timestamp: now,
		}
		if ev.Time == "" {
			ev.Time = TimeLabel(now)
		}
		if ev.CreatedBy == "" {
			ev.CreatedBy = DefaultCreator
		}

		// Absolute assignment: the client reports the score it believes is now current.
		switch in.RefCall {
		case RefPointLeft:
			next.ScoreA = in.ScoreA
		case RefPointRight:
			next.ScoreB = in.ScoreB
		}

		next.EventLog = append([]Event{ev}, m.EventLog...)
		touch(&next, now)
		return Change{Type: ChangeEventAdded, Event: &ev}, next, nil

	case CmdUndoEvent:
		if len(m.EventLog) == 0 {
			return Change{}, m, ErrEmptyLog
		}

		removed := m.EventLog[0]
		next.EventLog = cloneEvents(m.EventLog[1:])

		switch removed.RefCall {
		case RefPointLeft:
			next.ScoreA = max(0, next.ScoreA-1)
		case RefPointRight:
			next.ScoreB = max(0, next.ScoreB-1)
		}
		touch(&next, now)
		return Change{Type: ChangeEventRemoved, Event: &removed}, next, nil

	case CmdResetMatch:
		next.ScoreA = 0
		next.ScoreB = 0
		next.EventLog = []Event{}
		touch(&next, now)
		return Change{Type: ChangeMatchReset}, next, nil

	case CmdToggleAutoScoring:
		next.AutoScoringEnabled = cmd.Enabled
		touch(&next, now)
		return Change{Type: ChangeAutoScoringToggled, Enabled: cmd.Enabled}, next, nil

	case CmdPatchMatch:
		if err := applyPatch(&next, cmd.Patch); err != nil {
			return Change{}, m, err
		}
		touch(&next, now)
		return Change{Type: ChangeMatchUpdated}, next, nil

	default:
		return Change{}, m, fmt.Errorf("%w: %q", ErrUnsupportedCommand, cmd.Type)
	}
}

func validateEventInput(in EventInput) error {
	if in.WhoScored == "" {
		return fmt.Errorf("%w: whoScored is required", ErrValidation)
	}
	if in.RefCall == "" {
		return fmt.Errorf("%w: refCall is required", ErrValidation)
	}
	if !in.RefCall.Known() {
		return fmt.Errorf("%w: unknown refCall %q", ErrValidation, in.RefCall)
	}
	return checkScores(in.ScoreA, in.ScoreB)
}

func checkScores(a, b int) error {
	if a < 0 || b < 0 {
		return fmt.Errorf("%w: scores must not be negative", ErrValidation)
	}
	return nil
}

func applyPatch(m *Match, p MatchPatch) error {
	if p.ScoreA != nil && *p.ScoreA < 0 || p.ScoreB != nil && *p.ScoreB < 0 {
		return fmt.Errorf("%w: scores must not be negative", ErrValidation)
	}
	if p.SetNumber != nil && *p.SetNumber < 1 {
		return fmt.Errorf("%w: setNumber must be at least 1", ErrValidation)
	}

	if p.Title != nil {
		m.Title = *p.Title
	}
	if p.VideoID != nil {
		m.VideoID = *p.VideoID
	}
	if p.TeamA != nil {
		m.TeamA = *p.TeamA
	}
	if p.TeamB != nil {
		m.TeamB = *p.TeamB
	}
	if p.ScoreA != nil {
		m.ScoreA = *p.ScoreA
	}
	if p.ScoreB != nil {
		m.ScoreB = *p.ScoreB
	}
	if p.SetNumber != nil {
		m.SetNumber = *p.SetNumber
	}
	if p.IsLive != nil {
		m.IsLive = *p.IsLive
	}
	if p.AutoScoringEnabled != nil {
		m.AutoScoringEnabled = *p.AutoScoringEnabled
	}
	return nil
}

func touch(m *Match, now time.Time) {
	m.LastUpdated = now
	m.UpdatedAt = now
}
