package engine

import (
	"slices"
	"time"
)

const DefaultCreator = "system"

// MatchInit holds the caller-supplied fields of a new match.
type MatchInit struct {
	Title     string `json:"title"`
	VideoID   string `json:"videoId"`
	TeamA     string `json:"teamA"`
	TeamB     string `json:"teamB"`
	CreatedBy string `json:"createdBy,omitempty"`
}

func NewMatch(id string, init MatchInit, now time.Time) Match {
	m := Match{
		MatchID:            id,
		Title:              init.Title,
		VideoID:            init.VideoID,
		TeamA:              init.TeamA,
		TeamB:              init.TeamB,
		SetNumber:          1,
		IsLive:             true,
		AutoScoringEnabled: true,
		EventLog:           []Event{},
		LastUpdated:        now,
		CreatedBy:          init.CreatedBy,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if m.TeamA == "" {
		m.TeamA = "Team A"
	}
	if m.TeamB == "" {
		m.TeamB = "Team B"
	}
	if m.Title == "" {
		m.Title = m.TeamA + " vs " + m.TeamB
	}
	if m.CreatedBy == "" {
		m.CreatedBy = DefaultCreator
	}
	return m
}

// Clone returns a copy of m that shares no slice memory with it.
func (m Match) Clone() Match {
	c := m
	c.EventLog = cloneEvents(m.EventLog)
	return c
}

func cloneEvents(events []Event) []Event {
	if events == nil {
		return []Event{}
	}
	return slices.Clone(events)
}

// TimeLabel formats the wall-clock label stored on events.
func TimeLabel(t time.Time) string {
	return t.Format("3:04:05 PM")
}
