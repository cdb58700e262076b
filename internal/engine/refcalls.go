package engine

import (
	"slices"
	"time"
)

type RefCall string

const (
	RefPointLeft    RefCall = "Point Left"
	RefPointRight   RefCall = "Point Right"
	RefBallOut      RefCall = "Ball Out"
	RefTimeout      RefCall = "Timeout"
	RefSubstitution RefCall = "Substitution"
	RefNetTouch     RefCall = "Net Touch"
	RefOther        RefCall = "Other"
	RefTest         RefCall = "Test"
)

// RefereeCalls is the vocabulary offered to observers, in display order.
var RefereeCalls = []RefCall{
	RefPointLeft,
	RefPointRight,
	RefBallOut,
	RefTimeout,
	RefSubstitution,
	RefNetTouch,
	RefOther,
}

func (c RefCall) Known() bool {
	return c == RefTest || slices.Contains(RefereeCalls, c)
}

func (c RefCall) Scoring() bool {
	return c == RefPointLeft || c == RefPointRight
}

// AutoScore turns a classified gesture into the event an observer would have
// logged for it. ok is false when auto-scoring is off or the gesture is not a
// scoring call.
func AutoScore(m Match, gesture string, now time.Time) (EventInput, bool) {
	call := RefCall(gesture)
	if !m.AutoScoringEnabled || !call.Scoring() {
		return EventInput{}, false
	}

	in := EventInput{
		Time:      TimeLabel(now),
		RefCall:   call,
		ScoreA:    m.ScoreA,
		ScoreB:    m.ScoreB,
		CreatedBy: "gesture",
	}
	if call == RefPointLeft {
		in.WhoScored = m.TeamA
		in.ScoreA++
	} else {
		in.WhoScored = m.TeamB
		in.ScoreB++
	}
	return in, true
}
