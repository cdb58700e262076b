package room

import (
	"context"
	"errors"

	"github.com/DoyleJ11/scoreboard-relay/internal/engine"
	"github.com/DoyleJ11/scoreboard-relay/pkg/types"
)

// Join registers member and returns the snapshot that was pushed to it.
func (r *Room) Join(ctx context.Context, member Subscriber, create bool) (engine.Match, error) {
	reply := make(chan JoinResult, 1)
	res, err := call(ctx, r, Join{Member: member, Create: create, Reply: reply}, reply)
	if err != nil {
		return engine.Match{}, err
	}
	return res.Match, res.Err
}

// Leave is best effort: a stopped room has no members to remove.
func (r *Room) Leave(ctx context.Context, memberID string) {
	select {
	case r.inbox <- Leave{MemberID: memberID}:
	case <-r.ctx.Done():
	case <-ctx.Done():
	}
}

// Do applies cmd and waits for the outcome. Rejections have already been
// reported to from by the time Do returns.
func (r *Room) Do(ctx context.Context, cmd engine.Command, from Subscriber) (Result, error) {
	reply := make(chan Result, 1)
	res, err := call(ctx, r, FromClient{Cmd: cmd, From: from, Reply: reply}, reply)
	if err != nil {
		return Result{}, err
	}
	return res, res.Err
}

func (r *Room) Gesture(ctx context.Context, label string, auto bool, from Subscriber) (Result, error) {
	reply := make(chan Result, 1)
	res, err := call(ctx, r, Gesture{Label: label, Auto: auto, From: from, Reply: reply}, reply)
	if err != nil {
		return Result{}, err
	}
	return res, res.Err
}

func (r *Room) Delete(ctx context.Context) error {
	reply := make(chan Result, 1)
	res, err := call(ctx, r, Delete{Reply: reply}, reply)
	if err != nil {
		return err
	}
	return res.Err
}

func (r *Room) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	return call(ctx, r, GetState{Reply: reply}, reply)
}

// call delivers msg and waits for its reply. A room that stops before
// answering yields ErrRoomClosed; the message was not applied.
func call[T any](ctx context.Context, r *Room, msg Msg, reply chan T) (T, error) {
	var zero T
	select {
	case r.inbox <- msg:
	case <-r.ctx.Done():
		return zero, ErrRoomClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case res := <-reply:
		return res, nil
	case <-r.ctx.Done():
		select {
		case res := <-reply:
			return res, nil
		default:
			return zero, ErrRoomClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// ErrorMessage is the text sent to a client whose command failed.
func ErrorMessage(action string, err error) string {
	switch {
	case errors.Is(err, engine.ErrMatchNotFound):
		return "Match not found"
	case errors.Is(err, engine.ErrEmptyLog):
		return "No events to undo"
	case errors.Is(err, engine.ErrValidation), errors.Is(err, engine.ErrUnsupportedCommand):
		return err.Error()
	default:
		return "Failed to " + action
	}
}

// Command labels for operations that have no wire event of their own.
const (
	cmdUpdateMatch = "update-match"
	cmdDeleteMatch = "delete-match"
)

// commandEvent names t the way the wire protocol does, for metric labels.
func commandEvent(t engine.CommandType) string {
	switch t {
	case engine.CmdUpdateScores:
		return types.EvtUpdateScores
	case engine.CmdAddEvent:
		return types.EvtAddEvent
	case engine.CmdUndoEvent:
		return types.EvtUndoEvent
	case engine.CmdResetMatch:
		return types.EvtResetMatch
	case engine.CmdToggleAutoScoring:
		return types.EvtToggleAutoScoring
	default:
		return cmdUpdateMatch
	}
}

func actionFor(t engine.CommandType) string {
	switch t {
	case engine.CmdUpdateScores:
		return "update scores"
	case engine.CmdAddEvent:
		return "add event"
	case engine.CmdUndoEvent:
		return "undo event"
	case engine.CmdResetMatch:
		return "reset match"
	case engine.CmdToggleAutoScoring:
		return "toggle auto-scoring"
	default:
		return "update match"
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, engine.ErrMatchNotFound):
		return "not_found"
	case errors.Is(err, engine.ErrEmptyLog):
		return "empty_log"
	case errors.Is(err, engine.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, types.ServerMessage) {}

type nopRecorder struct{}

func (nopRecorder) Command(string, string) {}
func (nopRecorder) Broadcast(string, int)  {}
func (nopRecorder) MemberDropped()         {}
