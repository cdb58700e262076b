package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/DoyleJ11/scoreboard-relay/internal/engine"
	"github.com/DoyleJ11/scoreboard-relay/internal/hub"
	"github.com/DoyleJ11/scoreboard-relay/internal/room"
	"github.com/DoyleJ11/scoreboard-relay/pkg/types"
	"go.uber.org/zap"
)

var (
	ErrNotJoined    = errors.New("join a match first")
	ErrClosed       = errors.New("session closed")
	ErrUnknownEvent = errors.New("unknown event")
)

type State int

const (
	Unjoined State = iota
	Joined
	Closed
)

func (s State) String() string {
	switch s {
	case Unjoined:
		return "unjoined"
	case Joined:
		return "joined"
	default:
		return "closed"
	}
}

// joinAttempts bounds retries when the target room stops mid-join.
const joinAttempts = 3

type Config struct {
	// AutoCreate lets join-match create a default match for an unknown id.
	AutoCreate bool
	Log        *zap.Logger
}

// Session dispatches one connection's inbound events. It is not safe for
// concurrent use; the transport calls Handle from its read loop only.
type Session struct {
	peer    *Peer
	hub     *hub.Hub
	cfg     Config
	log     *zap.Logger
	state   State
	matchID string
}

func New(h *hub.Hub, peer *Peer, cfg Config) *Session {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Session{
		peer: peer,
		hub:  h,
		cfg:  cfg,
		log:  cfg.Log.With(zap.String("conn_id", peer.ID())),
	}
}

func (s *Session) State() State    { return s.state }
func (s *Session) MatchID() string { return s.matchID }
func (s *Session) Peer() *Peer     { return s.peer }

// Handle processes one inbound message. Failures are reported to the peer as
// an error event and also returned; none of them end the session.
func (s *Session) Handle(ctx context.Context, msg types.ClientMessage) error {
	if s.state == Closed {
		return ErrClosed
	}

	switch msg.Event {
	case types.EvtJoinMatch:
		return s.join(ctx, msg.Data)
	case types.EvtLeaveMatch:
		s.leave(ctx)
		return nil
	}

	if s.state != Joined {
		return s.fail(ErrNotJoined)
	}

	switch msg.Event {
	case types.EvtUpdateScores:
		var p types.UpdateScores
		if err := s.decode(msg, &p); err != nil {
			return err
		}
		return s.do(ctx, msg.Event, engine.Command{Type: engine.CmdUpdateScores, ScoreA: p.ScoreA, ScoreB: p.ScoreB})

	case types.EvtAddEvent:
		var p types.AddEvent
		if err := s.decode(msg, &p); err != nil {
			return err
		}
		return s.do(ctx, msg.Event, engine.Command{Type: engine.CmdAddEvent, Event: p.Event})

	case types.EvtUndoEvent:
		var p types.MatchRef
		if err := s.decode(msg, &p); err != nil {
			return err
		}
		return s.do(ctx, msg.Event, engine.Command{Type: engine.CmdUndoEvent})

	case types.EvtResetMatch:
		var p types.MatchRef
		if err := s.decode(msg, &p); err != nil {
			return err
		}
		return s.do(ctx, msg.Event, engine.Command{Type: engine.CmdResetMatch})

	case types.EvtToggleAutoScoring:
		var p types.ToggleAutoScoring
		if err := s.decode(msg, &p); err != nil {
			return err
		}
		return s.do(ctx, msg.Event, engine.Command{Type: engine.CmdToggleAutoScoring, Enabled: p.Enabled})

	case types.EvtGestureDetected:
		var p types.GestureDetected
		if err := s.decode(msg, &p); err != nil {
			return err
		}
		if p.Gesture == "" {
			return s.fail(fmt.Errorf("%w: gesture is required", engine.ErrValidation))
		}
		return s.relayGesture(ctx, p.Gesture)

	default:
		return s.fail(fmt.Errorf("%w: %q", ErrUnknownEvent, msg.Event))
	}
}

// Close leaves the joined room, if any, and releases the peer.
func (s *Session) Close(ctx context.Context) {
	if s.state == Closed {
		return
	}
	s.leave(ctx)
	s.state = Closed
	s.peer.Close()
}

func (s *Session) join(ctx context.Context, data json.RawMessage) error {
	var p types.JoinMatch
	if err := json.Unmarshal(data, &p); err != nil {
		return s.fail(fmt.Errorf("%w: invalid join-match payload", engine.ErrValidation))
	}
	if p.MatchID == "" {
		return s.fail(fmt.Errorf("%w: matchId is required", engine.ErrValidation))
	}

	var err error
	for i := 0; i < joinAttempts; i++ {
		var mv hub.Moved
		mv, err = s.hub.Move(ctx, s.peer.ID(), p.MatchID)
		if err != nil {
			break
		}
		if mv.Prev != nil {
			mv.Prev.Leave(ctx, s.peer.ID())
		}
		_, err = mv.Next.Join(ctx, s.peer, s.cfg.AutoCreate)
		if !errors.Is(err, room.ErrRoomClosed) {
			break
		}
	}

	if err != nil {
		// a rejected join was already reported by the room
		if errors.Is(err, room.ErrRoomClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.peer.Send(types.Error(room.ErrorMessage("join match", err)))
		}
		_, _ = s.hub.Forget(ctx, s.peer.ID())
		s.state, s.matchID = Unjoined, ""
		s.log.Debug("join failed", zap.String("match_id", p.MatchID), zap.Error(err))
		return err
	}

	s.state, s.matchID = Joined, p.MatchID
	s.log.Info("joined match", zap.String("match_id", p.MatchID))
	return nil
}

func (s *Session) leave(ctx context.Context) {
	if s.state != Joined {
		return
	}
	if prev, err := s.hub.Forget(ctx, s.peer.ID()); err == nil && prev != nil {
		prev.Leave(ctx, s.peer.ID())
	}
	s.log.Info("left match", zap.String("match_id", s.matchID))
	s.state, s.matchID = Unjoined, ""
}

func (s *Session) do(ctx context.Context, event string, cmd engine.Command) error {
	return s.viaRoom(ctx, strings.ReplaceAll(event, "-", " "), func(rm *room.Room) error {
		_, err := rm.Do(ctx, cmd, s.peer)
		return err
	})
}

func (s *Session) relayGesture(ctx context.Context, label string) error {
	return s.viaRoom(ctx, "relay gesture", func(rm *room.Room) error {
		_, err := rm.Gesture(ctx, label, false, s.peer)
		return err
	})
}

// viaRoom runs fn against the joined room. Command rejections are reported by
// the room itself; only transport-level failures are reported here.
func (s *Session) viaRoom(ctx context.Context, action string, fn func(*room.Room) error) error {
	err := s.hub.Do(ctx, s.matchID, fn)
	if errors.Is(err, room.ErrRoomClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.peer.Send(types.Error(room.ErrorMessage(action, err)))
	}
	if err != nil {
		s.log.Debug("command failed", zap.String("match_id", s.matchID), zap.String("action", action), zap.Error(err))
	}
	return err
}

// decode unmarshals the payload of msg into dst and checks that the matchId
// it names, if any, is the joined one.
func (s *Session) decode(msg types.ClientMessage, dst any) error {
	if len(msg.Data) > 0 && string(msg.Data) != "null" {
		if err := json.Unmarshal(msg.Data, dst); err != nil {
			return s.fail(fmt.Errorf("%w: invalid %s payload", engine.ErrValidation, msg.Event))
		}
	}
	if id := matchIDOf(dst); id != "" && id != s.matchID {
		return s.fail(fmt.Errorf("%w: matchId %q is not the joined match", engine.ErrValidation, id))
	}
	return nil
}

func matchIDOf(v any) string {
	switch p := v.(type) {
	case *types.UpdateScores:
		return p.MatchID
	case *types.AddEvent:
		return p.MatchID
	case *types.MatchRef:
		return p.MatchID
	case *types.ToggleAutoScoring:
		return p.MatchID
	case *types.GestureDetected:
		return p.MatchID
	default:
		return ""
	}
}

func (s *Session) fail(err error) error {
	s.peer.Send(types.Error(err.Error()))
	return err
}
