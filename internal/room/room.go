package room

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/scoreboard-relay/internal/engine"
	"github.com/DoyleJ11/scoreboard-relay/internal/store"
	"github.com/DoyleJ11/scoreboard-relay/pkg/types"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var ErrRoomClosed = errors.New("room closed")

// Subscriber is one connection's view of a room. Send must not block; a
// false return means the subscriber cannot keep up and will be dropped.
type Subscriber interface {
	ID() string
	Send(msg types.ServerMessage) bool
	Close()
}

// Publisher receives every message broadcast to a room.
type Publisher interface {
	Publish(matchID string, msg types.ServerMessage)
}

type Recorder interface {
	Command(command, outcome string)
	Broadcast(event string, members int)
	MemberDropped()
}

type Msg interface{ isRoomMsg() }

type Join struct {
	Member Subscriber
	Create bool // create a default match when the id is unknown
	Reply  chan JoinResult
}

func (Join) isRoomMsg() {}

type JoinResult struct {
	Match engine.Match
	Err   error
}

type Leave struct{ MemberID string }

func (Leave) isRoomMsg() {}

// FromClient carries a state-mutating command. From may be nil for
// commands that did not arrive over a connection.
type FromClient struct {
	Cmd   engine.Command
	From  Subscriber
	Reply chan Result
}

func (FromClient) isRoomMsg() {}

type Gesture struct {
	Label string
	Auto  bool // allow the label to score when auto-scoring is enabled
	From  Subscriber
	Reply chan Result
}

func (Gesture) isRoomMsg() {}

type Delete struct {
	Reply chan Result
}

func (Delete) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type Result struct {
	Change engine.Change
	Match  engine.Match
	Err    error
}

type View struct {
	MatchID    string
	NumMembers int
}

type Config struct {
	Store    *store.Store
	Feed     Publisher
	Metrics  Recorder
	Log      *zap.Logger
	Clock    clockwork.Clock
	IdleTTL  time.Duration // 0 keeps a room for a stored match until shutdown
	InboxLen int
	// OnIdle is called from the room goroutine just before the room stops on
	// its own, either idle or left empty for a match the store does not have.
	OnIdle func(*Room)
}

type Room struct {
	matchID    string
	inbox      chan Msg
	members    map[string]Subscriber
	lastActive time.Time
	missing    bool // last store access found no match
	cfg        Config
	log        *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewRoom(parent context.Context, matchID string, cfg Config) *Room {
	ctx, cancel := context.WithCancel(parent)

	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Feed == nil {
		cfg.Feed = nopPublisher{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopRecorder{}
	}
	if cfg.InboxLen <= 0 {
		cfg.InboxLen = 64
	}

	r := &Room{
		matchID:    matchID,
		inbox:      make(chan Msg, cfg.InboxLen),
		members:    make(map[string]Subscriber),
		lastActive: cfg.Clock.Now(),
		cfg:        cfg,
		log:        cfg.Log.With(zap.String("match_id", matchID)),
		ctx:        ctx,
		cancel:     cancel,
	}

	go r.loop()
	return r
}

func (r *Room) MatchID() string { return r.matchID }

// Inbox exposes the room inbox so tests or the transport layer can send messages.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the room has stopped processing messages.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

func (r *Room) loop() {
	var idle <-chan time.Time
	if r.cfg.IdleTTL > 0 {
		ticker := r.cfg.Clock.NewTicker(max(r.cfg.IdleTTL/2, 10*time.Millisecond))
		defer ticker.Stop()
		idle = ticker.Chan()
	}

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case <-idle:
			if len(r.members) > 0 || len(r.inbox) > 0 {
				continue
			}
			if r.cfg.Clock.Since(r.lastActive) < r.cfg.IdleTTL {
				continue
			}
			r.log.Debug("room idle, stopping")
			r.stop()
			return

		case m := <-r.inbox:
			r.lastActive = r.cfg.Clock.Now()

			switch msg := m.(type) {
			case Join:
				msg.Reply <- r.join(msg)

			case Leave:
				if _, ok := r.members[msg.MemberID]; ok {
					delete(r.members, msg.MemberID)
					r.log.Debug("member left", zap.String("member_id", msg.MemberID), zap.Int("members", len(r.members)))
				}

			case FromClient:
				res := r.apply(msg.Cmd, msg.From)
				if msg.Reply != nil {
					msg.Reply <- res
				}

			case Gesture:
				res := r.gesture(msg)
				if msg.Reply != nil {
					msg.Reply <- res
				}

			case Delete:
				err := r.cfg.Store.Delete(r.ctx, r.matchID)
				r.cfg.Metrics.Command(cmdDeleteMatch, outcome(err))
				r.track(err)
				if err == nil {
					r.missing = true
				}
				msg.Reply <- Result{Err: err}

			case GetState:
				// test-only: reflect internal state without data races
				msg.Reply <- View{MatchID: r.matchID, NumMembers: len(r.members)}

			case Shutdown:
				r.shutdown()
				return
			}

			if r.missing && len(r.members) == 0 && len(r.inbox) == 0 {
				r.log.Debug("no such match, stopping")
				r.stop()
				return
			}
		}
	}
}

// track records whether the store still has the match.
func (r *Room) track(err error) {
	switch {
	case err == nil:
		r.missing = false
	case errors.Is(err, engine.ErrMatchNotFound):
		r.missing = true
	}
}

func (r *Room) join(msg Join) JoinResult {
	var (
		m   engine.Match
		err error
	)
	if msg.Create {
		m, _, err = r.cfg.Store.Ensure(r.ctx, r.matchID)
	} else {
		m, err = r.cfg.Store.Get(r.ctx, r.matchID)
	}
	r.cfg.Metrics.Command(types.EvtJoinMatch, outcome(err))
	r.track(err)
	if err != nil {
		r.reject(msg.Member, "join match", err)
		return JoinResult{Err: err}
	}

	id := msg.Member.ID()
	r.members[id] = msg.Member
	if !msg.Member.Send(types.ServerMessage{Event: types.EvtMatchData, Data: m}) {
		r.drop(id, msg.Member)
	}
	r.log.Info("member joined", zap.String("member_id", id), zap.Int("members", len(r.members)))
	return JoinResult{Match: m}
}

// apply runs cmd through the engine against the stored match and, when it is
// accepted, broadcasts the outcome to every member.
func (r *Room) apply(cmd engine.Command, from Subscriber) Result {
	var change engine.Change
	m, err := r.cfg.Store.Mutate(r.ctx, r.matchID, func(cur engine.Match, now time.Time) (engine.Match, error) {
		c, next, err := engine.Apply(cur, cmd, now)
		change = c
		return next, err
	})
	r.cfg.Metrics.Command(commandEvent(cmd.Type), outcome(err))
	r.track(err)
	if err != nil {
		r.log.Debug("command rejected", zap.String("command", string(cmd.Type)), zap.Error(err))
		r.reject(from, actionFor(cmd.Type), err)
		return Result{Err: err}
	}

	r.broadcast(messageFor(change, m))
	return Result{Change: change, Match: m}
}

func (r *Room) gesture(msg Gesture) Result {
	m, err := r.cfg.Store.Get(r.ctx, r.matchID)
	r.cfg.Metrics.Command(types.EvtGestureDetected, outcome(err))
	r.track(err)
	if err != nil {
		r.reject(msg.From, "relay gesture", err)
		return Result{Err: err}
	}

	r.broadcast(types.ServerMessage{Event: types.EvtGestureUpdate, Data: types.GestureUpdate{Gesture: msg.Label}})
	if !msg.Auto {
		return Result{Match: m}
	}

	in, ok := engine.AutoScore(m, msg.Label, r.cfg.Store.Now())
	if !ok {
		return Result{Match: m}
	}
	r.log.Info("auto-scoring gesture", zap.String("gesture", msg.Label))
	return r.apply(engine.Command{Type: engine.CmdAddEvent, Event: in}, msg.From)
}

func (r *Room) broadcast(msg types.ServerMessage) {
	for id, s := range r.members {
		if !s.Send(msg) {
			r.drop(id, s)
		}
	}
	r.cfg.Metrics.Broadcast(msg.Event, len(r.members))
	r.cfg.Feed.Publish(r.matchID, msg)
}

// drop removes a member whose outbox is full; it has to re-join to re-sync.
func (r *Room) drop(id string, s Subscriber) {
	delete(r.members, id)
	s.Close()
	r.cfg.Metrics.MemberDropped()
	r.log.Warn("slow member dropped", zap.String("member_id", id))
}

func (r *Room) reject(to Subscriber, action string, err error) {
	if to == nil {
		return
	}
	to.Send(types.Error(ErrorMessage(action, err)))
}

// stop deregisters the room through OnIdle and shuts it down.
func (r *Room) stop() {
	if r.cfg.OnIdle != nil {
		r.cfg.OnIdle(r)
	}
	r.shutdown()
}

func (r *Room) shutdown() {
	for id, s := range r.members {
		s.Close()
		delete(r.members, id)
	}
	r.cancel()
}

func messageFor(c engine.Change, m engine.Match) types.ServerMessage {
	switch c.Type {
	case engine.ChangeScoresUpdated:
		return types.ServerMessage{Event: types.EvtScoresUpdated, Data: types.ScoresUpdated{ScoreA: m.ScoreA, ScoreB: m.ScoreB}}
	case engine.ChangeEventAdded:
		return types.ServerMessage{Event: types.EvtEventAdded, Data: types.EventAdded{Event: *c.Event, UpdatedMatch: m}}
	case engine.ChangeEventRemoved:
		return types.ServerMessage{Event: types.EvtEventRemoved, Data: types.EventRemoved{RemovedEvent: *c.Event, UpdatedMatch: m}}
	case engine.ChangeMatchReset:
		return types.ServerMessage{Event: types.EvtMatchReset, Data: m}
	case engine.ChangeAutoScoringToggled:
		return types.ServerMessage{Event: types.EvtAutoScoringToggled, Data: types.AutoScoringToggled{Enabled: c.Enabled}}
	default:
		return types.ServerMessage{Event: types.EvtMatchData, Data: m}
	}
}
