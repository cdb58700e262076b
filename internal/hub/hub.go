package hub

import (
	"context"
	"errors"

	"github.com/DoyleJ11/scoreboard-relay/internal/room"
	"go.uber.org/zap"
)

// retries bounds how often Do re-resolves a room that stopped under it.
const retries = 3

type HubMsg interface{ isHubMsg() }

type EnsureRoom struct {
	MatchID string
	Reply   chan *room.Room
}

type GetRoom struct {
	MatchID string
	Reply   chan *room.Room // nil when no room is running
}

// RemoveRoom deregisters Room only if it is still the registered one for MatchID.
type RemoveRoom struct {
	MatchID string
	Room    *room.Room
}

// MoveMember records that MemberID now belongs to MatchID.
type MoveMember struct {
	MemberID string
	MatchID  string
	Reply    chan Moved
}

type Moved struct {
	Prev *room.Room // room the member has to leave, nil if none or same match
	Next *room.Room
}

type ForgetMember struct {
	MemberID string
	Reply    chan *room.Room // room the member was in, may be nil
}

type GetStats struct {
	Reply chan Stats
}

type Stats struct {
	Rooms   int
	Members int
}

type ShutdownHub struct{}

func (EnsureRoom) isHubMsg()   {}
func (GetRoom) isHubMsg()      {}
func (RemoveRoom) isHubMsg()   {}
func (MoveMember) isHubMsg()   {}
func (ForgetMember) isHubMsg() {}
func (GetStats) isHubMsg()     {}
func (ShutdownHub) isHubMsg()  {}

// Gauge is told the number of running rooms whenever it changes.
type Gauge interface {
	SetRooms(n int)
}

type Config struct {
	// Room is the template for every room; OnIdle is owned by the hub.
	Room  room.Config
	Gauge Gauge
	Log   *zap.Logger
}

type Hub struct {
	inbox   chan HubMsg
	rooms   map[string]*room.Room
	members map[string]string // memberID -> matchID
	cfg     Config
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, cfg Config) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		rooms:   make(map[string]*room.Room),
		members: make(map[string]string),
		cfg:     cfg,
		log:     cfg.Log.Named("hub"),
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed after the hub has stopped.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			// rooms share h.ctx as parent and stop on their own
			clear(h.rooms)
			clear(h.members)
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureRoom:
				msg.Reply <- h.ensure(msg.MatchID)

			case GetRoom:
				msg.Reply <- h.live(msg.MatchID)

			case RemoveRoom:
				if cur := h.rooms[msg.MatchID]; cur != nil && cur == msg.Room {
					delete(h.rooms, msg.MatchID)
					h.log.Debug("room removed", zap.String("match_id", msg.MatchID))
					h.roomsChanged()
				}

			case MoveMember:
				var prev *room.Room
				if old, ok := h.members[msg.MemberID]; ok && old != msg.MatchID {
					prev = h.live(old)
				}
				h.members[msg.MemberID] = msg.MatchID
				msg.Reply <- Moved{Prev: prev, Next: h.ensure(msg.MatchID)}

			case ForgetMember:
				var prev *room.Room
				if old, ok := h.members[msg.MemberID]; ok {
					prev = h.live(old)
					delete(h.members, msg.MemberID)
				}
				msg.Reply <- prev

			case GetStats:
				msg.Reply <- Stats{Rooms: len(h.rooms), Members: len(h.members)}

			case ShutdownHub:
				h.cancel()
			}
		}
	}
}

// live returns the registered room for id unless it has already stopped.
func (h *Hub) live(id string) *room.Room {
	rm := h.rooms[id]
	if rm == nil {
		return nil
	}
	select {
	case <-rm.Done():
		delete(h.rooms, id)
		h.roomsChanged()
		return nil
	default:
		return rm
	}
}

func (h *Hub) ensure(id string) *room.Room {
	if rm := h.live(id); rm != nil {
		return rm
	}

	cfg := h.cfg.Room
	cfg.OnIdle = func(rm *room.Room) {
		// runs on the room goroutine
		select {
		case h.inbox <- RemoveRoom{MatchID: id, Room: rm}:
		case <-h.ctx.Done():
		}
	}
	rm := room.NewRoom(h.ctx, id, cfg)
	h.rooms[id] = rm
	h.log.Debug("room started", zap.String("match_id", id))
	h.roomsChanged()
	return rm
}

func (h *Hub) roomsChanged() {
	if h.cfg.Gauge != nil {
		h.cfg.Gauge.SetRooms(len(h.rooms))
	}
}

// ask sends msg and waits for its reply, giving up when the hub stops.
func ask[T any](ctx context.Context, h *Hub, msg HubMsg, reply chan T) (T, error) {
	var zero T
	select {
	case h.inbox <- msg:
	case <-h.ctx.Done():
		return zero, room.ErrRoomClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case res := <-reply:
		return res, nil
	case <-h.ctx.Done():
		return zero, room.ErrRoomClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Room returns the running room for matchID, starting one if needed.
func (h *Hub) Room(ctx context.Context, matchID string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	return ask(ctx, h, EnsureRoom{MatchID: matchID, Reply: reply}, reply)
}

// Lookup returns the running room for matchID or nil.
func (h *Hub) Lookup(ctx context.Context, matchID string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	return ask(ctx, h, GetRoom{MatchID: matchID, Reply: reply}, reply)
}

// Do runs fn against the room for matchID. A room that stops before taking
// the message is replaced and fn is tried again.
func (h *Hub) Do(ctx context.Context, matchID string, fn func(*room.Room) error) error {
	var err error
	for i := 0; i < retries; i++ {
		var rm *room.Room
		rm, err = h.Room(ctx, matchID)
		if err != nil {
			return err
		}
		err = fn(rm)
		if !errors.Is(err, room.ErrRoomClosed) {
			return err
		}
		select {
		case <-h.ctx.Done():
			return err
		default:
		}
	}
	return err
}

func (h *Hub) Move(ctx context.Context, memberID, matchID string) (Moved, error) {
	reply := make(chan Moved, 1)
	return ask(ctx, h, MoveMember{MemberID: memberID, MatchID: matchID, Reply: reply}, reply)
}

func (h *Hub) Forget(ctx context.Context, memberID string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	return ask(ctx, h, ForgetMember{MemberID: memberID, Reply: reply}, reply)
}

func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	return ask(ctx, h, GetStats{Reply: reply}, reply)
}

// Shutdown stops the hub and every room it started.
func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.ctx.Done():
	}
	<-h.ctx.Done()
}
