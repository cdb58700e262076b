package session

import (
	"sync"

	"github.com/DoyleJ11/scoreboard-relay/pkg/types"
)

// Peer is the room-facing half of a connection: a bounded outbox the
// transport drains, and a done channel closed when the room gives up on it.
type Peer struct {
	id   string
	out  chan types.ServerMessage
	done chan struct{}
	once sync.Once
}

func NewPeer(id string, outboxSize int) *Peer {
	if outboxSize <= 0 {
		outboxSize = 32
	}
	return &Peer{
		id:   id,
		out:  make(chan types.ServerMessage, outboxSize),
		done: make(chan struct{}),
	}
}

func (p *Peer) ID() string { return p.id }

// Send never blocks. It reports false once the outbox is full or the peer
// has been closed.
func (p *Peer) Send(msg types.ServerMessage) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.out <- msg:
		return true
	default:
		return false
	}
}

// Close is safe to call more than once and from any goroutine. The outbox
// itself is never closed; readers select on Done.
func (p *Peer) Close() {
	p.once.Do(func() { close(p.done) })
}

func (p *Peer) Outbox() <-chan types.ServerMessage { return p.out }

func (p *Peer) Done() <-chan struct{} { return p.done }
