package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/DoyleJ11/scoreboard-relay/internal/hub"
	"github.com/DoyleJ11/scoreboard-relay/internal/session"
	"github.com/DoyleJ11/scoreboard-relay/pkg/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConnGauge tracks open websocket connections.
type ConnGauge interface {
	ConnOpened()
	ConnClosed()
}

type Options struct {
	AutoCreate     bool
	OutboxSize     int
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration // 0 waits forever
	PingInterval   time.Duration // 0 disables pings; no pong within WriteTimeout ends the connection
	OriginPatterns []string
	Conns          ConnGauge
	Log            *zap.Logger
}

func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	log := opts.Log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		if opts.Conns != nil {
			opts.Conns.ConnOpened()
			defer opts.Conns.ConnClosed()
		}

		connID := uuid.NewString()
		clog := log.With(zap.String("conn_id", connID))
		peer := session.NewPeer(connID, opts.OutboxSize)
		sess := session.New(h, peer, session.Config{AutoCreate: opts.AutoCreate, Log: clog})
		clog.Info("client connected", zap.String("remote", r.RemoteAddr))

		defer func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), opts.WriteTimeout)
			defer closeCancel()
			sess.Close(closeCtx)
			clog.Info("client disconnected")
		}()
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine
		go func() {
			defer cancel()
			var ping <-chan time.Time
			if opts.PingInterval > 0 {
				ticker := time.NewTicker(opts.PingInterval)
				defer ticker.Stop()
				ping = ticker.C
			}
			for {
				select {
				case <-ping:
					pctx, pcancel := context.WithTimeout(ctx, opts.WriteTimeout)
					err := conn.Ping(pctx)
					pcancel()
					if err != nil {
						clog.Debug("ping failed", zap.Error(err))
						return
					}
				case msg := <-peer.Outbox():
					payload, err := json.Marshal(msg)
					if err != nil {
						clog.Error("encode message", zap.String("event", msg.Event), zap.Error(err))
						continue
					}
					wctx, wcancel := context.WithTimeout(ctx, opts.WriteTimeout)
					err = conn.Write(wctx, websocket.MessageText, payload)
					wcancel()
					if err != nil {
						clog.Debug("write failed", zap.Error(err))
						return
					}
				case <-peer.Done():
					if ctx.Err() != nil {
						return
					}
					// dropped by its room
					_ = conn.Close(websocket.StatusPolicyViolation, "client too slow, re-join to resync")
					return
				case <-ctx.Done():
					return
				}
			}
		}()

		// Reader loop
		for {
			rctx, rcancel := ctx, context.CancelFunc(func() {})
			if opts.ReadTimeout > 0 {
				rctx, rcancel = context.WithTimeout(ctx, opts.ReadTimeout)
			}
			_, data, err := conn.Read(rctx)
			rcancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					clog.Debug("read failed", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil || cm.Event == "" {
				peer.Send(types.Error("invalid message"))
				continue
			}

			if err := sess.Handle(ctx, cm); err != nil {
				clog.Debug("command not applied", zap.String("event", cm.Event), zap.Error(err))
			}
		}
	}
}
