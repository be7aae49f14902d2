package protocol

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/replicast/replicast/utils"
)

const wsWriteWait = 10 * time.Second

// WSGate accepts websocket peers (typically browser-hosted sessions)
// and pumps them through the same install/feed/drain contract as the
// raw TCP transport. Envelopes travel as binary messages, one batch
// per message.
type WSGate struct {
	closed atomic.Bool
	wg     sync.WaitGroup

	log       utils.Logger
	onInstall InstallCallback
	onDestroy DestroyCallback
	upgrader  websocket.Upgrader
}

func NewWSGate(log utils.Logger, install InstallCallback, destroy DestroyCallback) *WSGate {
	return &WSGate{
		log:       log,
		onInstall: install,
		onDestroy: destroy,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  TypicalMTU,
			WriteBufferSize: TypicalMTU,
		},
	}
}

func (g *WSGate) Close() error {
	g.closed.Store(true)
	g.wg.Wait()
	return nil
}

func (g *WSGate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.closed.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Error("ws: upgrade failed", "remoteAddr", r.RemoteAddr, "err", err)
		return
	}

	name := fmt.Sprintf("ws:%s:%s", uuid.Must(uuid.NewV7()).String(), r.RemoteAddr)
	g.log.Info("ws: accepted connection", "name", name)

	g.wg.Add(1)
	defer g.wg.Done()
	g.keepConn(r.Context(), name, conn)
}

func (g *WSGate) keepConn(ctx context.Context, name string, conn *websocket.Conn) {
	inout := g.onInstall(name)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeLock sync.Mutex // gorilla allows one concurrent writer

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer cancel()
		for ctx.Err() == nil && !g.closed.Load() {
			recs, err := inout.Feed(ctx)
			if err != nil {
				return
			}
			writeLock.Lock()
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err = conn.WriteMessage(websocket.BinaryMessage, recs.Join())
			writeLock.Unlock()
			if err != nil {
				g.log.Error("ws: write failed", "name", name, "err", err)
				return
			}
		}
	}()

	for ctx.Err() == nil && !g.closed.Load() {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.log.Error("ws: read failed", "name", name, "err", err)
			}
			break
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		buf := bytes.NewBuffer(msg)
		recs, err := Split(buf)
		if err != nil {
			g.log.Error("ws: bad frame", "name", name, "err", err)
			break
		}
		if err = inout.Drain(ctx, recs); err != nil {
			g.log.Error("ws: drain failed", "name", name, "err", err)
			break
		}
	}

	cancel()
	conn.Close()
	g.onDestroy(name, inout)
}
