package ws

import (
	"context"
	"educonnect/domain"
	"educonnect/errors"
	"educonnect/runtime"
	"educonnect/sink"
	goerrors "errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

type connection struct {
	conn     *websocket.Conn
	connID   domain.ConnectionID
	sink     *sink.ConnectionSink
	session  *runtime.Session
	presence *runtime.Presence
	limiter  *rate.Limiter
	cfg      Config
	log      *slog.Logger
}

// readPump owns the session. When it returns the connection is gone for good.
func (c *connection) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.presence.Disconnect(c.connID)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if !c.limiter.Allow() {
			c.fail(ctx, errors.ErrRateLimited)
			continue
		}
		c.handle(ctx, raw)
	}
}

func (c *connection) handle(ctx context.Context, raw []byte) {
	in, err := Decode(raw)
	if err != nil {
		c.fail(ctx, err)
		return
	}

	switch cmd := in.(type) {
	case JoinRoom:
		_, err = c.session.Join(ctx, domain.JoinRoomCommand{Room: cmd.Room})
	case LeaveRoom:
		err = c.session.Leave(ctx, domain.LeaveRoomCommand{Room: cmd.Room})
	case PostMessage:
		_, err = c.session.Post(ctx, domain.PostMessageCommand{Room: cmd.Room, Content: cmd.Content})
	}
	if err != nil {
		c.fail(ctx, err)
	}
}

// fail reports to this connection only, through the write pump like any other event.
func (c *connection) fail(ctx context.Context, err error) {
	c.log.Debug("Request failed", "error", err)
	room, _ := c.session.CurrentRoom()
	_ = c.sink.Consume(ctx, NewErrorEvent(room.ID, err))
}

func (c *connection) writePump() {
	ticker := time.NewTicker(c.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case e := <-c.sink.Events():
			raw, err := Encode(e)
			if err != nil {
				c.log.Warn("Event not encodable", "error", err)
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err = c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				c.log.Debug("Write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("Ping failed", "error", err)
				return
			}
		case <-c.sink.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *connection) logReadError(err error) {
	switch {
	case goerrors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Frame exceeded maximum size", "max_bytes", c.cfg.MaxFrameSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.log.Debug("Client disconnected")
	case goerrors.Is(err, io.EOF), goerrors.Is(err, net.ErrClosed):
		c.log.Debug("Connection closed")
	default:
		c.log.Info("Unexpected WebSocket error", "error", err)
	}
}
