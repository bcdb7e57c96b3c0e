// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package websocket

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/pulse/internal/logging"
)

// client binds a Session to its socket. The write pump is the only writer.
type client struct {
	gw      *Gateway
	session *Session
	conn    *websocket.Conn
	limiter *rate.Limiter
}

func newClient(gw *Gateway, s *Session, conn *websocket.Conn) *client {
	return &client{
		gw:      gw,
		session: s,
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(gw.cfg.InboundRate), gw.cfg.InboundBurst),
	}
}

func (c *client) start() {
	go c.writePump()
	go c.readPump()
}

// readPump reads client frames until the socket fails or the session closes.
func (c *client) readPump() {
	reason := "client closed"
	defer func() {
		c.gw.disconnect(c.session, reason)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.gw.cfg.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.gw.cfg.PongWait)); err != nil {
		reason = "read deadline"
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.gw.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("session_id", c.session.ID).Msg("Unexpected websocket close")
				reason = "read error"
			}
			return
		}

		if !c.limiter.Allow() {
			c.gw.rejectFrame(c.session, "rate_limited", "too many frames")
			continue
		}

		var msg ClientFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			c.gw.rejectFrame(c.session, "bad_frame", "frame is not valid JSON")
			continue
		}
		c.gw.handleClientFrame(c.session, msg)
	}
}

// writePump drains the session queue, sends keepalive pings, and writes the
// close frame once the session is closed.
func (c *client) writePump() {
	ticker := time.NewTicker(c.gw.cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case f := <-c.session.send:
			if err := c.write(f); err != nil {
				logging.Debug().Err(err).Str("session_id", c.session.ID).Msg("Websocket write failed")
				c.session.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.session.done:
			c.flushQueued()
			msg := websocket.FormatCloseMessage(c.session.closeCode, c.session.closeReason)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.gw.cfg.WriteWait))
			return
		}
	}
}

// flushQueued writes frames queued before the session closed.
func (c *client) flushQueued() {
	for {
		select {
		case f := <-c.session.send:
			if err := c.write(f); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *client) write(f Frame) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteWait)); err != nil {
		return err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
