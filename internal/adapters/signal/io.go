package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/tempvoice/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *Conn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()

	write := func(kind int, data []byte) bool {
		if err := c.ws.SetWriteDeadline(ctl.clock.Now().Add(writeWait)); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
			return false
		}
		if err := c.ws.WriteMessage(kind, data); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			c.Close()
			return
		case <-ticker.C:
			if !write(websocket.PingMessage, nil) {
				c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if !write(websocket.TextMessage, data) {
				c.Close()
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, sid core.SessionID, c *Conn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		c.Close()
	}()

	pongWait := ctl.opts.PingPeriod * 10 / 9
	c.ws.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.ws.SetReadDeadline(ctl.clock.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(ctl.clock.Now().Add(pongWait))
	})

	for ctx.Err() == nil {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		ctl.handleSignal(ctx, sid, c, data)
	}
}

func (ctl *Controller) handleSignal(ctx context.Context, sid core.SessionID, c *Conn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		sendError(c, "bad_payload")
		return
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(sid, c, data)
	case "leave":
		ctl.handleLeave(sid)
	case "ping":
		sendJSON(c, map[string]string{"type": "pong"})
	case "rename":
		ctl.handleRename(sid, c, data)
	case "whoami":
		ctl.handleWhoAmI(sid, c)
	case "rooms":
		ctl.handleRooms(c)
	case "offer":
		ctl.handleOffer(ctx, sid, c, data)
	case "candidate":
		ctl.handleCandidate(sid, c, data)
	case "mute":
		ctl.handleMute(sid, c, data)
	case "invite":
		ctl.handleInvite(ctx, sid, c, data)
	case "request_join":
		ctl.handleRequestJoin(ctx, sid, c, data)
	case "respond":
		ctl.handleRespond(ctx, sid, c, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		sendError(c, "unknown_type")
	}
}

// decode unmarshals data into v and reports a bad payload to c on failure.
func decode(c core.SignalConnection, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad payload")
		sendError(c, "bad_payload")
		return false
	}
	return true
}

func sendJSON(c core.SignalConnection, v any) error {
	if c == nil {
		return ErrConnClosed
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return err
	}
	return c.TrySend(b)
}

func sendError(c core.SignalConnection, code string) {
	_ = sendJSON(c, map[string]string{"type": "error", "error": code})
}

func sendNotice(c core.SignalConnection, text string) {
	_ = sendJSON(c, map[string]string{"type": "notice", "text": text})
}
