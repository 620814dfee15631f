package signal

import (
	"errors"

	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *Controller) handleJoin(sid core.SessionID, c *Conn, data []byte) {
	var p struct {
		Room string `json:"room"`
		Name string `json:"name,omitempty"`
	}
	if !decode(c, data, &p) {
		return
	}

	if p.Name != "" {
		if err := ctl.Orch.Registry.UpdateUsername(sid, p.Name); err != nil {
			sendError(c, "invalid_name")
			return
		}
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.Room).Msg("join")
	// room_state arrives through the presence listener once the move is done.
	if err := ctl.Orch.Join(sid, domain.RoomID(p.Room)); err != nil {
		sendError(c, joinError(err))
	}
}

func joinError(err error) string {
	switch {
	case errors.Is(err, core.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, core.ErrForbidden):
		return "forbidden"
	case errors.Is(err, core.ErrNotConnected):
		return "not_connected"
	default:
		log.Error().Err(err).Str("module", "signal").Msg("join")
		return "internal"
	}
}

// handleLeave takes the member out of its room; the socket stays open.
func (ctl *Controller) handleLeave(sid core.SessionID) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.Orch.KickBySID(sid)
}

func (ctl *Controller) handleRooms(c *Conn) {
	_ = sendJSON(c, struct {
		Type  string          `json:"type"`
		Rooms []core.RoomInfo `json:"rooms"`
	}{"rooms", ctl.Orch.Rooms.List()})
}
