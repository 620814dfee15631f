package signal

import (
	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *Controller) handleRename(sid core.SessionID, c *Conn, data []byte) {
	var p struct {
		Name string `json:"name"`
	}
	if !decode(c, data, &p) {
		return
	}
	if err := ctl.Orch.Registry.UpdateUsername(sid, p.Name); err != nil {
		sendError(c, "invalid_name")
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("name", p.Name).Msg("rename")
	ctl.handleWhoAmI(sid, c)
	ctl.announce(sid)
}

// announce tells sid's room mates about a profile change.
func (ctl *Controller) announce(sid core.SessionID) {
	room, _, ok := ctl.Orch.Registry.RoomOf(sid)
	if !ok {
		return
	}
	user, ok := ctl.Orch.Registry.LookupUser(sid.UserID())
	if !ok {
		return
	}
	sess, _ := ctl.Orch.Registry.GetSession(sid)
	frame, err := marshal(memberEvent{Type: "member_updated", User: user, Mute: sess != nil && sess.Meta().Mute})
	if err != nil {
		return
	}
	ctl.Orch.BroadcastRoom(room, sid, frame)
}

func (ctl *Controller) handleWhoAmI(sid core.SessionID, c *Conn) {
	user, _ := ctl.Orch.Registry.LookupUser(sid.UserID())

	resp := struct {
		Type     string          `json:"type"`
		ID       domain.UserID   `json:"id"`
		Username string          `json:"username"`
		Room     domain.RoomID   `json:"room,omitempty"`
		RoomName domain.RoomName `json:"room_name,omitempty"`
	}{
		Type:     "whoami",
		ID:       user.ID,
		Username: user.Username,
	}
	if roomID, _, ok := ctl.Orch.Registry.RoomOf(sid); ok {
		if room, ok := ctl.Orch.Rooms.GetRoom(roomID); ok {
			resp.Room = roomID
			resp.RoomName = room.Room().Name
		}
	}
	_ = sendJSON(c, resp)
}
