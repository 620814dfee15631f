package signal

import (
	"encoding/json"

	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
	"github.com/rs/zerolog/log"
)

type memberEvent struct {
	Type string      `json:"type"`
	Room string      `json:"room,omitempty"`
	User domain.User `json:"user"`
	Mute bool        `json:"mute,omitempty"`
}

type roomState struct {
	Type     string           `json:"type"`
	Room     domain.RoomID    `json:"room"`
	RoomName domain.RoomName  `json:"room_name"`
	Members  []core.MemberDTO `json:"members"`
	Count    int              `json:"count"`
}

func marshal(v any) (core.Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("marshal")
	}
	return b, err
}

// Publish reports a membership change to the browsers involved: the mover
// gets the new room state (or "left"), the rooms on either side get
// member_left and member_joined.
//
// It runs under the orchestrator's transition lock, so it only queues
// frames and never calls back into the orchestrator.
func (ctl *Controller) Publish(ev domain.MembershipChange) {
	sid := core.SessionOf(ev.UserID)
	user, ok := ctl.Orch.Registry.LookupUser(ev.UserID)
	if !ok {
		return
	}

	if ev.Previous != "" {
		ctl.fanout(ev.Previous, sid, memberEvent{Type: "member_left", Room: string(ev.Previous), User: user})
	}
	if ev.Current != "" {
		ctl.fanout(ev.Current, sid, memberEvent{Type: "member_joined", Room: string(ev.Current), User: user})
	}

	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok {
		return
	}
	if ev.Current == "" {
		_ = sendJSON(sess.Signal(), map[string]string{"type": "left", "room": string(ev.Previous)})
		return
	}
	room, ok := ctl.Orch.Rooms.GetRoom(ev.Current)
	if !ok {
		return
	}
	_ = sendJSON(sess.Signal(), roomState{
		Type:     "room_state",
		Room:     room.Room().ID,
		RoomName: room.Room().Name,
		Members:  room.MembersSnapshot(),
		Count:    room.MemberCount(),
	})
}

func (ctl *Controller) fanout(room domain.RoomID, except core.SessionID, ev memberEvent) {
	frame, err := marshal(ev)
	if err != nil {
		return
	}
	for _, snap := range ctl.Orch.Registry.MembersOfRoom(room) {
		if snap.SID == except {
			continue
		}
		if sig := snap.Session.Signal(); sig != nil {
			if err := sig.TrySend(frame); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("sid", string(snap.SID)).Str("type", ev.Type).Msg("presence dropped")
			}
		}
	}
}
