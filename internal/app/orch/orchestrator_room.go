package orch

import (
	"fmt"

	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
	"github.com/rs/zerolog/log"
)

// Join moves sid into roomID on the member's own behalf, so the room's
// permissions apply.
func (o *Orchestrator) Join(sid core.SessionID, roomID domain.RoomID) error {
	room, ok := o.Rooms.GetRoom(roomID)
	if !ok || !room.Room().Joinable() {
		return core.ErrRoomNotFound
	}
	uid := sid.UserID()
	if o.Authority != nil {
		if o.Authority.IsExcludedFromRooms(uid) {
			return fmt.Errorf("join %s: %w", roomID, core.ErrForbidden)
		}
		if !o.Authority.HasElevatedRoomAuthority(uid) && !room.Permissions(uid).Has(domain.PermConnect) {
			return fmt.Errorf("join %s: %w", roomID, core.ErrForbidden)
		}
	}
	return o.transition(sid, roomID)
}

// Leave takes sid out of its room. Not being in a room is not an error.
func (o *Orchestrator) Leave(sid core.SessionID) {
	if err := o.transition(sid, ""); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("leave")
	}
}

func (o *Orchestrator) KickBySID(sid core.SessionID) {
	o.cleanupMedia(sid)
	o.Leave(sid)
}

// OnDisconnect releases everything sess held, unless a newer session for
// the same sid has replaced it.
func (o *Orchestrator) OnDisconnect(sid core.SessionID, sess core.MemberSession) {
	if cur, ok := o.Registry.GetSession(sid); !ok || cur != sess {
		return
	}
	o.KickBySID(sid)
	o.Registry.Unbind(sid, sess)
}

// EvictRoom empties a room and forgets it.
func (o *Orchestrator) EvictRoom(id domain.RoomID) bool {
	for _, snap := range o.Registry.MembersOfRoom(id) {
		if err := o.transition(snap.SID, ""); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("sid", string(snap.SID)).Msg("evict")
		}
	}
	return o.Rooms.StopRoom(id)
}

// transition is the only place membership changes. It publishes exactly one
// change when sid actually moved.
func (o *Orchestrator) transition(sid core.SessionID, to domain.RoomID) error {
	o.mu.Lock()
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		o.mu.Unlock()
		return core.ErrNotConnected
	}
	from, _, _ := o.Registry.RoomOf(sid)
	if from == to {
		o.mu.Unlock()
		return nil
	}
	var dst core.RoomService
	if to != "" {
		if dst, ok = o.Rooms.GetRoom(to); !ok {
			o.mu.Unlock()
			return core.ErrRoomNotFound
		}
	}

	if from != "" {
		o.detachMedia(sid, from)
		if src, ok := o.Rooms.GetRoom(from); ok {
			src.RemoveMember(sid)
		}
	}
	if dst != nil {
		dst.AddMember(sid, sess)
	}
	o.Registry.UpdateRoom(sid, to)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from", string(from)).Str("room", string(to)).Msg("membership changed")
	o.publish(domain.MembershipChange{UserID: sid.UserID(), Previous: from, Current: to})
	o.mu.Unlock()

	if to != "" {
		o.attachMedia(sid, to)
	}
	return nil
}
