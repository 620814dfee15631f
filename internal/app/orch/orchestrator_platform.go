package orch

import (
	"context"
	"sort"

	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
	"github.com/rs/zerolog/log"
)

// The methods below make the orchestrator the core.Platform the
// ephemeral-room subsystem drives. They act as the service actor, so room
// permissions do not apply to Relocate.

func (o *Orchestrator) Room(id domain.RoomID) (domain.Room, bool) {
	r, ok := o.Rooms.GetRoom(id)
	if !ok {
		return domain.Room{}, false
	}
	return r.Room(), true
}

func (o *Orchestrator) User(id domain.UserID) (domain.User, bool) {
	return o.Registry.LookupUser(id)
}

func (o *Orchestrator) CurrentRoom(user domain.UserID) (domain.RoomID, bool) {
	room, _, ok := o.Registry.RoomOf(core.SessionOf(user))
	return room, ok
}

func (o *Orchestrator) Occupants(room domain.RoomID) []domain.UserID {
	r, ok := o.Rooms.GetRoom(room)
	if !ok {
		return nil
	}
	sids := r.Members()
	out := make([]domain.UserID, 0, len(sids))
	for _, sid := range sids {
		out = append(out, sid.UserID())
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (o *Orchestrator) CreateRoom(_ context.Context, req core.RoomRequest) (domain.RoomID, error) {
	if req.ParentID != "" {
		if _, ok := o.Rooms.GetRoom(req.ParentID); !ok {
			return "", core.PlatformFailure("create room", core.ErrRoomNotFound)
		}
	}
	room := domain.Room{Name: req.Name, ParentID: req.ParentID, Kind: req.Kind}
	if o.Clock != nil {
		room.CreatedAt = o.Clock.Now()
	}
	svc := o.Rooms.CreateRoom(room, req.Position)
	svc.SetEveryone(req.Everyone)
	for user, ow := range req.Overwrites {
		svc.SetOverwrite(user, ow)
	}
	return svc.Room().ID, nil
}

func (o *Orchestrator) DeleteRoom(_ context.Context, id domain.RoomID) error {
	if !o.EvictRoom(id) {
		return core.PlatformFailure("delete room", core.ErrRoomNotFound)
	}
	return nil
}

func (o *Orchestrator) SetOverwrite(_ context.Context, room domain.RoomID, user domain.UserID, ow domain.Overwrite) error {
	r, ok := o.Rooms.GetRoom(room)
	if !ok {
		return core.PlatformFailure("set overwrite", core.ErrRoomNotFound)
	}
	r.SetOverwrite(user, ow)
	return nil
}

func (o *Orchestrator) ClearOverwrite(_ context.Context, room domain.RoomID, user domain.UserID) error {
	r, ok := o.Rooms.GetRoom(room)
	if !ok {
		return core.PlatformFailure("clear overwrite", core.ErrRoomNotFound)
	}
	r.ClearOverwrite(user)
	return nil
}

func (o *Orchestrator) Relocate(_ context.Context, user domain.UserID, room domain.RoomID) error {
	sid := core.SessionOf(user)
	if _, _, ok := o.Registry.RoomOf(sid); !ok {
		return core.PlatformFailure("relocate", core.ErrNotConnected)
	}
	if err := o.transition(sid, room); err != nil {
		return core.PlatformFailure("relocate", err)
	}
	log.Info().Str("module", "orch").Str("user", string(user)).Str("room", string(room)).Msg("relocated")
	return nil
}

func (o *Orchestrator) Disconnect(_ context.Context, user domain.UserID) error {
	sid := core.SessionOf(user)
	if _, _, ok := o.Registry.RoomOf(sid); !ok {
		return core.PlatformFailure("disconnect", core.ErrNotConnected)
	}
	o.cleanupMedia(sid)
	if err := o.transition(sid, ""); err != nil {
		return core.PlatformFailure("disconnect", err)
	}
	return nil
}

var _ core.Platform = (*Orchestrator)(nil)
