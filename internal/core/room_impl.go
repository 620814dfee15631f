package core

import (
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/tempvoice/internal/domain"
	"github.com/rs/zerolog/log"
)

// BasePermissions is what every user holds in a room before overwrites.
const BasePermissions = domain.PermView | domain.PermConnect | domain.PermSpeak

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	mu         sync.RWMutex
	room       domain.Room
	bySID      map[SessionID]MemberSession
	everyone   domain.Overwrite
	overwrites map[domain.UserID]domain.Overwrite
}

func NewRoomService(room domain.Room) RoomService {
	return &roomImpl{
		room:       room,
		bySID:      make(map[SessionID]MemberSession),
		overwrites: make(map[domain.UserID]domain.Overwrite),
	}
}

func (r *roomImpl) Room() domain.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.room
}

func (r *roomImpl) SetPosition(pos int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.room.Position = pos
}

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) HasMember(sid SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bySID[sid]
	return ok
}

func (r *roomImpl) Members() []SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SessionID, 0, len(r.bySID))
	for sid := range r.bySID {
		out = append(out, sid)
	}
	return out
}

func (r *roomImpl) AddMember(sid SessionID, ms MemberSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySID[sid] = ms
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Msg("member added")
}

func (r *roomImpl) RemoveMember(sid SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySID[sid]; !ok {
		return
	}
	delete(r.bySID, sid)
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Msg("member removed")
}

func (r *roomImpl) Broadcast(from SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for sid, m := range r.bySID {
		if sid == from {
			continue
		}
		sig := m.Signal()
		if sig == nil {
			continue
		}
		if err := sig.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
		res.Delivered = append(res.Delivered, m)
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberDTO, 0, len(r.bySID))
	for _, ms := range r.bySID {
		m := ms.Meta()
		out = append(out, MemberDTO{ID: m.User.ID, Username: m.User.Username, Mute: m.Mute, Since: m.Since})
	}
	slices.SortFunc(out, func(a, b MemberDTO) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out
}

func (r *roomImpl) Everyone() domain.Overwrite {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.everyone
}

func (r *roomImpl) SetEveryone(ow domain.Overwrite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.everyone = ow
}

func (r *roomImpl) Overwrite(user domain.UserID) (domain.Overwrite, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ow, ok := r.overwrites[user]
	return ow, ok
}

func (r *roomImpl) SetOverwrite(user domain.UserID, ow domain.Overwrite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ow.IsZero() {
		delete(r.overwrites, user)
		return
	}
	r.overwrites[user] = ow
	log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Str("user", string(user)).Str("allow", ow.Allow.String()).Str("deny", ow.Deny.String()).Msg("overwrite set")
}

func (r *roomImpl) ClearOverwrite(user domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overwrites, user)
}

func (r *roomImpl) Permissions(user domain.UserID) domain.Permission {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.Resolve(BasePermissions, r.everyone, r.overwrites[user])
}
