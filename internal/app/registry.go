package app

import (
	"context"
	"sort"
	"sync"

	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
)

type sessionEntry struct {
	RoomID  domain.RoomID
	Session core.MemberSession
	Cancel  context.CancelFunc
}

// Registry tracks users, their signal sessions and which room each session
// sits in. The room association here is what the orchestrator reports as a
// user's current room.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	users    map[core.SessionID]*domain.User
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
		users:    make(map[core.SessionID]*domain.User),
	}
}

// GetOrCreateUser returns the user behind sid, creating a guest on first
// sight. created reports whether that happened.
func (r *Registry) GetOrCreateUser(sid core.SessionID) (u *domain.User, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[sid]; ok {
		return u, false
	}
	u = domain.NewGuest(sid.UserID())
	r.users[sid] = u
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("created new user")
	return u, true
}

// LookupUser returns a copy of the user with id.
func (r *Registry) LookupUser(id domain.UserID) (domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[core.SessionOf(id)]
	if !ok {
		return domain.User{}, false
	}
	return cloneUser(u), true
}

// ResolveUser finds a user by id, or else by username ignoring case.
// Ambiguous names resolve to nothing.
func (r *Registry) ResolveUser(ref string) (domain.User, bool) {
	if u, ok := r.LookupUser(domain.UserID(ref)); ok {
		return u, true
	}
	fold := cases.Fold()
	want := fold.String(ref)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *domain.User
	for _, u := range r.users {
		if fold.String(u.Username) != want {
			continue
		}
		if found != nil {
			return domain.User{}, false
		}
		found = u
	}
	if found == nil {
		return domain.User{}, false
	}
	return cloneUser(found), true
}

func (r *Registry) UpdateUsername(sid core.SessionID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[sid]
	if !ok {
		return core.ErrUserNotFound
	}
	if err := u.SetUsername(name); err != nil {
		return err
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("username", name).Msg("updated username")
	return nil
}

// SetProfile replaces the roles and bot flag of an existing user.
func (r *Registry) SetProfile(id domain.UserID, roles []domain.Role, bot bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[core.SessionOf(id)]
	if !ok {
		return false
	}
	u.Roles = append([]domain.Role(nil), roles...)
	u.Bot = bot
	log.Info().Str("module", "app.registry").Str("user", string(id)).Int("roles", len(roles)).Bool("bot", bot).Msg("updated profile")
	return true
}

func (r *Registry) BindSignal(sid core.SessionID, sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[sid]; ok && old.Cancel != nil {
		old.Cancel()
	}
	r.sessions[sid] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound signal")
}

func (r *Registry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

// Unbind drops sid's session if it is still sess. A reconnect may already
// have replaced it.
func (r *Registry) Unbind(sid core.SessionID, sess core.MemberSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || e.Session != sess {
		return false
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	return true
}

func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomID, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[sid]
	if !ok || entry.RoomID == "" {
		return "", nil, false
	}
	return entry.RoomID, entry.Session, true
}

// UpdateRoom sets sid's room, "" meaning none, and returns the previous one.
func (r *Registry) UpdateRoom(sid core.SessionID, room domain.RoomID) (domain.RoomID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok {
		return "", false
	}
	prev := entry.RoomID
	entry.RoomID = room
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("from", string(prev)).Str("room", string(room)).Msg("updated room")
	return prev, true
}

type Snap struct {
	SID     core.SessionID
	Session core.MemberSession
}

func (r *Registry) MembersOfRoom(room domain.RoomID) []Snap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snap, 0)
	for sid, e := range r.sessions {
		if e.RoomID == room {
			out = append(out, Snap{SID: sid, Session: e.Session})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SID < out[j].SID })
	return out
}

// RoomMates lists everyone sharing sid's room, sid excluded.
func (r *Registry) RoomMates(sid core.SessionID) []Snap {
	room, _, ok := r.RoomOf(sid)
	if !ok {
		return nil
	}
	var out []Snap
	for _, s := range r.MembersOfRoom(room) {
		if s.SID != sid {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}

func cloneUser(u *domain.User) domain.User {
	c := *u
	c.Roles = append([]domain.Role(nil), u.Roles...)
	return c
}
