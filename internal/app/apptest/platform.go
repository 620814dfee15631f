package apptest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
)

type fakeRoom struct {
	room       domain.Room
	everyone   domain.Overwrite
	overwrites map[domain.UserID]domain.Overwrite
}

// Relocation records one successful Relocate call.
type Relocation struct {
	User domain.UserID
	From domain.RoomID
	To   domain.RoomID
}

// FakePlatform keeps rooms and membership in maps and publishes one
// membership change per transition, like the real orchestrator.
type FakePlatform struct {
	publish func(domain.MembershipChange)

	mu          sync.Mutex
	rooms       map[domain.RoomID]*fakeRoom
	users       map[domain.UserID]domain.User
	where       map[domain.UserID]domain.RoomID
	deleted     []domain.RoomID
	relocations []Relocation
	nextID      int

	FailCreate   error
	FailRelocate error
	FailGrant    error
}

func NewFakePlatform(publish func(domain.MembershipChange)) *FakePlatform {
	return &FakePlatform{
		publish: publish,
		rooms:   make(map[domain.RoomID]*fakeRoom),
		users:   make(map[domain.UserID]domain.User),
		where:   make(map[domain.UserID]domain.RoomID),
	}
}

func (p *FakePlatform) AddUser(u domain.User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u.Username == "" {
		u.Username = string(u.ID)
	}
	p.users[u.ID] = u
}

func (p *FakePlatform) AddRoom(r domain.Room) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rooms[r.ID] = &fakeRoom{room: r, overwrites: make(map[domain.UserID]domain.Overwrite)}
}

// Connect simulates the user joining room on their own.
func (p *FakePlatform) Connect(user domain.UserID, room domain.RoomID) {
	p.mu.Lock()
	prev := p.where[user]
	p.where[user] = room
	p.mu.Unlock()
	p.publish(domain.MembershipChange{UserID: user, Previous: prev, Current: room})
}

// Hangup simulates the user disconnecting on their own.
func (p *FakePlatform) Hangup(user domain.UserID) {
	p.mu.Lock()
	prev, ok := p.where[user]
	delete(p.where, user)
	p.mu.Unlock()
	if ok {
		p.publish(domain.MembershipChange{UserID: user, Previous: prev})
	}
}

func (p *FakePlatform) Exists(id domain.RoomID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.rooms[id]
	return ok
}

func (p *FakePlatform) OverwriteOf(room domain.RoomID, user domain.UserID) (domain.Overwrite, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.rooms[room]
	if !ok {
		return domain.Overwrite{}, false
	}
	ow, ok := r.overwrites[user]
	return ow, ok
}

func (p *FakePlatform) EveryoneOf(room domain.RoomID) domain.Overwrite {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.rooms[room]; ok {
		return r.everyone
	}
	return domain.Overwrite{}
}

func (p *FakePlatform) Deleted() []domain.RoomID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.deleted)
}

func (p *FakePlatform) Relocations() []Relocation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.relocations)
}

// RoomsUnder lists the children of parent ordered by position.
func (p *FakePlatform) RoomsUnder(parent domain.RoomID) []domain.Room {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Room
	for _, r := range p.rooms {
		if r.room.ParentID == parent && r.room.Kind != domain.RoomCategory {
			out = append(out, r.room)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (p *FakePlatform) Room(id domain.RoomID) (domain.Room, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.rooms[id]
	if !ok {
		return domain.Room{}, false
	}
	return r.room, true
}

func (p *FakePlatform) User(id domain.UserID) (domain.User, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[id]
	return u, ok
}

func (p *FakePlatform) CurrentRoom(user domain.UserID) (domain.RoomID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.where[user]
	return r, ok
}

func (p *FakePlatform) Occupants(room domain.RoomID) []domain.UserID {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.UserID
	for u, r := range p.where {
		if r == room {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *FakePlatform) CreateRoom(_ context.Context, req core.RoomRequest) (domain.RoomID, error) {
	if p.FailCreate != nil {
		return "", core.PlatformFailure("create room", p.FailCreate)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := domain.RoomID(fmt.Sprintf("room-%d", p.nextID))
	pos := req.Position
	if pos < 0 {
		pos = 0
		for _, r := range p.rooms {
			if r.room.ParentID == req.ParentID && r.room.Position >= pos {
				pos = r.room.Position + 1
			}
		}
	} else {
		for _, r := range p.rooms {
			if r.room.ParentID == req.ParentID && r.room.Position >= pos {
				r.room.Position++
			}
		}
	}
	fr := &fakeRoom{
		room:       domain.Room{ID: id, Name: req.Name, ParentID: req.ParentID, Position: pos, Kind: req.Kind},
		everyone:   req.Everyone,
		overwrites: make(map[domain.UserID]domain.Overwrite),
	}
	for u, ow := range req.Overwrites {
		fr.overwrites[u] = ow
	}
	p.rooms[id] = fr
	return id, nil
}

func (p *FakePlatform) DeleteRoom(_ context.Context, id domain.RoomID) error {
	p.mu.Lock()
	if _, ok := p.rooms[id]; !ok {
		p.mu.Unlock()
		return core.PlatformFailure("delete room", core.ErrRoomNotFound)
	}
	delete(p.rooms, id)
	p.deleted = append(p.deleted, id)
	var evicted []domain.UserID
	for u, r := range p.where {
		if r == id {
			evicted = append(evicted, u)
			delete(p.where, u)
		}
	}
	p.mu.Unlock()

	for _, u := range evicted {
		p.publish(domain.MembershipChange{UserID: u, Previous: id})
	}
	return nil
}

func (p *FakePlatform) SetOverwrite(_ context.Context, room domain.RoomID, user domain.UserID, ow domain.Overwrite) error {
	if p.FailGrant != nil {
		return core.PlatformFailure("set overwrite", p.FailGrant)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.rooms[room]
	if !ok {
		return core.PlatformFailure("set overwrite", core.ErrRoomNotFound)
	}
	r.overwrites[user] = ow
	return nil
}

func (p *FakePlatform) ClearOverwrite(_ context.Context, room domain.RoomID, user domain.UserID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.rooms[room]
	if !ok {
		return core.PlatformFailure("clear overwrite", core.ErrRoomNotFound)
	}
	delete(r.overwrites, user)
	return nil
}

func (p *FakePlatform) Relocate(_ context.Context, user domain.UserID, room domain.RoomID) error {
	if p.FailRelocate != nil {
		return core.PlatformFailure("relocate", p.FailRelocate)
	}
	p.mu.Lock()
	prev, ok := p.where[user]
	if !ok {
		p.mu.Unlock()
		return core.PlatformFailure("relocate", core.ErrNotConnected)
	}
	if _, exists := p.rooms[room]; !exists {
		p.mu.Unlock()
		return core.PlatformFailure("relocate", core.ErrRoomNotFound)
	}
	p.where[user] = room
	p.relocations = append(p.relocations, Relocation{User: user, From: prev, To: room})
	p.mu.Unlock()

	p.publish(domain.MembershipChange{UserID: user, Previous: prev, Current: room})
	return nil
}

func (p *FakePlatform) Disconnect(_ context.Context, user domain.UserID) error {
	p.mu.Lock()
	prev, ok := p.where[user]
	delete(p.where, user)
	p.mu.Unlock()
	if !ok {
		return core.PlatformFailure("disconnect", core.ErrNotConnected)
	}
	p.publish(domain.MembershipChange{UserID: user, Previous: prev})
	return nil
}

var _ core.Platform = (*FakePlatform)(nil)

// ErrInjected is a ready-made failure for the Fail* fields.
var ErrInjected = errors.New("injected failure")
