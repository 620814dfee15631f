package app

import (
	"sort"
	"sync"

	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]core.RoomService
	newID func() domain.RoomID
}

func NewRoomManager() *RoomManagerImpl {
	return &RoomManagerImpl{
		rooms: make(map[domain.RoomID]core.RoomService),
		newID: func() domain.RoomID { return domain.RoomID(uuid.NewString()) },
	}
}

func (m *RoomManagerImpl) CreateRoom(room domain.Room, position int) core.RoomService {
	m.mu.Lock()
	defer m.mu.Unlock()
	if room.ID == "" {
		room.ID = m.newID()
	}
	if position < 0 {
		position = 0
		for _, r := range m.rooms {
			if s := r.Room(); s.ParentID == room.ParentID && s.Position >= position {
				position = s.Position + 1
			}
		}
	} else {
		for _, r := range m.rooms {
			if s := r.Room(); s.ParentID == room.ParentID && s.Position >= position {
				r.SetPosition(s.Position + 1)
			}
		}
	}
	room.Position = position
	svc := core.NewRoomService(room)
	m.rooms[room.ID] = svc
	log.Info().
		Str("module", "app.rooms").
		Str("room", string(room.ID)).
		Str("name", string(room.Name)).
		Str("kind", room.Kind.String()).
		Int("position", position).
		Msg("room created")
	return svc
}

func (m *RoomManagerImpl) GetRoom(id domain.RoomID) (core.RoomService, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// FindByName returns the first room called name in listing order.
func (m *RoomManagerImpl) FindByName(name domain.RoomName) (core.RoomService, bool) {
	for _, info := range m.List() {
		if info.Name == name {
			return m.GetRoom(info.ID)
		}
	}
	return nil, false
}

// List orders rooms the way clients render them: top-level entries by
// position, each followed by its children by position.
func (m *RoomManagerImpl) List() []core.RoomInfo {
	m.mu.RLock()
	children := make(map[domain.RoomID][]core.RoomInfo)
	for _, r := range m.rooms {
		room := r.Room()
		children[room.ParentID] = append(children[room.ParentID], core.RoomInfo{
			ID:          room.ID,
			Name:        room.Name,
			ParentID:    room.ParentID,
			Kind:        room.Kind.String(),
			Position:    room.Position,
			MemberCount: r.MemberCount(),
		})
	}
	m.mu.RUnlock()

	for _, list := range children {
		sort.Slice(list, func(i, j int) bool {
			if list[i].Position != list[j].Position {
				return list[i].Position < list[j].Position
			}
			return list[i].ID < list[j].ID
		})
	}
	out := make([]core.RoomInfo, 0)
	var walk func(parent domain.RoomID)
	walk = func(parent domain.RoomID) {
		for _, info := range children[parent] {
			out = append(out, info)
			walk(info.ID)
		}
	}
	walk("")
	return out
}

func (m *RoomManagerImpl) StopRoom(id domain.RoomID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; !ok {
		return false
	}
	delete(m.rooms, id)
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room stopped")
	return true
}

var _ core.RoomManager = (*RoomManagerImpl)(nil)
