package app

import (
	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
)

// Directory resolves the user and room references people type.
type Directory struct {
	Users *Registry
	Rooms core.RoomManager
}

func (d Directory) ResolveUser(ref string) (domain.User, bool) {
	return d.Users.ResolveUser(ref)
}

// ResolveRoom accepts a room id or an exact room name.
func (d Directory) ResolveRoom(ref string) (domain.RoomID, bool) {
	if r, ok := d.Rooms.GetRoom(domain.RoomID(ref)); ok {
		return r.Room().ID, true
	}
	if r, ok := d.Rooms.FindByName(domain.RoomName(ref)); ok {
		return r.Room().ID, true
	}
	return "", false
}
