package core

import (
	"context"

	"github.com/dkeye/tempvoice/internal/domain"
)

// RoomRequest describes a room to provision.
type RoomRequest struct {
	Name     domain.RoomName
	ParentID domain.RoomID
	Kind     domain.RoomKind
	// Position among siblings; negative appends.
	Position   int
	Everyone   domain.Overwrite
	Overwrites map[domain.UserID]domain.Overwrite
}

// Platform is the set of room and membership operations the ephemeral-room
// subsystem drives. Reads are synchronous lookups; mutating calls may fail
// with an error wrapping ErrPlatform.
type Platform interface {
	Room(id domain.RoomID) (domain.Room, bool)
	User(id domain.UserID) (domain.User, bool)
	CurrentRoom(user domain.UserID) (domain.RoomID, bool)
	Occupants(room domain.RoomID) []domain.UserID

	CreateRoom(ctx context.Context, req RoomRequest) (domain.RoomID, error)
	DeleteRoom(ctx context.Context, id domain.RoomID) error
	SetOverwrite(ctx context.Context, room domain.RoomID, user domain.UserID, ow domain.Overwrite) error
	ClearOverwrite(ctx context.Context, room domain.RoomID, user domain.UserID) error
	// Relocate moves a connected user into room. Users that are not connected
	// anywhere cannot be moved and get ErrNotConnected.
	Relocate(ctx context.Context, user domain.UserID, room domain.RoomID) error
	Disconnect(ctx context.Context, user domain.UserID) error
}

// Authority answers permission questions. It never mutates anything.
type Authority interface {
	IsEligibleForTriggerRoom(user domain.UserID) bool
	IsExcludedFromRooms(user domain.UserID) bool
	HasElevatedRoomAuthority(user domain.UserID) bool
}
