package core

import (
	"time"

	"github.com/dkeye/tempvoice/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo    int
	Delivered []MemberSession
	Dropped   []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
	Mute     bool          `json:"mute,omitempty"`
	Since    time.Time     `json:"since"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set and permission overwrites but never touches
// transport resources.
type RoomService interface {
	Room() domain.Room
	MemberCount() int
	Members() []SessionID
	MembersSnapshot() []MemberDTO
	HasMember(sid SessionID) bool

	AddMember(sid SessionID, ms MemberSession)
	RemoveMember(sid SessionID)
	Broadcast(from SessionID, data Frame) PublishResult

	Everyone() domain.Overwrite
	SetEveryone(ow domain.Overwrite)
	Overwrite(user domain.UserID) (domain.Overwrite, bool)
	SetOverwrite(user domain.UserID, ow domain.Overwrite)
	ClearOverwrite(user domain.UserID)
	Permissions(user domain.UserID) domain.Permission

	SetPosition(pos int)
}

type RoomInfo struct {
	ID          domain.RoomID   `json:"id"`
	Name        domain.RoomName `json:"name"`
	ParentID    domain.RoomID   `json:"parent_id,omitempty"`
	Kind        string          `json:"kind"`
	Position    int             `json:"position"`
	MemberCount int             `json:"client_count"`
}

type RoomManager interface {
	// CreateRoom inserts room among its siblings at position, shifting the
	// ones below. A negative position appends.
	CreateRoom(room domain.Room, position int) RoomService
	GetRoom(id domain.RoomID) (RoomService, bool)
	FindByName(name domain.RoomName) (RoomService, bool)
	List() []RoomInfo
	StopRoom(id domain.RoomID) bool
}
