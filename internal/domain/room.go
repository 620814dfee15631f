package domain

import "time"

type (
	RoomName string
	RoomID   string
)

type RoomKind int

const (
	RoomStatic RoomKind = iota
	RoomCategory
	RoomTrigger
	RoomWaiting
	RoomEphemeral
)

func (k RoomKind) String() string {
	switch k {
	case RoomCategory:
		return "category"
	case RoomTrigger:
		return "trigger"
	case RoomWaiting:
		return "waiting"
	case RoomEphemeral:
		return "ephemeral"
	default:
		return "static"
	}
}

// Room is a node in the server's room tree. Categories group rooms via ParentID;
// Position orders siblings.
type Room struct {
	ID        RoomID    `json:"id"`
	Name      RoomName  `json:"name"`
	ParentID  RoomID    `json:"parent_id,omitempty"`
	Position  int       `json:"position"`
	Kind      RoomKind  `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// Joinable reports whether members can be connected to the room at all.
func (r Room) Joinable() bool { return r.Kind != RoomCategory }

// MembershipChange describes one transition of a user between rooms.
// An empty Previous means the user connected; an empty Current means they
// disconnected.
type MembershipChange struct {
	UserID   UserID
	Previous RoomID
	Current  RoomID
}

// Connected reports whether the user ended up in a room.
func (c MembershipChange) Connected() bool { return c.Current != "" && c.Current != c.Previous }

// Left reports whether the user left Previous.
func (c MembershipChange) Left() bool { return c.Previous != "" && c.Current != c.Previous }
