package domain

import "time"

// Member is the live state of one connected user on the voice side.
type Member struct {
	User  *User
	Mute  bool
	Since time.Time
}

// NewMember starts a member record for a session opened at since.
func NewMember(user *User, since time.Time) *Member {
	return &Member{User: user, Since: since}
}
