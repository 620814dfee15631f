// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"slices"
)

const (
	MaxUserIDLen   = 36
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

type (
	UserID string
	Role   string
)

// ServiceActor is the identity the server itself uses when it manages rooms.
const ServiceActor UserID = "system"

type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot,omitempty"`
	Roles    []Role `json:"roles,omitempty"`
}

// GuestName is what a user is called until they rename themselves.
const GuestName = "guest"

// NewGuest is the user a fresh browser session starts as.
func NewGuest(id UserID) *User {
	return &User{ID: id, Username: GuestName}
}

func (u *User) SetUsername(username string) error {
	if err := validateUsername(username); err != nil {
		return err
	}
	u.Username = username
	return nil
}

func (u *User) HasRole(role Role) bool {
	return slices.Contains(u.Roles, role)
}

// HasAnyRole reports whether the user holds one of roles.
func (u *User) HasAnyRole(roles []Role) bool {
	for _, r := range roles {
		if u.HasRole(r) {
			return true
		}
	}
	return false
}

// DisplayName falls back to the id for users that never picked a name.
func (u *User) DisplayName() string {
	if u.Username == "" {
		return string(u.ID)
	}
	return u.Username
}

func validateUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}
