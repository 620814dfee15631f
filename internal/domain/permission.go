package domain

import "strings"

// Permission is a bit set of room capabilities.
type Permission uint8

const (
	PermView Permission = 1 << iota
	PermConnect
	PermSpeak
	PermManage
	PermMove
)

const PermAll = PermView | PermConnect | PermSpeak | PermManage | PermMove

func (p Permission) Has(q Permission) bool { return p&q == q }

func (p Permission) String() string {
	if p == 0 {
		return "none"
	}
	names := []struct {
		bit  Permission
		name string
	}{
		{PermView, "view"},
		{PermConnect, "connect"},
		{PermSpeak, "speak"},
		{PermManage, "manage"},
		{PermMove, "move"},
	}
	var parts []string
	for _, n := range names {
		if p.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Overwrite adjusts permissions for a room. Deny wins over Allow of the same
// overwrite; a per-user overwrite wins over the room's everyone overwrite.
type Overwrite struct {
	Allow Permission `json:"allow"`
	Deny  Permission `json:"deny"`
}

func (o Overwrite) IsZero() bool { return o.Allow == 0 && o.Deny == 0 }

// Resolve computes the effective permission set for a user given the room's
// everyone overwrite and the user's own overwrite, starting from base.
func Resolve(base Permission, everyone Overwrite, own Overwrite) Permission {
	p := base
	p &^= everyone.Deny
	p |= everyone.Allow
	p &^= own.Deny
	p |= own.Allow
	return p
}
