package app

import (
	"testing"

	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
)

func TestRoleAuthority(t *testing.T) {
	r := NewRegistry()
	for _, sid := range []string{"member", "mod", "muted", "guest", "bot"} {
		bind(r, core.SessionID(sid), "")
	}
	r.SetProfile("member", []domain.Role{"member"}, false)
	r.SetProfile("mod", []domain.Role{"member", "moderator"}, false)
	r.SetProfile("muted", []domain.Role{"member", "banned"}, false)
	r.SetProfile("bot", []domain.Role{"member"}, true)

	a := NewRoleAuthority(r, AuthorityConfig{
		TriggerRoles:  []string{"member"},
		ElevatedRoles: []string{"moderator"},
		ExcludedRole:  "banned",
	})
	tests := []struct {
		user                         domain.UserID
		eligible, excluded, elevated bool
	}{
		{"member", true, false, false},
		{"mod", true, false, true},
		{"muted", true, true, false},
		{"guest", false, false, false},
		{"bot", false, false, false},
		{"unknown", false, false, false},
		{domain.ServiceActor, false, false, true},
	}
	for _, tt := range tests {
		if got := a.IsEligibleForTriggerRoom(tt.user); got != tt.eligible {
			t.Fatalf("IsEligibleForTriggerRoom(%s) = %v, want %v", tt.user, got, tt.eligible)
		}
		if got := a.IsExcludedFromRooms(tt.user); got != tt.excluded {
			t.Fatalf("IsExcludedFromRooms(%s) = %v, want %v", tt.user, got, tt.excluded)
		}
		if got := a.HasElevatedRoomAuthority(tt.user); got != tt.elevated {
			t.Fatalf("HasElevatedRoomAuthority(%s) = %v, want %v", tt.user, got, tt.elevated)
		}
	}
}

func TestOpenTriggerRoom(t *testing.T) {
	r := NewRegistry()
	bind(r, "guest", "")
	a := NewRoleAuthority(r, AuthorityConfig{})
	if !a.IsEligibleForTriggerRoom("guest") {
		t.Fatal("guest not eligible with no trigger roles configured")
	}
}
