package domain

import "testing"

func TestResolve(t *testing.T) {
	base := PermView | PermConnect | PermSpeak
	tests := []struct {
		name     string
		everyone Overwrite
		own      Overwrite
		want     Permission
	}{
		{"no overwrites", Overwrite{}, Overwrite{}, base},
		{"everyone denied connect", Overwrite{Deny: PermConnect}, Overwrite{}, PermView | PermSpeak},
		{"user allowed back in", Overwrite{Deny: PermConnect}, Overwrite{Allow: PermConnect}, base},
		{"user denied", Overwrite{}, Overwrite{Deny: PermSpeak}, PermView | PermConnect},
		{"creator grant", Overwrite{Deny: PermConnect}, Overwrite{Allow: PermAll}, PermAll},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(base, tt.everyone, tt.own); got != tt.want {
				t.Fatalf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPermissionString(t *testing.T) {
	if got := (PermConnect | PermSpeak).String(); got != "connect|speak" {
		t.Fatalf("String() = %q, want %q", got, "connect|speak")
	}
	if got := Permission(0).String(); got != "none" {
		t.Fatalf("String() = %q, want %q", got, "none")
	}
}

func TestMembershipChange(t *testing.T) {
	c := MembershipChange{UserID: "a", Previous: "r1", Current: "r2"}
	if !c.Connected() || !c.Left() {
		t.Fatalf("move should count as leave and connect: %+v", c)
	}
	c = MembershipChange{UserID: "a", Current: "r1"}
	if !c.Connected() || c.Left() {
		t.Fatalf("connect only: %+v", c)
	}
	c = MembershipChange{UserID: "a", Previous: "r1"}
	if c.Connected() || !c.Left() {
		t.Fatalf("disconnect only: %+v", c)
	}
}
